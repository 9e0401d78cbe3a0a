package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string
	Name string
}

func itemKey(i item) string { return i.ID }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestFetchShortCircuitsWhileFresh(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	var calls int32
	s := New(func(context.Context, bool) ([]item, error) {
		n := atomic.AddInt32(&calls, 1)
		return []item{{ID: "a", Name: "call " + strconv.Itoa(int(n))}}, nil
	}, itemKey, WithTTL(time.Minute), WithClock(clock.Now))

	require.NoError(t, s.Fetch(context.Background(), false))
	require.NoError(t, s.Fetch(context.Background(), false))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clock.Advance(59 * time.Second)
	require.NoError(t, s.Fetch(context.Background(), false))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clock.Advance(time.Second)
	require.NoError(t, s.Fetch(context.Background(), false))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	require.NoError(t, s.Fetch(context.Background(), true))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "call 3", s.Items()[0].Name)
}

func TestConcurrentFetchRunsOnce(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	s := New(func(context.Context, bool) ([]item, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []item{{ID: "a"}}, nil
	}, itemKey)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Fetch(context.Background(), false))
		}()
	}
	require.Eventually(t, s.Loading, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, s.Loading())
	assert.Len(t, s.Items(), 1)
}

func TestFetchErrorKeepsItems(t *testing.T) {
	fail := false
	s := New(func(context.Context, bool) ([]item, error) {
		if fail {
			return nil, errors.New("offline")
		}
		return []item{{ID: "a"}}, nil
	}, itemKey)

	require.NoError(t, s.Fetch(context.Background(), false))
	fail = true
	assert.Error(t, s.Fetch(context.Background(), true))
	assert.Error(t, s.LastError())
	assert.Len(t, s.Items(), 1)

	fail = false
	require.NoError(t, s.Fetch(context.Background(), true))
	assert.NoError(t, s.LastError())
}

func TestMutationsAndSubscribe(t *testing.T) {
	s := New(func(context.Context, bool) ([]item, error) {
		return []item{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}, nil
	}, itemKey)

	var notified int32
	unsubscribe := s.Subscribe(func() { atomic.AddInt32(&notified, 1) })

	require.NoError(t, s.Fetch(context.Background(), false))
	s.Add(item{ID: "c", Name: "C"})
	assert.Equal(t, []string{"c", "a", "b"}, ids(s.Items()))

	assert.True(t, s.Update(item{ID: "a", Name: "A2"}))
	assert.False(t, s.Update(item{ID: "zz"}))
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "A2", got.Name)

	assert.True(t, s.Remove("b"))
	assert.False(t, s.Remove("b"))
	assert.Equal(t, []string{"c", "a"}, ids(s.Items()))

	before := atomic.LoadInt32(&notified)
	assert.True(t, before >= 5)
	unsubscribe()
	s.Add(item{ID: "d"})
	assert.Equal(t, before, atomic.LoadInt32(&notified))
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	s := New(func(context.Context, bool) ([]item, error) {
		<-release
		return []item{{ID: "stale"}}, nil
	}, itemKey)

	done := make(chan error)
	go func() { done <- s.Fetch(context.Background(), false) }()
	require.Eventually(t, s.Loading, time.Second, time.Millisecond)

	s.Reset()
	close(release)
	require.NoError(t, <-done)

	assert.Empty(t, s.Items())
	assert.True(t, s.LastFetchAt().IsZero())
}

func TestFetchAfterResetLoadsAgain(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	s := New(func(context.Context, bool) ([]item, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
			return []item{{ID: "old-identity"}}, nil
		}
		return []item{{ID: "new-identity"}}, nil
	}, itemKey)

	first := make(chan error, 1)
	go func() { first <- s.Fetch(context.Background(), false) }()
	require.Eventually(t, s.Loading, time.Second, time.Millisecond)

	s.Reset()
	assert.False(t, s.Loading())
	require.NoError(t, s.Fetch(context.Background(), true))
	assert.Equal(t, []string{"new-identity"}, ids(s.Items()))
	assert.False(t, s.LastFetchAt().IsZero())

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"new-identity"}, ids(s.Items()))
}

func TestWaiterRefetchesWhenResetDuringWait(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	s := New(func(context.Context, bool) ([]item, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
			return []item{{ID: "old-identity"}}, nil
		}
		return []item{{ID: "new-identity"}}, nil
	}, itemKey)

	go s.Fetch(context.Background(), false)
	require.Eventually(t, s.Loading, time.Second, time.Millisecond)

	waiter := make(chan error, 1)
	go func() { waiter <- s.Fetch(context.Background(), false) }()
	time.Sleep(20 * time.Millisecond)

	s.Reset()
	close(release)
	require.NoError(t, <-waiter)
	assert.Equal(t, []string{"new-identity"}, ids(s.Items()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestForceReachesFetchFunc(t *testing.T) {
	var forced []bool
	s := New(func(_ context.Context, force bool) ([]item, error) {
		forced = append(forced, force)
		return nil, nil
	}, itemKey)

	require.NoError(t, s.Fetch(context.Background(), false))
	require.NoError(t, s.Fetch(context.Background(), true))
	assert.Equal(t, []bool{false, true}, forced)
}

func TestWaitingFetchHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := New(func(context.Context, bool) ([]item, error) {
		<-release
		return nil, nil
	}, itemKey)

	go s.Fetch(context.Background(), false)
	require.Eventually(t, s.Loading, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Fetch(ctx, true), context.Canceled)
}

func ids(items []item) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.ID)
	}
	return out
}
