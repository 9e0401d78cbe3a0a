// Package store holds per-resource client-side lists on top of the API client.
//
// A Store adds a freshness window to the request cache below it and applies
// local mutations only after the server acknowledged them.
package store

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a fetched list counts as fresh
const DefaultTTL = 5 * time.Minute

// FetchFunc loads the whole list. force is set when the caller asked to
// ignore freshness; implementations skip any response cache below them.
type FetchFunc[T any] func(ctx context.Context, force bool) ([]T, error)

// Store is a goroutine-safe list of T keyed by key(T)
type Store[T any] struct {
	fetchFn FetchFunc[T]
	key     func(T) string
	ttl     time.Duration
	now     func() time.Time

	mu          sync.RWMutex
	items       []T
	loading     chan struct{} // non-nil while a fetch runs; closed when it ends
	lastFetchAt time.Time
	err         error
	generation  uint64

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int
}

// Option configures a Store
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a store loading its list with fetch and identifying items with key
func New[T any](fetch FetchFunc[T], key func(T) string, opts ...Option) *Store[T] {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		fetchFn: fetch,
		key:     key,
		ttl:     o.ttl,
		now:     o.now,
		subs:    make(map[int]func()),
	}
}

// Fetch loads the list unless it is still fresh. force ignores freshness.
// A call made while another fetch runs waits for that fetch instead of
// starting a second one. If the store is Reset while it waits, the joined
// result is discarded and Fetch loads again.
func (s *Store[T]) Fetch(ctx context.Context, force bool) error {
	s.mu.Lock()
	for s.loading != nil {
		wait, gen := s.loading, s.generation
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		if s.generation == gen {
			err := s.err
			s.mu.Unlock()
			return err
		}
	}
	if !force && !s.lastFetchAt.IsZero() && s.now().Sub(s.lastFetchAt) < s.ttl {
		s.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	s.loading = done
	gen := s.generation
	s.mu.Unlock()
	s.notify()

	items, err := s.fetchFn(ctx, force)

	s.mu.Lock()
	if s.loading == done {
		s.loading = nil
	}
	// a Reset during the fetch discards its result
	if gen == s.generation {
		if err != nil {
			s.err = err
		} else {
			s.items = items
			s.lastFetchAt = s.now()
			s.err = nil
		}
	}
	s.mu.Unlock()
	close(done)
	s.notify()
	return err
}

// Items returns a copy of the current list
func (s *Store[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the item with key k
func (s *Store[T]) Get(k string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if s.key(it) == k {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Loading reports whether a fetch is running
func (s *Store[T]) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading != nil
}

// LastError is the error of the last fetch, nil after a success
func (s *Store[T]) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// LastFetchAt is when the list was last loaded; zero if never
func (s *Store[T]) LastFetchAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetchAt
}

// Add prepends an acknowledged item, replacing any item with the same key
func (s *Store[T]) Add(item T) {
	s.mu.Lock()
	k := s.key(item)
	out := make([]T, 0, len(s.items)+1)
	out = append(out, item)
	for _, it := range s.items {
		if s.key(it) != k {
			out = append(out, it)
		}
	}
	s.items = out
	s.mu.Unlock()
	s.notify()
}

// Update replaces the item with the same key; unknown items are ignored
func (s *Store[T]) Update(item T) bool {
	s.mu.Lock()
	k := s.key(item)
	found := false
	for i, it := range s.items {
		if s.key(it) == k {
			s.items[i] = item
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify()
	}
	return found
}

// Remove drops the item with key k
func (s *Store[T]) Remove(k string) bool {
	s.mu.Lock()
	found := false
	for i, it := range s.items {
		if s.key(it) == k {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify()
	}
	return found
}

// Reset forgets everything, e.g. on sign-out or identity switch
func (s *Store[T]) Reset() {
	s.mu.Lock()
	s.items = nil
	s.lastFetchAt = time.Time{}
	s.err = nil
	s.generation++
	// waiters of the running fetch still see its done channel close
	s.loading = nil
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers fn to run after every state change and returns a
// function that removes it. fn runs on the goroutine that made the change.
func (s *Store[T]) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store[T]) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
