// Package cache memoises outbound calls by (method, URL, body) with a TTL and
// collapses concurrent identical calls into one.
//
// A Cache is an explicit instance: construct one per process (or per
// identity) and pass it to the clients that need it. Keys carry no caller
// identity, so Clear must be called whenever the identity changes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultLoadTimeout = 30 * time.Second
)

// Key identifies one outbound call
type Key struct {
	Method string
	URL    string
	Body   []byte
}

// String renders the cache key: METHOD URL[#sha256(body)].
func (k Key) String() string {
	s := strings.ToUpper(k.Method) + " " + k.URL
	if len(k.Body) == 0 {
		return s
	}
	sum := sha256.Sum256(k.Body)
	return s + "#" + hex.EncodeToString(sum[:])
}

// Loader performs the underlying call
type Loader func(ctx context.Context) ([]byte, error)

type entry struct {
	url      string
	value    []byte
	storedAt time.Time
}

type flight struct {
	url string
	// set by Invalidate or Clear while the load runs; the result is then not stored
	invalidated bool
}

// Cache is a TTL cache with in-flight deduplication
type Cache struct {
	ttl         time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu       sync.Mutex
	entries  map[string]entry
	inflight map[string]*flight
	group    singleflight.Group
}

// Option configures a Cache
type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLoadTimeout bounds a shared load; zero disables the bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Cache) { c.loadTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a Cache
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:         DefaultTTL,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
		logger:      zap.NewNop(),
		entries:     make(map[string]entry),
		inflight:    make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type fetchOptions struct {
	bypass  bool
	noStore bool
}

// FetchOption tunes a single Fetch
type FetchOption func(*fetchOptions)

// Bypass skips the cached value but still joins an in-flight call.
func Bypass() FetchOption {
	return func(o *fetchOptions) { o.bypass = true }
}

// NoStore deduplicates without caching the result; used for mutations.
func NoStore() FetchOption {
	return func(o *fetchOptions) {
		o.bypass = true
		o.noStore = true
	}
}

// Fetch returns the cached value for key, joins an in-flight call for key,
// or runs load. Failures are never cached and reach every waiter unchanged.
// The returned slice is shared between waiters and must not be modified.
func (c *Cache) Fetch(ctx context.Context, key Key, load Loader, opts ...FetchOption) ([]byte, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}
	k := key.String()

	if !o.bypass {
		if v, ok := c.lookup(k); ok {
			metrics.RecordCacheEvent("hit")
			return v, nil
		}
	}

	ch := c.group.DoChan(k, func() (interface{}, error) {
		return c.load(ctx, k, key.URL, load, o.noStore)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordCacheEvent("shared")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		v, _ := res.Val.([]byte)
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, k, url string, load Loader, noStore bool) ([]byte, error) {
	f := &flight{url: url}
	c.mu.Lock()
	c.inflight[k] = f
	c.mu.Unlock()

	metrics.RecordCacheEvent("miss")

	lctx := context.WithoutCancel(ctx)
	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(lctx, c.loadTimeout)
		defer cancel()
	}

	v, err := load(lctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[k] == f {
		delete(c.inflight, k)
	}
	if err != nil {
		metrics.RecordCacheEvent("error")
		c.logger.Debug("cache load failed", zap.String("key", k), zap.Error(err))
		return nil, err
	}
	// an invalidation during the load means the value may already be stale
	if !noStore && !f.invalidated {
		c.entries[k] = entry{url: url, value: v, storedAt: c.now()}
	}
	return v, nil
}

func (c *Cache) lookup(k string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, k)
		return nil, false
	}
	return e.value, true
}

// Invalidate drops entries and in-flight markers whose URL contains substr.
func (c *Cache) Invalidate(substr string) int {
	return c.invalidate(func(url string) bool { return strings.Contains(url, substr) })
}

// InvalidateMatch drops entries and in-flight markers whose URL matches re.
func (c *Cache) InvalidateMatch(re *regexp.Regexp) int {
	return c.invalidate(re.MatchString)
}

func (c *Cache) invalidate(match func(string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if match(e.url) {
			delete(c.entries, k)
			n++
		}
	}
	for k, f := range c.inflight {
		if match(f.url) {
			f.invalidated = true
			delete(c.inflight, k)
			c.group.Forget(k)
			n++
		}
	}
	if n > 0 {
		metrics.RecordCacheEvent("invalidate")
	}
	return n
}

// Clear drops every entry and in-flight marker.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, f := range c.inflight {
		f.invalidated = true
		c.group.Forget(k)
	}
	c.entries = make(map[string]entry)
	c.inflight = make(map[string]*flight)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
