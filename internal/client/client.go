// Package client is the authenticated HTTP client for the request API.
//
// Every call attaches the caller's identity headers, resolves the route
// family from the caller's roles, and goes through the shared request cache:
// reads are cached and deduplicated, mutations are deduplicated only and
// invalidate cached request listings on success.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/apperr"
	"github.com/Async-Ng/ElecLab-sub001/internal/cache"
	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/Async-Ng/ElecLab-sub001/internal/routing"
	"go.uber.org/zap"
)

// Resource names
const (
	ResourceRequests  = "requests"
	ResourceMaterials = "materials"
	ResourceRooms     = "rooms"
	ResourceUsers     = "users"
)

// Client talks to the request API as one identity at a time
type Client struct {
	baseURL string
	http    *http.Client
	cache   *cache.Cache
	router  routing.Router
	logger  *zap.Logger

	mu              sync.RWMutex
	id              identity.Identity
	forceRestricted bool
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithBasePath overrides the API prefix (default /api/v1)
func WithBasePath(p string) Option {
	return func(c *Client) { c.router = routing.New(p) }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for baseURL sharing cache c
func New(baseURL string, c *cache.Cache, opts ...Option) *Client {
	cl := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		cache:   c,
		router:  routing.New(routing.DefaultBasePath),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// SetIdentity switches the caller. Cached responses belong to the previous
// identity; callers normally go through store.Session.SwitchIdentity, which
// also clears the cache.
func (c *Client) SetIdentity(id identity.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

// Identity returns the current caller
func (c *Client) Identity() identity.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// SetForceRestricted narrows an elevated caller to the user route family
func (c *Client) SetForceRestricted(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forceRestricted = v
}

// Cache returns the shared request cache
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// Path resolves resource for the current caller, e.g. /api/v1/admin/requests
func (c *Client) Path(resource string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.router.Resolve(resource, c.id.Roles, c.forceRestricted)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// get performs a cached GET and decodes the envelope data into out
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}, opts ...cache.FetchOption) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.call(ctx, http.MethodGet, u, nil, out, opts...)
}

// mutate performs a deduplicated, never cached, write and invalidates every
// cached URL containing invalidate.
func (c *Client) mutate(ctx context.Context, method, path string, body interface{}, out interface{}, invalidate string) error {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		raw = b
	}
	if err := c.call(ctx, method, c.baseURL+path, raw, out, cache.NoStore()); err != nil {
		return err
	}
	if invalidate != "" {
		n := c.cache.Invalidate(invalidate)
		c.logger.Debug("invalidated cached responses", zap.String("match", invalidate), zap.Int("count", n))
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, u string, body []byte, out interface{}, opts ...cache.FetchOption) error {
	id := c.Identity()
	key := cache.Key{Method: method, URL: u, Body: body}

	data, err := c.cache.Fetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, id, method, u, body)
	}, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, u, err)
	}
	return nil
}

// roundTrip returns the envelope data of a 2xx response; any other status is
// turned into a classified *apperr.Error.
func (c *Client) roundTrip(ctx context.Context, id identity.Identity, method, u string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id.UserID != "" {
		req.Header.Set(identity.HeaderUserID, id.UserID)
		req.Header.Set(identity.HeaderRole, identity.EncodeRoles(id.Roles))
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("url", u),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &apperr.Error{Kind: apperr.FromStatus(resp.StatusCode), Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode envelope: %w", decodeErr)
	}
	return env.Data, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
