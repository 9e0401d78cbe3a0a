package client

import (
	"context"
	"net/url"

	"github.com/Async-Ng/ElecLab-sub001/internal/cache"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/service"
)

// ListQuery filters a request listing
type ListQuery struct {
	Type     string
	Status   string
	Priority string
	Keyword  string
	Page     int
	PageSize int
	// Fresh skips the cached response but still joins an in-flight call
	Fresh bool
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("type", q.Type)
	set("status", q.Status)
	set("priority", q.Priority)
	set("keyword", q.Keyword)
	if q.Page > 0 {
		v.Set("page", itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", itoa(q.PageSize))
	}
	return v
}

// ListRequests lists requests visible in the caller's route family
func (c *Client) ListRequests(ctx context.Context, q ListQuery) (*service.RequestListResult, error) {
	var out service.RequestListResult
	var opts []cache.FetchOption
	if q.Fresh {
		opts = append(opts, cache.Bypass())
	}
	if err := c.get(ctx, c.Path(ResourceRequests), q.values(), &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRequest fetches one request
func (c *Client) GetRequest(ctx context.Context, id string) (*entity.UnifiedRequest, error) {
	var out entity.UnifiedRequest
	if err := c.get(ctx, c.Path(ResourceRequests)+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListActivities fetches the audit trail of a request
func (c *Client) ListActivities(ctx context.Context, id string) ([]entity.RequestActivity, error) {
	var out struct {
		Items []entity.RequestActivity `json:"items"`
	}
	if err := c.get(ctx, c.Path(ResourceRequests)+"/"+url.PathEscape(id)+"/activities", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateRequest submits a new request
func (c *Client) CreateRequest(ctx context.Context, in service.CreateRequestInput) (*entity.UnifiedRequest, error) {
	var out entity.UnifiedRequest
	if err := c.mutate(ctx, "POST", c.Path(ResourceRequests), in, &out, "/"+ResourceRequests); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRequest edits a pending request owned by the caller
func (c *Client) UpdateRequest(ctx context.Context, id string, in service.UpdateRequestInput) (*entity.UnifiedRequest, error) {
	var out entity.UnifiedRequest
	if err := c.mutate(ctx, "PUT", c.Path(ResourceRequests)+"/"+url.PathEscape(id), in, &out, "/"+ResourceRequests); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRequest deletes a pending request owned by the caller
func (c *Client) DeleteRequest(ctx context.Context, id string) error {
	return c.mutate(ctx, "DELETE", c.Path(ResourceRequests)+"/"+url.PathEscape(id), nil, nil, "/"+ResourceRequests)
}

// Review approves or rejects a pending request
func (c *Client) Review(ctx context.Context, id string, in service.ReviewInput) (*entity.UnifiedRequest, error) {
	return c.transition(ctx, id, "review", in)
}

// Handle moves an approved material request to processing
func (c *Client) Handle(ctx context.Context, id string) (*entity.UnifiedRequest, error) {
	return c.transition(ctx, id, "handle", nil)
}

// Complete finishes a material request in processing
func (c *Client) Complete(ctx context.Context, id string, in service.CompleteInput) (*entity.UnifiedRequest, error) {
	return c.transition(ctx, id, "complete", in)
}

func (c *Client) transition(ctx context.Context, id, action string, body interface{}) (*entity.UnifiedRequest, error) {
	var out entity.UnifiedRequest
	path := c.Path(ResourceRequests) + "/" + url.PathEscape(id) + "/" + action
	if err := c.mutate(ctx, "PUT", path, body, &out, "/"+ResourceRequests); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMaterials reads the material catalog; pass cache.Bypass() to skip a cached response
func (c *Client) ListMaterials(ctx context.Context, opts ...cache.FetchOption) ([]entity.Material, error) {
	var out struct {
		Items []entity.Material `json:"items"`
	}
	if err := c.get(ctx, c.Path(ResourceMaterials), nil, &out, opts...); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ListRooms reads the room catalog
func (c *Client) ListRooms(ctx context.Context, opts ...cache.FetchOption) ([]entity.Room, error) {
	var out struct {
		Items []entity.Room `json:"items"`
	}
	if err := c.get(ctx, c.Path(ResourceRooms), nil, &out, opts...); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ListUsers reads the user directory; it exists only in the elevated family
func (c *Client) ListUsers(ctx context.Context, opts ...cache.FetchOption) ([]entity.User, error) {
	var out struct {
		Items []entity.User `json:"items"`
	}
	if err := c.get(ctx, c.Path(ResourceUsers), nil, &out, opts...); err != nil {
		return nil, err
	}
	return out.Items, nil
}
