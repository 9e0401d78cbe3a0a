package store

import (
	"context"

	"github.com/Async-Ng/ElecLab-sub001/internal/cache"
	"github.com/Async-Ng/ElecLab-sub001/internal/client"
	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/service"
)

// RequestStore is the caller's view of the request list. Writes go to the
// server first; the local list changes only after the server accepted them.
type RequestStore struct {
	*Store[entity.UnifiedRequest]
	api *client.Client
}

// pageSize is the largest page the server returns
const pageSize = 100

// NewRequestStore lists every request of the caller's route family, walking
// the server's pages.
func NewRequestStore(api *client.Client, opts ...Option) *RequestStore {
	fetch := func(ctx context.Context, force bool) ([]entity.UnifiedRequest, error) {
		var all []entity.UnifiedRequest
		seen := make(map[string]struct{})
		for page := 1; ; page++ {
			res, err := api.ListRequests(ctx, client.ListQuery{Page: page, PageSize: pageSize, Fresh: force})
			if err != nil {
				return nil, err
			}
			// rows may shift between pages while others write
			for _, r := range res.Items {
				if _, dup := seen[r.ID]; dup {
					continue
				}
				seen[r.ID] = struct{}{}
				all = append(all, r)
			}
			if len(res.Items) == 0 || page >= res.TotalPages {
				return all, nil
			}
		}
	}
	return &RequestStore{
		Store: New(fetch, func(r entity.UnifiedRequest) string { return r.ID }, opts...),
		api:   api,
	}
}

func (s *RequestStore) Create(ctx context.Context, in service.CreateRequestInput) (*entity.UnifiedRequest, error) {
	req, err := s.api.CreateRequest(ctx, in)
	if err != nil {
		return nil, err
	}
	s.Add(*req)
	return req, nil
}

func (s *RequestStore) Edit(ctx context.Context, id string, in service.UpdateRequestInput) (*entity.UnifiedRequest, error) {
	req, err := s.api.UpdateRequest(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.Update(*req)
	return req, nil
}

func (s *RequestStore) Delete(ctx context.Context, id string) error {
	if err := s.api.DeleteRequest(ctx, id); err != nil {
		return err
	}
	s.Remove(id)
	return nil
}

func (s *RequestStore) Review(ctx context.Context, id string, in service.ReviewInput) (*entity.UnifiedRequest, error) {
	return s.apply(s.api.Review(ctx, id, in))
}

func (s *RequestStore) Handle(ctx context.Context, id string) (*entity.UnifiedRequest, error) {
	return s.apply(s.api.Handle(ctx, id))
}

func (s *RequestStore) Complete(ctx context.Context, id string, in service.CompleteInput) (*entity.UnifiedRequest, error) {
	return s.apply(s.api.Complete(ctx, id, in))
}

func (s *RequestStore) apply(req *entity.UnifiedRequest, err error) (*entity.UnifiedRequest, error) {
	if err != nil {
		return nil, err
	}
	s.Update(*req)
	return req, nil
}

// NewMaterialStore caches the material catalog
func NewMaterialStore(api *client.Client, opts ...Option) *Store[entity.Material] {
	return New(func(ctx context.Context, force bool) ([]entity.Material, error) {
		return api.ListMaterials(ctx, readOptions(force)...)
	}, func(m entity.Material) string { return m.ID }, opts...)
}

// NewRoomStore caches the room catalog
func NewRoomStore(api *client.Client, opts ...Option) *Store[entity.Room] {
	return New(func(ctx context.Context, force bool) ([]entity.Room, error) {
		return api.ListRooms(ctx, readOptions(force)...)
	}, func(r entity.Room) string { return r.ID }, opts...)
}

// NewUserStore caches the user directory (elevated callers only)
func NewUserStore(api *client.Client, opts ...Option) *Store[entity.User] {
	return New(func(ctx context.Context, force bool) ([]entity.User, error) {
		return api.ListUsers(ctx, readOptions(force)...)
	}, func(u entity.User) string { return u.ID }, opts...)
}

func readOptions(force bool) []cache.FetchOption {
	if force {
		return []cache.FetchOption{cache.Bypass()}
	}
	return nil
}

// Session bundles the API client with one store per resource
type Session struct {
	API       *client.Client
	Requests  *RequestStore
	Materials *Store[entity.Material]
	Rooms     *Store[entity.Room]
	Users     *Store[entity.User]
}

// NewSession wires the stores to api
func NewSession(api *client.Client, opts ...Option) *Session {
	return &Session{
		API:       api,
		Requests:  NewRequestStore(api, opts...),
		Materials: NewMaterialStore(api, opts...),
		Rooms:     NewRoomStore(api, opts...),
		Users:     NewUserStore(api, opts...),
	}
}

// SwitchIdentity changes the caller. Cached responses and store contents are
// role-scoped, so both are dropped.
func (s *Session) SwitchIdentity(id identity.Identity) {
	s.API.SetIdentity(id)
	s.API.Cache().Clear()
	s.Reset()
}

// Reset empties every store
func (s *Session) Reset() {
	s.Requests.Reset()
	s.Materials.Reset()
	s.Rooms.Reset()
	s.Users.Reset()
}
