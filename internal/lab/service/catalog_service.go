package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/apperr"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CatalogRepository is the read-only catalog persistence
type CatalogRepository interface {
	ListMaterials(ctx context.Context) ([]entity.Material, error)
	ListRooms(ctx context.Context) ([]entity.Room, error)
	ListUsers(ctx context.Context) ([]entity.User, error)
}

const (
	catalogKeyMaterials = "eleclab:catalog:materials"
	catalogKeyRooms     = "eleclab:catalog:rooms"
	catalogKeyUsers     = "eleclab:catalog:users"
)

// CatalogService 物料/教室/用户目录服务, cache-aside through Redis when configured
type CatalogService struct {
	repo   CatalogRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService 创建目录服务; rdb may be nil
func NewCatalogService(repo CatalogRepository, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, rdb: rdb, ttl: ttl, logger: logger}
}

// ListMaterials 获取物料列表
func (s *CatalogService) ListMaterials(ctx context.Context) ([]entity.Material, error) {
	return cached(ctx, s, catalogKeyMaterials, s.repo.ListMaterials)
}

// ListRooms 获取教室列表
func (s *CatalogService) ListRooms(ctx context.Context) ([]entity.Room, error) {
	return cached(ctx, s, catalogKeyRooms, s.repo.ListRooms)
}

// ListUsers 获取用户列表
func (s *CatalogService) ListUsers(ctx context.Context) ([]entity.User, error) {
	return cached(ctx, s, catalogKeyUsers, s.repo.ListUsers)
}

// Invalidate drops every cached catalog list
func (s *CatalogService) Invalidate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, catalogKeyMaterials, catalogKeyRooms, catalogKeyUsers).Err()
}

func cached[T any](ctx context.Context, s *CatalogService, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var items []T
			if err := json.Unmarshal(raw, &items); err == nil {
				return items, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	items, err := load(ctx)
	if err != nil {
		s.logger.Error("load catalog failed", zap.String("key", key), zap.Error(err))
		return nil, apperr.Persistence("load catalog", err)
	}
	if items == nil {
		items = []T{}
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(items); err == nil {
			if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
				s.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return items, nil
}
