package repository

import (
	"context"

	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"gorm.io/gorm"
)

// CatalogRepository 物料/教室/用户只读仓储
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建只读仓储
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListMaterials 获取物料列表
func (r *CatalogRepository) ListMaterials(ctx context.Context) ([]entity.Material, error) {
	var items []entity.Material
	err := r.db.WithContext(ctx).Order("code ASC").Find(&items).Error
	return items, err
}

// ListRooms 获取教室列表
func (r *CatalogRepository) ListRooms(ctx context.Context) ([]entity.Room, error) {
	var items []entity.Room
	err := r.db.WithContext(ctx).Order("code ASC").Find(&items).Error
	return items, err
}

// ListUsers 获取用户列表
func (r *CatalogRepository) ListUsers(ctx context.Context) ([]entity.User, error) {
	var items []entity.User
	err := r.db.WithContext(ctx).
		Where("status = ?", "active").
		Order("name ASC").
		Find(&items).Error
	return items, err
}
