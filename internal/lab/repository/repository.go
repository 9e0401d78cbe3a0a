package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a conditional write matched no row: the status or
	// version changed since the caller read the record.
	ErrConflict = errors.New("record changed concurrently")
)

// Repositories 仓库集合
type Repositories struct {
	Request *RequestRepository
	Catalog *CatalogRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Request: NewRequestRepository(db),
		Catalog: NewCatalogRepository(db),
	}
}
