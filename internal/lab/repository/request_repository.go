package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"gorm.io/gorm"
)

// RequestFilter 列表过滤条件
type RequestFilter struct {
	RequesterID string
	Type        string
	Status      string
	Priority    string
	Keyword     string
}

// RequestRepository 统一请求仓储
type RequestRepository struct {
	db *gorm.DB
}

// NewRequestRepository 创建统一请求仓储
func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// FindByID 根据ID查找请求
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*entity.UnifiedRequest, error) {
	var req entity.UnifiedRequest
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// List 获取请求列表
func (r *RequestRepository) List(ctx context.Context, filter RequestFilter, page, pageSize int) ([]entity.UnifiedRequest, int64, error) {
	var items []entity.UnifiedRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.UnifiedRequest{})

	if filter.RequesterID != "" {
		query = query.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.Keyword != "" {
		query = query.Where("title ILIKE ?", "%"+filter.Keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if pageSize > 0 {
		query = query.Offset((page - 1) * pageSize).Limit(pageSize)
	}
	err := query.
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// Create 创建请求
func (r *RequestRepository) Create(ctx context.Context, req *entity.UnifiedRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// UpdatePending 更新待审核请求的可编辑字段，以状态和版本号为条件
func (r *RequestRepository) UpdatePending(ctx context.Context, req *entity.UnifiedRequest, expectedVersion int) error {
	res := r.db.WithContext(ctx).
		Model(&entity.UnifiedRequest{}).
		Where("id = ? AND status = ? AND version = ?", req.ID, entity.RequestStatusPending, expectedVersion).
		Updates(map[string]interface{}{
			"title":       req.Title,
			"description": req.Description,
			"priority":    req.Priority,
			"materials":   req.Materials,
			"attachments": req.Attachments,
			"room_id":     req.RoomID,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Transition 条件状态流转：仅当当前状态为 from 时写入
func (r *RequestRepository) Transition(ctx context.Context, id string, from, to entity.RequestStatus, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).
		Model(&entity.UnifiedRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// DeletePending 删除待审核请求
func (r *RequestRepository) DeletePending(ctx context.Context, id, requesterID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND requester_id = ? AND status = ?", id, requesterID, entity.RequestStatusPending).
		Delete(&entity.UnifiedRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// AddActivity 记录操作日志
func (r *RequestRepository) AddActivity(ctx context.Context, activity *entity.RequestActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

// ListActivities 获取请求操作日志
func (r *RequestRepository) ListActivities(ctx context.Context, requestID string) ([]entity.RequestActivity, error) {
	var items []entity.RequestActivity
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
