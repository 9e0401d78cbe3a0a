package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Async-Ng/ElecLab-sub001/internal/apperr"
	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/events"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/repository"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/workflow"
	"github.com/Async-Ng/ElecLab-sub001/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestRepository is the persistence the request service needs
type RequestRepository interface {
	FindByID(ctx context.Context, id string) (*entity.UnifiedRequest, error)
	List(ctx context.Context, filter repository.RequestFilter, page, pageSize int) ([]entity.UnifiedRequest, int64, error)
	Create(ctx context.Context, req *entity.UnifiedRequest) error
	UpdatePending(ctx context.Context, req *entity.UnifiedRequest, expectedVersion int) error
	Transition(ctx context.Context, id string, from, to entity.RequestStatus, fields map[string]interface{}) error
	DeletePending(ctx context.Context, id, requesterID string) error
	AddActivity(ctx context.Context, activity *entity.RequestActivity) error
	ListActivities(ctx context.Context, requestID string) ([]entity.RequestActivity, error)
}

// RequestService 统一请求服务
type RequestService struct {
	repo       RequestRepository
	publisher  events.Publisher
	policy     workflow.Policy
	minDescLen int
	logger     *zap.Logger
	now        func() time.Time
}

// RequestServiceOption configures a RequestService
type RequestServiceOption func(*RequestService)

// WithPolicy sets the authorization policy
func WithPolicy(p workflow.Policy) RequestServiceOption {
	return func(s *RequestService) { s.policy = p }
}

// WithMinDescriptionLength overrides the minimum description length
func WithMinDescriptionLength(n int) RequestServiceOption {
	return func(s *RequestService) {
		if n > 0 {
			s.minDescLen = n
		}
	}
}

// WithPublisher sets the event sink
func WithPublisher(p events.Publisher) RequestServiceOption {
	return func(s *RequestService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) RequestServiceOption {
	return func(s *RequestService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNow overrides the clock
func WithNow(now func() time.Time) RequestServiceOption {
	return func(s *RequestService) { s.now = now }
}

// NewRequestService 创建统一请求服务
func NewRequestService(repo RequestRepository, opts ...RequestServiceOption) *RequestService {
	s := &RequestService{
		repo:       repo,
		publisher:  events.Nop{},
		policy:     workflow.DefaultPolicy(),
		minDescLen: entity.MinDescriptionLength,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequestInput 创建请求
type CreateRequestInput struct {
	Type        entity.RequestType    `json:"type" binding:"required,request_type"`
	Title       string                `json:"title" binding:"required,max=256"`
	Description string                `json:"description" binding:"required"`
	Priority    entity.Priority       `json:"priority" binding:"omitempty,priority"`
	Materials   []entity.MaterialLine `json:"materials"`
	RoomID      string                `json:"room_id"`
	Attachments []entity.Attachment   `json:"attachments"`
}

// UpdateRequestInput 更新请求; nil fields stay unchanged
type UpdateRequestInput struct {
	Title       *string               `json:"title" binding:"omitempty,max=256"`
	Description *string               `json:"description"`
	Priority    *entity.Priority      `json:"priority" binding:"omitempty,priority"`
	Materials   []entity.MaterialLine `json:"materials"`
	RoomID      *string               `json:"room_id"`
	Attachments []entity.Attachment   `json:"attachments"`
	// Version, when set, must match the stored version
	Version int `json:"version"`
}

// ReviewInput 审核请求
type ReviewInput struct {
	Status     entity.RequestStatus `json:"status" binding:"required,oneof=approved rejected"`
	ReviewNote string               `json:"review_note"`
}

// CompleteInput 完成请求
type CompleteInput struct {
	CompletionNote string `json:"completion_note"`
}

// ListScope selects which requests List returns
type ListScope int

const (
	// ScopeOwn lists the caller's requests
	ScopeOwn ListScope = iota
	// ScopeAll lists every request; elevated callers only
	ScopeAll
)

// ListRequestsInput 列表查询
type ListRequestsInput struct {
	Scope    ListScope
	Type     string
	Status   string
	Priority string
	Keyword  string
	Page     int
	PageSize int
}

// RequestListResult 请求列表结果
type RequestListResult struct {
	Items      []entity.UnifiedRequest `json:"items"`
	Total      int64                   `json:"total"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"page_size"`
	TotalPages int                     `json:"total_pages"`
}

// List 获取请求列表
func (s *RequestService) List(ctx context.Context, caller identity.Identity, in ListRequestsInput) (*RequestListResult, error) {
	filter := repository.RequestFilter{
		Type:     in.Type,
		Status:   in.Status,
		Priority: in.Priority,
		Keyword:  in.Keyword,
	}
	switch in.Scope {
	case ScopeAll:
		if !caller.Elevated() {
			return nil, apperr.Authorization("listing all requests requires an elevated role")
		}
	default:
		filter.RequesterID = caller.UserID
	}
	if in.Page <= 0 {
		in.Page = 1
	}

	items, total, err := s.repo.List(ctx, filter, in.Page, in.PageSize)
	if err != nil {
		return nil, s.persistenceError("list requests", err)
	}
	if items == nil {
		items = []entity.UnifiedRequest{}
	}

	totalPages := 0
	if in.PageSize > 0 {
		totalPages = int(total) / in.PageSize
		if int(total)%in.PageSize > 0 {
			totalPages++
		}
	} else if total > 0 {
		totalPages = 1
	}

	return &RequestListResult{
		Items:      items,
		Total:      total,
		Page:       in.Page,
		PageSize:   in.PageSize,
		TotalPages: totalPages,
	}, nil
}

// Get 获取请求详情; requesters see their own, elevated callers see all
func (s *RequestService) Get(ctx context.Context, caller identity.Identity, id string) (*entity.UnifiedRequest, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Elevated() && req.RequesterID != caller.UserID {
		return nil, apperr.Authorization("request %s belongs to another user", id)
	}
	return req, nil
}

// ListActivities 获取请求操作日志
func (s *RequestService) ListActivities(ctx context.Context, caller identity.Identity, id string) ([]entity.RequestActivity, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	items, err := s.repo.ListActivities(ctx, id)
	if err != nil {
		return nil, s.persistenceError("list activities", err)
	}
	if items == nil {
		items = []entity.RequestActivity{}
	}
	return items, nil
}

// Create 创建请求
func (s *RequestService) Create(ctx context.Context, caller identity.Identity, in CreateRequestInput) (*entity.UnifiedRequest, error) {
	if caller.UserID == "" {
		return nil, apperr.Authentication("missing caller identity")
	}
	if !in.Type.Valid() {
		return nil, apperr.Validation("unknown request type %q", in.Type)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if err := s.validateDescription(in.Description); err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = entity.PriorityMedium
	}
	if !priority.Valid() {
		return nil, apperr.Validation("unknown priority %q", priority)
	}

	payload, err := buildPayload(in.Type, in.Materials, in.Attachments)
	if err != nil {
		return nil, err
	}
	if in.Type == entity.RequestTypeMaterialRepair && strings.TrimSpace(in.RoomID) == "" {
		return nil, apperr.Validation("room_id is required for %s", in.Type)
	}

	now := s.now()
	req := &entity.UnifiedRequest{
		ID:          newID(),
		RequesterID: caller.UserID,
		Type:        in.Type,
		Title:       title,
		Description: in.Description,
		Priority:    priority,
		Status:      entity.RequestStatusPending,
		RoomID:      strings.TrimSpace(in.RoomID),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	req.ApplyPayload(payload)

	if err := s.repo.Create(ctx, req); err != nil {
		metrics.RecordTransition(entity.ActionCreate, "", string(entity.RequestStatusPending), err)
		return nil, s.persistenceError("create request", err)
	}
	metrics.RecordTransition(entity.ActionCreate, "", string(entity.RequestStatusPending), nil)

	s.after(ctx, req, entity.ActionCreate, "", req.Status, caller.UserID, "")
	return req, nil
}

// Update 编辑请求: creator only, pending only
func (s *RequestService) Update(ctx context.Context, caller identity.Identity, id string, in UpdateRequestInput) (*entity.UnifiedRequest, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller, workflow.ActionEdit, req.RequesterID); err != nil {
		return nil, err
	}
	if err := workflow.Check(workflow.ActionEdit, req.Family(), req.Status, entity.RequestStatusPending); err != nil {
		return nil, err
	}
	if in.Version > 0 && in.Version != req.Version {
		return nil, apperr.Validation("request %s changed since version %d", id, in.Version)
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperr.Validation("title is required")
		}
		req.Title = title
	}
	if in.Description != nil {
		if err := s.validateDescription(*in.Description); err != nil {
			return nil, err
		}
		req.Description = *in.Description
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return nil, apperr.Validation("unknown priority %q", *in.Priority)
		}
		req.Priority = *in.Priority
	}
	if in.RoomID != nil {
		req.RoomID = strings.TrimSpace(*in.RoomID)
	}
	if req.Type == entity.RequestTypeMaterialRepair && req.RoomID == "" {
		return nil, apperr.Validation("room_id is required for %s", req.Type)
	}

	materials := []entity.MaterialLine(req.Materials)
	if in.Materials != nil {
		materials = in.Materials
	}
	attachments := []entity.Attachment(req.Attachments)
	if in.Attachments != nil {
		attachments = in.Attachments
	}
	payload, err := buildPayload(req.Type, materials, attachments)
	if err != nil {
		return nil, err
	}
	req.ApplyPayload(payload)

	expected := req.Version
	if err := s.repo.UpdatePending(ctx, req, expected); err != nil {
		metrics.RecordTransition(entity.ActionUpdate, string(req.Status), string(req.Status), err)
		if errors.Is(err, repository.ErrConflict) {
			return nil, staleError(id, req.Status)
		}
		return nil, s.persistenceError("update request", err)
	}
	metrics.RecordTransition(entity.ActionUpdate, string(req.Status), string(req.Status), nil)

	updated, err := s.reload(ctx, req, func(r *entity.UnifiedRequest) {
		r.Version = expected + 1
		r.UpdatedAt = s.now()
	})
	if err != nil {
		return nil, err
	}
	s.after(ctx, updated, entity.ActionUpdate, req.Status, req.Status, caller.UserID, "")
	return updated, nil
}

// Delete 删除请求: creator only, pending only
func (s *RequestService) Delete(ctx context.Context, caller identity.Identity, id string) error {
	req, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(caller, workflow.ActionDelete, req.RequesterID); err != nil {
		return err
	}
	if err := workflow.Check(workflow.ActionDelete, req.Family(), req.Status, workflow.StatusDeleted); err != nil {
		return err
	}
	if err := s.repo.DeletePending(ctx, id, caller.UserID); err != nil {
		metrics.RecordTransition(entity.ActionDelete, string(req.Status), string(workflow.StatusDeleted), err)
		if errors.Is(err, repository.ErrConflict) {
			return staleError(id, req.Status)
		}
		return s.persistenceError("delete request", err)
	}
	metrics.RecordTransition(entity.ActionDelete, string(req.Status), string(workflow.StatusDeleted), nil)

	s.after(ctx, req, entity.ActionDelete, req.Status, workflow.StatusDeleted, caller.UserID, "")
	return nil
}

// Review 审核: pending -> approved | rejected
func (s *RequestService) Review(ctx context.Context, caller identity.Identity, id string, in ReviewInput) (*entity.UnifiedRequest, error) {
	now := s.now()
	return s.transition(ctx, caller, id, workflow.ActionReview, in.Status, in.ReviewNote, func(r *entity.UnifiedRequest) map[string]interface{} {
		r.ReviewedBy = caller.UserID
		r.ReviewedAt = &now
		r.ReviewNote = in.ReviewNote
		return map[string]interface{}{
			"reviewed_by": caller.UserID,
			"reviewed_at": now,
			"review_note": in.ReviewNote,
		}
	})
}

// Handle 处理: approved -> processing, material family only
func (s *RequestService) Handle(ctx context.Context, caller identity.Identity, id string) (*entity.UnifiedRequest, error) {
	now := s.now()
	return s.transition(ctx, caller, id, workflow.ActionHandle, entity.RequestStatusProcessing, "", func(r *entity.UnifiedRequest) map[string]interface{} {
		r.HandledBy = caller.UserID
		r.HandledAt = &now
		return map[string]interface{}{
			"handled_by": caller.UserID,
			"handled_at": now,
		}
	})
}

// Complete 完成: processing -> completed, material family only
func (s *RequestService) Complete(ctx context.Context, caller identity.Identity, id string, in CompleteInput) (*entity.UnifiedRequest, error) {
	now := s.now()
	return s.transition(ctx, caller, id, workflow.ActionComplete, entity.RequestStatusCompleted, in.CompletionNote, func(r *entity.UnifiedRequest) map[string]interface{} {
		r.CompletedBy = caller.UserID
		r.CompletedAt = &now
		r.CompletionNote = in.CompletionNote
		return map[string]interface{}{
			"completed_by":    caller.UserID,
			"completed_at":    now,
			"completion_note": in.CompletionNote,
		}
	})
}

// transition runs find -> authorize -> check -> conditional write for the
// elevated actions. stamp sets the audit fields locally and returns the columns to write.
func (s *RequestService) transition(
	ctx context.Context,
	caller identity.Identity,
	id string,
	action workflow.Action,
	to entity.RequestStatus,
	note string,
	stamp func(r *entity.UnifiedRequest) map[string]interface{},
) (*entity.UnifiedRequest, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller, action, req.RequesterID); err != nil {
		return nil, err
	}
	from := req.Status
	if err := workflow.Check(action, req.Family(), from, to); err != nil {
		metrics.RecordTransition(string(action), string(from), string(to), err)
		return nil, err
	}

	fields := stamp(req)
	if err := s.repo.Transition(ctx, id, from, to, fields); err != nil {
		metrics.RecordTransition(string(action), string(from), string(to), err)
		if errors.Is(err, repository.ErrConflict) {
			return nil, staleError(id, from)
		}
		return nil, s.persistenceError(fmt.Sprintf("%s request", action), err)
	}
	metrics.RecordTransition(string(action), string(from), string(to), nil)

	updated, err := s.reload(ctx, req, func(r *entity.UnifiedRequest) {
		r.Status = to
		r.Version++
		r.UpdatedAt = s.now()
	})
	if err != nil {
		return nil, err
	}
	s.after(ctx, updated, string(action), from, to, caller.UserID, note)
	return updated, nil
}

// reload re-reads the row after a write; if the read fails the locally
// patched copy is returned since the write already committed.
func (s *RequestService) reload(ctx context.Context, local *entity.UnifiedRequest, patch func(*entity.UnifiedRequest)) (*entity.UnifiedRequest, error) {
	fresh, err := s.repo.FindByID(ctx, local.ID)
	if err == nil {
		return fresh, nil
	}
	s.logger.Warn("reload after write failed", zap.String("request_id", local.ID), zap.Error(err))
	patch(local)
	return local, nil
}

// after records the activity and publishes the change; both are best effort.
func (s *RequestService) after(ctx context.Context, req *entity.UnifiedRequest, action string, from, to entity.RequestStatus, operatorID, note string) {
	now := s.now()
	activity := &entity.RequestActivity{
		ID:         newID(),
		RequestID:  req.ID,
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(to),
		Note:       note,
		OperatorID: operatorID,
		CreatedAt:  now,
	}
	if err := s.repo.AddActivity(ctx, activity); err != nil {
		s.logger.Warn("record request activity failed",
			zap.String("request_id", req.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}

	ev := events.Event{
		Type:        events.EventTypeRequestUpdate,
		RequestID:   req.ID,
		RequesterID: req.RequesterID,
		Action:      action,
		FromStatus:  string(from),
		ToStatus:    string(to),
		OperatorID:  operatorID,
		OccurredAt:  now,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish request event failed",
			zap.String("request_id", req.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}

	s.logger.Info("request "+action,
		zap.String("request_id", req.ID),
		zap.String("operator_id", operatorID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func (s *RequestService) find(ctx context.Context, id string) (*entity.UnifiedRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("request %s not found", id)
		}
		return nil, s.persistenceError("find request", err)
	}
	return req, nil
}

func (s *RequestService) validateDescription(desc string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(desc)); n < s.minDescLen {
		return apperr.Validation("description must be at least %d characters", s.minDescLen)
	}
	return nil
}

func (s *RequestService) persistenceError(op string, err error) error {
	s.logger.Error(op+" failed", zap.Error(err))
	return apperr.Persistence(op, err)
}

// buildPayload validates the family-specific fields of t. Material lines of a
// general request and attachments of a material request are dropped.
func buildPayload(t entity.RequestType, materials []entity.MaterialLine, attachments []entity.Attachment) (entity.Payload, error) {
	switch t.Family() {
	case entity.FamilyMaterial:
		if len(materials) == 0 {
			return nil, apperr.Validation("%s requires at least one material line", t)
		}
		lines := make([]entity.MaterialLine, 0, len(materials))
		for i, m := range materials {
			m.MaterialID = strings.TrimSpace(m.MaterialID)
			if m.MaterialID == "" {
				return nil, apperr.Validation("materials[%d]: material_id is required", i)
			}
			if m.Quantity <= 0 {
				return nil, apperr.Validation("materials[%d]: quantity must be greater than 0", i)
			}
			lines = append(lines, m)
		}
		return entity.MaterialPayload{Materials: lines}, nil
	case entity.FamilyGeneral:
		return entity.GeneralPayload{Attachments: attachments}, nil
	}
	return nil, apperr.Validation("unknown request type %q", t)
}

func staleError(id string, from entity.RequestStatus) error {
	return apperr.Validation("request %s is no longer %s; reload and retry", id, from)
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
