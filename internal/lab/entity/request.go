package entity

import (
	"time"

	"gorm.io/datatypes"
)

// RequestType 请求类型
type RequestType string

// General family
const (
	RequestTypeDocuments       RequestType = "documents"
	RequestTypeRoomBooking     RequestType = "room_booking"
	RequestTypeTimetableChange RequestType = "timetable_change"
	RequestTypeOther           RequestType = "other"
)

// Material family
const (
	RequestTypeMaterialAllocation RequestType = "material_allocation"
	RequestTypeMaterialRepair     RequestType = "material_repair"
)

// Family groups request types that share a lifecycle
type Family string

const (
	FamilyGeneral  Family = "general"
	FamilyMaterial Family = "material"
)

var requestFamilies = map[RequestType]Family{
	RequestTypeDocuments:          FamilyGeneral,
	RequestTypeRoomBooking:        FamilyGeneral,
	RequestTypeTimetableChange:    FamilyGeneral,
	RequestTypeOther:              FamilyGeneral,
	RequestTypeMaterialAllocation: FamilyMaterial,
	RequestTypeMaterialRepair:     FamilyMaterial,
}

// Valid reports whether t belongs to the closed taxonomy
func (t RequestType) Valid() bool {
	_, ok := requestFamilies[t]
	return ok
}

// Family returns the family of t; unknown types report ""
func (t RequestType) Family() Family {
	return requestFamilies[t]
}

// RequestTypes lists every known type
func RequestTypes() []RequestType {
	return []RequestType{
		RequestTypeDocuments,
		RequestTypeRoomBooking,
		RequestTypeTimetableChange,
		RequestTypeOther,
		RequestTypeMaterialAllocation,
		RequestTypeMaterialRepair,
	}
}

// RequestStatus 请求状态
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusApproved   RequestStatus = "approved"
	RequestStatusRejected   RequestStatus = "rejected"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusCompleted  RequestStatus = "completed"
)

// Priority 优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// MinDescriptionLength is the default minimum description length in runes
const MinDescriptionLength = 10

// MaterialLine 物料明细
type MaterialLine struct {
	MaterialID string `json:"material_id"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason"`
}

// Attachment is metadata only; file bytes live elsewhere
type Attachment struct {
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url,omitempty"`
}

// UnifiedRequest 统一请求
type UnifiedRequest struct {
	ID          string        `json:"id" gorm:"primaryKey;size:32"`
	RequesterID string        `json:"requester_id" gorm:"size:32;not null;index"`
	Type        RequestType   `json:"type" gorm:"size:32;not null;index"`
	Title       string        `json:"title" gorm:"size:256;not null"`
	Description string        `json:"description" gorm:"type:text;not null"`
	Priority    Priority      `json:"priority" gorm:"size:16;not null;default:medium"`
	Status      RequestStatus `json:"status" gorm:"size:16;not null;default:pending;index"`

	Materials   datatypes.JSONSlice[MaterialLine] `json:"materials,omitempty" gorm:"type:jsonb"`
	RoomID      string                            `json:"room_id,omitempty" gorm:"size:32"`
	Attachments datatypes.JSONSlice[Attachment]   `json:"attachments,omitempty" gorm:"type:jsonb"`

	ReviewedBy string     `json:"reviewed_by,omitempty" gorm:"size:32"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReviewNote string     `json:"review_note,omitempty" gorm:"type:text"`

	// material family only
	HandledBy      string     `json:"handled_by,omitempty" gorm:"size:32"`
	HandledAt      *time.Time `json:"handled_at,omitempty"`
	CompletedBy    string     `json:"completed_by,omitempty" gorm:"size:32"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletionNote string     `json:"completion_note,omitempty" gorm:"type:text"`

	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UnifiedRequest) TableName() string {
	return "unified_requests"
}

// Family returns the family of the request type
func (r *UnifiedRequest) Family() Family {
	return r.Type.Family()
}

// Payload is the family-specific part of a request
type Payload interface {
	Family() Family
	apply(r *UnifiedRequest)
}

// GeneralPayload carries attachments for general-family requests
type GeneralPayload struct {
	Attachments []Attachment
}

func (GeneralPayload) Family() Family { return FamilyGeneral }

func (p GeneralPayload) apply(r *UnifiedRequest) {
	r.Attachments = p.Attachments
	r.Materials = nil
}

// MaterialPayload carries the material lines of a material-family request
type MaterialPayload struct {
	Materials []MaterialLine
}

func (MaterialPayload) Family() Family { return FamilyMaterial }

func (p MaterialPayload) apply(r *UnifiedRequest) {
	r.Materials = p.Materials
	r.Attachments = nil
}

// ApplyPayload overwrites the family-specific fields of r with p
func (r *UnifiedRequest) ApplyPayload(p Payload) {
	p.apply(r)
}

// Payload returns the family-specific view of r
func (r *UnifiedRequest) Payload() Payload {
	if r.Family() == FamilyMaterial {
		return MaterialPayload{Materials: r.Materials}
	}
	return GeneralPayload{Attachments: r.Attachments}
}
