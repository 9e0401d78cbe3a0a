package entity

import "time"

// RequestActivity 请求操作日志
type RequestActivity struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	RequestID  string    `json:"request_id" gorm:"size:32;not null;index"`
	Action     string    `json:"action" gorm:"size:32;not null"`
	FromStatus string    `json:"from_status" gorm:"size:16"`
	ToStatus   string    `json:"to_status" gorm:"size:16"`
	Note       string    `json:"note" gorm:"type:text"`
	OperatorID string    `json:"operator_id" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RequestActivity) TableName() string {
	return "request_activities"
}

// Activity actions
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionReview   = "review"
	ActionHandle   = "handle"
	ActionComplete = "complete"
)
