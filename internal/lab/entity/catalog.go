package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Material 物料
type Material struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Code        string    `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"size:128;not null"`
	Category    string    `json:"category" gorm:"size:64"`
	Unit        string    `json:"unit" gorm:"size:16;not null;default:pcs"`
	Quantity    int       `json:"quantity" gorm:"not null;default:0"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Material) TableName() string {
	return "materials"
}

// Room 实验室/教室
type Room struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Building  string    `json:"building" gorm:"size:64"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Room) TableName() string {
	return "rooms"
}

// User 用户
type User struct {
	ID        string                      `json:"id" gorm:"primaryKey;size:32"`
	Name      string                      `json:"name" gorm:"size:64;not null"`
	Email     string                      `json:"email" gorm:"size:128"`
	Roles     datatypes.JSONSlice[string] `json:"roles" gorm:"type:jsonb"`
	Status    string                      `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
