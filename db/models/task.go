package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"

	// Default (mid) priority for extracted tasks.
	TaskPriorityDefault = 1
)

// Task is an actionable item extracted from a conversation message.
type Task struct {
	ID string `gorm:"primaryKey;type:text"`

	IdentityID string   `gorm:"type:text;not null;index"`
	Identity   Identity `gorm:"foreignKey:IdentityID;references:ID;constraint:OnDelete:CASCADE"`

	Title string `gorm:"type:text;not null"`

	DueAt *time.Time `gorm:"index"`

	// pending|completed
	Status string `gorm:"type:text;not null;index;default:'pending'"`

	Priority int `gorm:"not null;default:1"`

	CreatedAt int64 `gorm:"autoCreateTime"`
	UpdatedAt int64 `gorm:"autoUpdateTime"`
}

func (t *Task) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	return nil
}
