package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	IdentityKindUser  = "user"
	IdentityKindGroup = "group"
	IdentityKindRoom  = "room"

	DefaultTimezone = "Asia/Tokyo"
)

// Identity is a resolved conversational participant (individual or group),
// keyed by its immutable platform identifier. Identities are never deleted;
// an unfollow keeps the row and its history.
type Identity struct {
	ID string `gorm:"primaryKey;type:text"`

	LineID string `gorm:"type:text;not null;uniqueIndex"`
	Kind   string `gorm:"type:text;not null;default:'user'"`

	DisplayName string `gorm:"type:text;not null;default:''"`
	AvatarURL   string `gorm:"type:text;not null;default:''"`
	Timezone    string `gorm:"type:text;not null;default:'Asia/Tokyo'"`

	CreatedAt int64 `gorm:"autoCreateTime"`
	UpdatedAt int64 `gorm:"autoUpdateTime"`
}

func (i *Identity) BeforeCreate(_ *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Kind == "" {
		i.Kind = IdentityKindUser
	}
	if i.Timezone == "" {
		i.Timezone = DefaultTimezone
	}
	return nil
}
