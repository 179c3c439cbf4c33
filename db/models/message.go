package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is one conversation turn, inbound or bot-originated. Rows are
// append-only and never mutated after creation.
type Message struct {
	ID string `gorm:"primaryKey;type:text"`

	IdentityID string   `gorm:"type:text;not null;index"`
	Identity   Identity `gorm:"foreignKey:IdentityID;references:ID;constraint:OnDelete:CASCADE"`

	// Platform message id. Nil for outbound pushes (the platform does not
	// return one).
	LineMessageID *string `gorm:"type:text"`

	// text|sticker|image|... as reported by the platform.
	Kind string `gorm:"type:text;not null"`

	Text *string `gorm:"type:text"`

	// Serialized snapshot of the inbound event or outbound payload.
	Raw string `gorm:"type:text;not null"`

	// True for messages received from the platform, false for bot replies
	// and pushes.
	FromUser bool `gorm:"not null"`

	CreatedAt int64 `gorm:"autoCreateTime"`
}

func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = u.String()
	}
	return nil
}
