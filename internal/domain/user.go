package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity root. Email and username are stored lowercased so the
// unique indexes double as case-insensitive uniqueness.
type User struct {
	ID           string  `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string  `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Username     string  `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string  `gorm:"size:255;not null" json:"-"`
	DisplayName  *string `gorm:"size:128" json:"display_name,omitempty"`
	AvatarURL    *string `gorm:"size:500" json:"avatar_url,omitempty"`
	IsActive     bool    `gorm:"not null;default:true" json:"is_active"`

	// Linked federated identity, if the user ever signed in through the
	// external provider. Subject ids are unique when present.
	ExternalSubject *string `gorm:"size:255;uniqueIndex" json:"-"`
	ExternalEmail   *string `gorm:"size:320" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sessions []Session `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
