package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one authenticated client. The opaque session secret handed to
// the client is never persisted; only its SHA-256 hex digest is stored, so a
// leaked database cannot be replayed against live sessions.
type Session struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string     `gorm:"type:uuid;index;not null" json:"user_id"`
	SecretHash string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt  *time.Time `gorm:"index" json:"revoked_at,omitempty"`

	RefreshTokens []RefreshToken `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Live reports whether the session is usable at the given instant:
// not revoked and not expired. Revocation is terminal.
func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
