package domain

import "time"

// RefreshToken is the ledger row behind one minted refresh JWT. The JWT
// itself is stateless; its jti claim joins it to this row so the server can
// rotate and revoke it, and detect a second presentation of a token that was
// already rotated away.
type RefreshToken struct {
	JTI       string    `gorm:"column:jti;size:64;primaryKey" json:"jti"`
	SessionID string    `gorm:"type:uuid;index;not null" json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`

	// Set exactly once, when the token is rotated away or invalidated.
	RevokedAt     *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	ReplacedByJTI *string    `gorm:"size:64" json:"replaced_by_jti,omitempty"`
}

// Active reports whether the token may still be rotated: never revoked and
// not past its expiry. At most one ledger row per session is active under
// correct client behavior.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}
