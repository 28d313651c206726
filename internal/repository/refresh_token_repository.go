package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/videoplaying/auth-service/internal/domain"
	"github.com/videoplaying/auth-service/internal/observability"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrDuplicateJTI         = errors.New("refresh token jti already recorded")
)

// RefreshTokenRepository is the append-heavy ledger of every refresh token
// ever minted. Rows are mutated exactly once, at rotation or invalidation,
// and never deleted while the owning session exists.
type RefreshTokenRepository interface {
	Record(ctx context.Context, t *domain.RefreshToken) error
	Find(ctx context.Context, jti string) (*domain.RefreshToken, error)
	// Rotate atomically revokes the old row (only if it still belongs to
	// sessionID and has never been revoked) and inserts the replacement.
	// Two concurrent rotations of the same jti get exactly one winner; the
	// loser sees ErrRefreshTokenNotFound.
	Rotate(ctx context.Context, oldJTI, sessionID string, next *domain.RefreshToken) error
}

type GormRefreshTokenRepository struct{ db *gorm.DB }

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &GormRefreshTokenRepository{db: db}
}

func (r *GormRefreshTokenRepository) Record(ctx context.Context, t *domain.RefreshToken) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.RecordRepositoryOperation(ctx, "refresh_token", "record", "conflict")
			return ErrDuplicateJTI
		}
		observability.RecordRepositoryOperation(ctx, "refresh_token", "record", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "record", "success")
	return nil
}

func (r *GormRefreshTokenRepository) Find(ctx context.Context, jti string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.WithContext(ctx).Where("jti = ?", jti).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "refresh_token", "find", "not_found")
			return nil, ErrRefreshTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "refresh_token", "find", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "find", "success")
	return &t, nil
}

func (r *GormRefreshTokenRepository) Rotate(ctx context.Context, oldJTI, sessionID string, next *domain.RefreshToken) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional update instead of a row lock: the revoked_at IS NULL
		// guard makes the second of two racing rotations update zero rows,
		// on sqlite and postgres alike.
		res := tx.Model(&domain.RefreshToken{}).
			Where("jti = ? AND session_id = ? AND revoked_at IS NULL", oldJTI, sessionID).
			Updates(map[string]any{
				"revoked_at":      time.Now().UTC(),
				"replaced_by_jti": next.JTI,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefreshTokenNotFound
		}
		return tx.Create(next).Error
	})
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			observability.RecordRepositoryOperation(ctx, "refresh_token", "rotate", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "refresh_token", "rotate", "error")
		}
		return err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "rotate", "success")
	return nil
}
