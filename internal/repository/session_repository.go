package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/videoplaying/auth-service/internal/domain"
	"github.com/videoplaying/auth-service/internal/observability"
)

// ErrSessionNotFound is returned for every kind of miss: unknown id, secret
// hash mismatch, revoked, expired. Callers cannot tell the cases apart, and
// that is intentional.
var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	// FindLive returns the session only if the id exists, the stored secret
	// hash matches, it is not revoked, and it is not expired.
	FindLive(ctx context.Context, id, secretHash string) (*domain.Session, error)
	// FindBySecretHash matches on the hash alone, regardless of liveness,
	// so logout stays idempotent on already-revoked sessions.
	FindBySecretHash(ctx context.Context, secretHash string) (*domain.Session, error)
	// Touch updates last_seen_at. Best effort: callers may drop failures.
	Touch(ctx context.Context, id string, at time.Time) error
	// Revoke sets revoked_at on the session and all of its refresh tokens
	// in one transaction. Idempotent: an already-revoked session keeps its
	// original revocation time.
	Revoke(ctx context.Context, id string, at time.Time) error
	ListActiveByUserID(ctx context.Context, userID string) ([]domain.Session, error)
	RevokeOthersByUser(ctx context.Context, userID, keepID string, at time.Time) (int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindLive(ctx context.Context, id, secretHash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("id = ? AND secret_hash = ? AND revoked_at IS NULL AND expires_at > ?", id, secretHash, time.Now().UTC()).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_live", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_live", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_live", "success")
	return &s, nil
}

func (r *GormSessionRepository) FindBySecretHash(ctx context.Context, secretHash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("secret_hash = ?", secretHash).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_secret_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_secret_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_secret_hash", "success")
	return &s, nil
}

func (r *GormSessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "touch", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "touch", "success")
	return nil
}

func (r *GormSessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Session{}).
			Where("id = ? AND revoked_at IS NULL", id).
			Update("revoked_at", at).Error; err != nil {
			return err
		}
		return tx.Model(&domain.RefreshToken{}).
			Where("session_id = ? AND revoked_at IS NULL", id).
			Update("revoked_at", at).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke", "success")
	return nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID string) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now().UTC()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "success")
	return sessions, nil
}

func (r *GormSessionRepository) RevokeOthersByUser(ctx context.Context, userID, keepID string, at time.Time) (int64, error) {
	var revoked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&domain.Session{}).
			Where("user_id = ? AND id <> ? AND revoked_at IS NULL", userID, keepID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		res := tx.Model(&domain.Session{}).
			Where("id IN ?", ids).
			Update("revoked_at", at)
		if res.Error != nil {
			return res.Error
		}
		revoked = res.RowsAffected
		return tx.Model(&domain.RefreshToken{}).
			Where("session_id IN ? AND revoked_at IS NULL", ids).
			Update("revoked_at", at).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke_others_by_user", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke_others_by_user", "success")
	return revoked, nil
}

func (r *GormSessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", time.Now().UTC()).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
