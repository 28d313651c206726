package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/videoplaying/auth-service/internal/domain"
	"github.com/videoplaying/auth-service/internal/repository"
)

// memStore backs the three repository interfaces with maps under one mutex,
// preserving the store-level guarantees the services rely on: one error per
// miss cause, idempotent revocation, and one-winner rotation.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions map[string]*domain.Session
	tokens   map[string]*domain.RefreshToken
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]*domain.Session),
		tokens:   make(map[string]*domain.RefreshToken),
	}
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	return &c
}

func copyToken(t *domain.RefreshToken) *domain.RefreshToken {
	c := *t
	return &c
}

func (m *memStore) revokeSessionLocked(id string, at time.Time) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if s.RevokedAt == nil {
		at := at
		s.RevokedAt = &at
	}
	for _, t := range m.tokens {
		if t.SessionID == id && t.RevokedAt == nil {
			at := at
			t.RevokedAt = &at
		}
	}
}

type memUsers struct{ store *memStore }

func (r *memUsers) Create(_ context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, u := range r.store.users {
		if u.Email == user.Email || u.Username == user.Username {
			return repository.ErrDuplicateUser
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	r.store.users[user.ID] = copyUser(user)
	return nil
}

func (r *memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if u, ok := r.store.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.findBy(func(u *domain.User) bool { return u.Email == email })
}

func (r *memUsers) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.findBy(func(u *domain.User) bool { return u.Username == username })
}

func (r *memUsers) FindByExternalSubject(_ context.Context, subject string) (*domain.User, error) {
	return r.findBy(func(u *domain.User) bool {
		return u.ExternalSubject != nil && *u.ExternalSubject == subject
	})
}

func (r *memUsers) findBy(match func(*domain.User) bool) (*domain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, u := range r.store.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUsers) Update(_ context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	r.store.users[user.ID] = copyUser(user)
	return nil
}

type memSessions struct{ store *memStore }

func (r *memSessions) Create(_ context.Context, s *domain.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	r.store.sessions[s.ID] = copySession(s)
	return nil
}

func (r *memSessions) FindLive(_ context.Context, id, secretHash string) (*domain.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok || s.SecretHash != secretHash || !s.Live(time.Now().UTC()) {
		return nil, repository.ErrSessionNotFound
	}
	return copySession(s), nil
}

func (r *memSessions) FindBySecretHash(_ context.Context, secretHash string) (*domain.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.sessions {
		if s.SecretHash == secretHash {
			return copySession(s), nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (r *memSessions) Touch(_ context.Context, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if s, ok := r.store.sessions[id]; ok {
		at := at
		s.LastSeenAt = &at
	}
	return nil
}

func (r *memSessions) Revoke(_ context.Context, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.revokeSessionLocked(id, at)
	return nil
}

func (r *memSessions) ListActiveByUserID(_ context.Context, userID string) ([]domain.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := time.Now().UTC()
	var out []domain.Session
	for _, s := range r.store.sessions {
		if s.UserID == userID && s.Live(now) {
			out = append(out, *copySession(s))
		}
	}
	return out, nil
}

func (r *memSessions) RevokeOthersByUser(_ context.Context, userID, keepID string, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var revoked int64
	for _, s := range r.store.sessions {
		if s.UserID == userID && s.ID != keepID && s.RevokedAt == nil {
			r.store.revokeSessionLocked(s.ID, at)
			revoked++
		}
	}
	return revoked, nil
}

func (r *memSessions) CleanupExpired(_ context.Context) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := time.Now().UTC()
	var removed int64
	for id, s := range r.store.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.store.sessions, id)
			removed++
		}
	}
	return removed, nil
}

type memTokens struct{ store *memStore }

func (r *memTokens) Record(_ context.Context, t *domain.RefreshToken) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.tokens[t.JTI]; ok {
		return repository.ErrDuplicateJTI
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.store.tokens[t.JTI] = copyToken(t)
	return nil
}

func (r *memTokens) Find(_ context.Context, jti string) (*domain.RefreshToken, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if t, ok := r.store.tokens[jti]; ok {
		return copyToken(t), nil
	}
	return nil, repository.ErrRefreshTokenNotFound
}

func (r *memTokens) Rotate(_ context.Context, oldJTI, sessionID string, next *domain.RefreshToken) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	old, ok := r.store.tokens[oldJTI]
	if !ok || old.SessionID != sessionID || old.RevokedAt != nil {
		return repository.ErrRefreshTokenNotFound
	}
	now := time.Now().UTC()
	old.RevokedAt = &now
	jti := next.JTI
	old.ReplacedByJTI = &jti
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	r.store.tokens[next.JTI] = copyToken(next)
	return nil
}
