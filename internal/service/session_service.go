package service

import (
	"context"
	"time"

	"github.com/videoplaying/auth-service/internal/repository"
)

// SessionView is the client-facing projection of a session. The secret hash
// never leaves the store layer.
type SessionView struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	IsCurrent  bool       `json:"is_current"`
}

// SessionService serves the signed-in user's own session management:
// listing live sessions and revoking all but the current one.
type SessionService struct {
	sessions repository.SessionRepository
	cache    SessionCache
}

func NewSessionService(sessions repository.SessionRepository, cache SessionCache) *SessionService {
	if cache == nil {
		cache = NewNoopSessionCache()
	}
	return &SessionService{sessions: sessions, cache: cache}
}

func (s *SessionService) ListActiveSessions(ctx context.Context, userID, currentSessionID string) ([]SessionView, error) {
	sessions, err := s.sessions.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:         session.ID,
			CreatedAt:  session.CreatedAt,
			LastSeenAt: session.LastSeenAt,
			ExpiresAt:  session.ExpiresAt,
			IsCurrent:  session.ID == currentSessionID,
		})
	}
	return views, nil
}

func (s *SessionService) RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) (int64, error) {
	others, err := s.sessions.ListActiveByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	revoked, err := s.sessions.RevokeOthersByUser(ctx, userID, currentSessionID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, session := range others {
		if session.ID == currentSessionID {
			continue
		}
		_ = s.cache.MarkDead(ctx, session.ID, time.Until(session.ExpiresAt))
	}
	return revoked, nil
}
