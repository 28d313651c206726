package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/videoplaying/auth-service/internal/domain"
	"github.com/videoplaying/auth-service/internal/observability"
	"github.com/videoplaying/auth-service/internal/repository"
	"github.com/videoplaying/auth-service/internal/security"
	"github.com/videoplaying/auth-service/internal/service"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the resolved caller attached to the request context on a
// fully successful resolution.
type Identity struct {
	User      *domain.User
	SessionID string
}

// IdentityResolver turns presented credentials into a request identity on
// every inbound request. It fails open: any missing, malformed, expired or
// revoked credential leaves the request anonymous and lets it proceed, so
// stale cookies never break endpoints that do not require auth.
type IdentityResolver struct {
	codec    *security.TokenCodec
	sessions repository.SessionRepository
	users    repository.UserRepository
	cache    service.SessionCache

	// touchTimeout bounds the background last-seen update.
	touchTimeout time.Duration
}

func NewIdentityResolver(codec *security.TokenCodec, sessions repository.SessionRepository, users repository.UserRepository, cache service.SessionCache) *IdentityResolver {
	if cache == nil {
		cache = service.NewNoopSessionCache()
	}
	return &IdentityResolver{
		codec:        codec,
		sessions:     sessions,
		users:        users,
		cache:        cache,
		touchTimeout: 2 * time.Second,
	}
}

func (res *IdentityResolver) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, outcome := res.resolve(r)
			observability.RecordIdentityResolution(r.Context(), outcome)
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}

			// Best effort, off the critical path. A dropped touch never
			// fails the request.
			go res.touch(identity.SessionID)

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (res *IdentityResolver) resolve(r *http.Request) (*Identity, string) {
	raw := security.GetCookie(r, security.CookieAccessToken)
	if raw == "" {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			raw = strings.TrimSpace(auth[7:])
		}
	}
	secret := security.GetCookie(r, security.CookieSessionSecret)
	if raw == "" || secret == "" {
		return nil, "anonymous_missing_credentials"
	}

	claims, err := res.codec.ParseAccessToken(raw)
	if err != nil {
		return nil, "anonymous_invalid_token"
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, "anonymous_missing_claims"
	}

	ctx := r.Context()
	if dead, err := res.cache.IsDead(ctx, claims.SessionID); err == nil && dead {
		return nil, "anonymous_session_dead"
	}

	session, err := res.sessions.FindLive(ctx, claims.SessionID, security.HashSessionSecret(secret))
	if err != nil {
		return nil, "anonymous_session_dead"
	}

	user, err := res.users.FindByID(ctx, claims.Subject)
	if err != nil || !user.IsActive {
		return nil, "anonymous_user_inactive"
	}

	return &Identity{User: user, SessionID: session.ID}, "resolved"
}

func (res *IdentityResolver) touch(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), res.touchTimeout)
	defer cancel()
	_ = res.sessions.Touch(ctx, sessionID, time.Now().UTC())
}

// IdentityFromContext returns the resolved identity, if the request carried
// valid credentials.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}
