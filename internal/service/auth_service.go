package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/videoplaying/auth-service/internal/domain"
	"github.com/videoplaying/auth-service/internal/repository"
	"github.com/videoplaying/auth-service/internal/security"
)

var (
	// ErrAuthInvalid is the single outcome for every bad-credential case:
	// unknown email, wrong password, bad/expired/reused refresh token.
	// Sub-causes are deliberately not distinguishable by the caller.
	ErrAuthInvalid = errors.New("invalid credentials")

	// ErrConflict reports duplicate email or username on registration.
	ErrConflict = errors.New("already exists")
)

// AuthConfig is the slice of process configuration the auth service needs.
type AuthConfig struct {
	SessionTTL time.Duration
	BcryptCost int
}

// AuthService orchestrates the credential hasher, token codec, session
// store and refresh-token ledger into the register/login/rotate/revoke use
// cases. All mutations go through the repositories' transactional paths, so
// the service itself holds no locks.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	ledger   repository.RefreshTokenRepository
	codec    *security.TokenCodec
	cache    SessionCache
	cfg      AuthConfig
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	ledger repository.RefreshTokenRepository,
	codec *security.TokenCodec,
	cache SessionCache,
	cfg AuthConfig,
) *AuthService {
	if cache == nil {
		cache = NewNoopSessionCache()
	}
	return &AuthService{users: users, sessions: sessions, ledger: ledger, codec: codec, cache: cache, cfg: cfg}
}

// LoginSession bundles everything minted at login. The plaintext secret and
// both tokens exist only in this value; nothing recoverable is persisted.
type LoginSession struct {
	Session       *domain.Session
	SessionSecret string
	AccessToken   string
	RefreshToken  string
}

// Register creates a user with a hashed password and a placeholder username
// the caller may overwrite before first use. It does not create a session.
func (s *AuthService) Register(ctx context.Context, email, password string, displayName *string) (*domain.User, error) {
	email = NormalizeEmail(email)
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", ErrConflict)
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	digest, err := security.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        email,
		Username:     placeholderUsername(),
		PasswordHash: digest,
		DisplayName:  displayName,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, fmt.Errorf("email already registered: %w", ErrConflict)
		}
		return nil, err
	}
	return user, nil
}

// Authenticate verifies an (email, password) pair against an active user.
// Unknown email, inactive user, and wrong password all return the identical
// ErrAuthInvalid.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrAuthInvalid
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAuthInvalid
	}
	if !security.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrAuthInvalid
	}
	return user, nil
}

// CreateLoginSession mints a session with a fresh 256-bit opaque secret, one
// access token and one refresh token bound to it, and records the refresh
// token's jti in the ledger.
func (s *AuthService) CreateLoginSession(ctx context.Context, user *domain.User) (*LoginSession, error) {
	secret, err := security.NewSessionSecret()
	if err != nil {
		return nil, err
	}
	session := &domain.Session{
		UserID:     user.ID,
		SecretHash: security.HashSessionSecret(secret),
		ExpiresAt:  time.Now().UTC().Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	access, err := s.codec.SignAccessToken(user.ID, session.ID)
	if err != nil {
		return nil, err
	}
	refresh, jti, refreshExpiresAt, err := s.codec.SignRefreshToken(user.ID, session.ID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, &domain.RefreshToken{
		JTI:       jti,
		SessionID: session.ID,
		ExpiresAt: refreshExpiresAt,
	}); err != nil {
		return nil, err
	}

	return &LoginSession{
		Session:       session,
		SessionSecret: secret,
		AccessToken:   access,
		RefreshToken:  refresh,
	}, nil
}

// RotateRefresh exchanges a live refresh token for a fresh access/refresh
// pair, exactly once per token. Presenting a token that was already rotated
// away is treated as theft or a race: the whole session is revoked before
// the same ErrAuthInvalid every other failure path returns.
func (s *AuthService) RotateRefresh(ctx context.Context, sessionID, userID, presentedJTI string) (access, refresh string, err error) {
	record, err := s.ledger.Find(ctx, presentedJTI)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return "", "", ErrAuthInvalid
		}
		return "", "", err
	}
	if record.SessionID != sessionID {
		return "", "", ErrAuthInvalid
	}
	if record.RevokedAt != nil {
		slog.WarnContext(ctx, "refresh token reuse detected, revoking session",
			"session_id", sessionID, "jti", presentedJTI)
		s.revokeSession(ctx, sessionID)
		return "", "", ErrAuthInvalid
	}
	if !record.ExpiresAt.After(time.Now().UTC()) {
		return "", "", ErrAuthInvalid
	}

	refresh, newJTI, refreshExpiresAt, err := s.codec.SignRefreshToken(userID, sessionID)
	if err != nil {
		return "", "", err
	}
	err = s.ledger.Rotate(ctx, presentedJTI, sessionID, &domain.RefreshToken{
		JTI:       newJTI,
		SessionID: sessionID,
		ExpiresAt: refreshExpiresAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			// Lost a rotation race: someone else consumed the token between
			// our read and the conditional update. Same policy as reuse.
			slog.WarnContext(ctx, "refresh token rotation race lost, revoking session",
				"session_id", sessionID, "jti", presentedJTI)
			s.revokeSession(ctx, sessionID)
			return "", "", ErrAuthInvalid
		}
		return "", "", err
	}

	access, err = s.codec.SignAccessToken(userID, sessionID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// RefreshWithCredentials validates the presented refresh token and session
// secret together and then rotates. Codec failures, claim-shape problems and
// dead sessions all collapse into ErrAuthInvalid before leaving the service.
func (s *AuthService) RefreshWithCredentials(ctx context.Context, refreshToken, sessionSecret string) (access, refresh string, session *domain.Session, err error) {
	if refreshToken == "" || sessionSecret == "" {
		return "", "", nil, ErrAuthInvalid
	}
	claims, err := s.codec.ParseRefreshToken(refreshToken)
	if err != nil {
		return "", "", nil, ErrAuthInvalid
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.ID == "" {
		return "", "", nil, ErrAuthInvalid
	}

	session, err = s.sessions.FindLive(ctx, claims.SessionID, security.HashSessionSecret(sessionSecret))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", "", nil, ErrAuthInvalid
		}
		return "", "", nil, err
	}

	access, refresh, err = s.RotateRefresh(ctx, session.ID, claims.Subject, claims.ID)
	if err != nil {
		return "", "", nil, err
	}
	return access, refresh, session, nil
}

// RevokeSessionBySecret revokes whichever session the opaque secret hashes
// to, cascading to its refresh tokens. A secret matching nothing is a no-op,
// not an error, so logout is idempotent.
func (s *AuthService) RevokeSessionBySecret(ctx context.Context, secret string) error {
	session, err := s.sessions.FindBySecretHash(ctx, security.HashSessionSecret(secret))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	s.revokeSession(ctx, session.ID)
	return nil
}

// LoginWithExternalIdentity consumes an already-verified federated identity
// (subject id and email). It links the subject to an existing account by
// subject first, then by email, and otherwise creates a new account with an
// unguessable password and an email-derived username.
func (s *AuthService) LoginWithExternalIdentity(ctx context.Context, subject, email string) (*domain.User, error) {
	if subject == "" || email == "" {
		return nil, ErrAuthInvalid
	}
	email = NormalizeEmail(email)

	user, err := s.users.FindByExternalSubject(ctx, subject)
	if err == nil {
		if !user.IsActive {
			return nil, ErrAuthInvalid
		}
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	user, err = s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		// No account yet: create one the user can only enter through the
		// provider, since the random password is discarded.
		randomPassword, serr := security.NewSessionSecret()
		if serr != nil {
			return nil, serr
		}
		user, err = s.Register(ctx, email, randomPassword, nil)
		if err != nil {
			return nil, err
		}
		username, serr := s.usernameFromEmail(ctx, email)
		if serr != nil {
			return nil, serr
		}
		user.Username = username
	} else if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAuthInvalid
	}

	user.ExternalSubject = &subject
	user.ExternalEmail = &email
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) revokeSession(ctx context.Context, sessionID string) {
	now := time.Now().UTC()
	if err := s.sessions.Revoke(ctx, sessionID, now); err != nil {
		slog.ErrorContext(ctx, "revoke session", "session_id", sessionID, "error", err)
		return
	}
	// Best effort; the store already reflects the revocation.
	_ = s.cache.MarkDead(ctx, sessionID, s.cfg.SessionTTL)
}

var usernameCharset = regexp.MustCompile(`[^a-z0-9_]+`)

// NormalizeEmail lowercases and trims an address so the unique index on the
// stored value behaves case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func placeholderUsername() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// usernameFromEmail derives a stable username from the local part of the
// address, suffixing on collision.
func (s *AuthService) usernameFromEmail(ctx context.Context, email string) (string, error) {
	local, _, _ := strings.Cut(email, "@")
	base := usernameCharset.ReplaceAllString(strings.ToLower(local), "")
	if len(base) > 20 {
		base = base[:20]
	}
	if base == "" {
		base = "user"
	}
	for i := 0; i < 1000; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s%d", base, i)
		}
		_, err := s.users.FindByUsername(ctx, candidate)
		if errors.Is(err, repository.ErrUserNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return placeholderUsername(), nil
}
