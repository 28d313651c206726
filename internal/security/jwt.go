package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrInvalidToken covers every codec-level failure: bad signature, malformed
// structure, expired token, wrong token type. Callers never surface the
// sub-cause.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the fixed claim shape for both token types. Subject carries the
// user id, SessionID the owning session, ID (jti) the per-token unique id.
type Claims struct {
	TokenType string `json:"typ"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies access and refresh tokens with a
// process-wide HS256 key loaded once at startup.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenCodec(secret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// SignAccessToken mints a short-lived access token bound to the session.
// Access tokens are never persisted server-side.
func (c *TokenCodec) SignAccessToken(userID, sessionID string) (string, error) {
	return c.sign(TokenTypeAccess, userID, sessionID, uuid.NewString(), c.accessTTL)
}

// SignRefreshToken mints a long-lived refresh token and returns its jti and
// expiry so the caller can mirror them into the refresh-token ledger.
func (c *TokenCodec) SignRefreshToken(userID, sessionID string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = NewJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	expiresAt = time.Now().UTC().Add(c.refreshTTL)
	token, err = c.sign(TokenTypeRefresh, userID, sessionID, jti, c.refreshTTL)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

func (c *TokenCodec) sign(tokenType, userID, sessionID, jti string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		TokenType: tokenType,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *TokenCodec) ParseAccessToken(raw string) (*Claims, error) {
	return c.parse(raw, TokenTypeAccess)
}

func (c *TokenCodec) ParseRefreshToken(raw string) (*Claims, error) {
	return c.parse(raw, TokenTypeRefresh)
}

func (c *TokenCodec) parse(raw, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
