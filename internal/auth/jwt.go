package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "parabase"

// Claims holds the custom JWT claims embedded in every session token.
// Standard claims (exp, iat, iss) are included via jwt.RegisteredClaims.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the UUID of the authenticated user.
	UserID string `json:"uid"`

	// SessionID identifies the server-side session row so individual
	// sessions can be revoked without a token denylist.
	SessionID string `json:"sid"`

	// Role is the user's role at token issuance time. Sessions are
	// re-validated against the user row on every request, so staleness here
	// only affects display.
	Role string `json:"role"`
}

// JWTManager signs and verifies session tokens with HS256. The signing
// secret is derived from the platform master key at startup.
type JWTManager struct {
	secret   []byte
	lifetime time.Duration
}

// NewJWTManager creates a JWTManager. lifetime bounds the exp claim and the
// matching session row expiry.
func NewJWTManager(secret []byte, lifetime time.Duration) *JWTManager {
	return &JWTManager{secret: secret, lifetime: lifetime}
}

// Lifetime returns the configured token lifetime.
func (m *JWTManager) Lifetime() time.Duration { return m.lifetime }

// Generate signs a session token for the given user and session IDs.
func (m *JWTManager) Generate(userID, sessionID, role string, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
		},
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
func (m *JWTManager) Verify(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("auth: invalid session token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid session token claims")
	}
	return claims, nil
}
