package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// Service implements login, logout, invite-based registration and per-request
// session validation. Sessions are dual-keyed: the cookie carries a signed
// JWT, and a hashed session row server-side allows revocation.
type Service struct {
	store  repositories.Store
	jwt    *JWTManager
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a Service. now is injectable for tests; pass nil for
// time.Now.
func NewService(store repositories.Store, jwt *JWTManager, logger *zap.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, jwt: jwt, logger: logger.Named("auth"), now: now}
}

// LoginResult carries the signed token and its session metadata.
type LoginResult struct {
	Token     string
	User      *db.User
	ExpiresAt time.Time
}

// Login verifies credentials and opens a session. Failures are reported as
// a single unauthorized error to avoid user enumeration.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ipAddress string) (*LoginResult, error) {
	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		return nil, apperr.Internal(err)
	}
	if !user.IsActive {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, apperr.Unauthorized("invalid email or password")
	}

	now := s.now()
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	token, err := s.jwt.Generate(user.ID.String(), sessionID.String(), user.Role, now)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	expiresAt := now.Add(s.jwt.Lifetime())
	session := &db.Session{
		UserID:    user.ID,
		TokenHash: crypto.HashKey(sessionID.String()),
		ExpiresAt: expiresAt,
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}
	session.ID = sessionID
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, apperr.Internal(err)
	}

	lastLogin := now
	user.LastLoginAt = &lastLogin
	if err := s.store.Users().Update(ctx, user); err != nil {
		s.logger.Warn("failed to record last login",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
	)
	return &LoginResult{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// Authenticate validates a session token for one request: signature, expiry,
// session row liveness and user liveness.
func (s *Service) Authenticate(ctx context.Context, token string) (*db.User, error) {
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired session")
	}

	session, err := s.store.Sessions().GetByTokenHash(ctx, crypto.HashKey(claims.SessionID))
	if err != nil {
		return nil, apperr.Unauthorized("session not found")
	}
	now := s.now()
	if session.RevokedAt != nil || !session.ExpiresAt.After(now) {
		return nil, apperr.Unauthorized("session revoked or expired")
	}

	user, err := s.store.Users().GetByID(ctx, session.UserID)
	if err != nil || !user.IsActive {
		return nil, apperr.Unauthorized("account disabled")
	}
	return user, nil
}

// Logout revokes the session behind a token. Unknown tokens are a no-op;
// the client clears its cookie regardless.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return nil
	}
	session, err := s.store.Sessions().GetByTokenHash(ctx, crypto.HashKey(claims.SessionID))
	if err != nil {
		return nil
	}
	if err := s.store.Sessions().Revoke(ctx, session.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return apperr.Internal(err)
	}
	return nil
}

// CreateInvite mints a single-use registration key. The plaintext token is
// returned exactly once.
func (s *Service) CreateInvite(ctx context.Context, role string, ttl time.Duration, createdBy *uuid.UUID) (*db.Invite, string, error) {
	token, err := crypto.NewInviteToken()
	if err != nil {
		return nil, "", apperr.Internal(err)
	}

	invite := &db.Invite{
		TokenHash: crypto.HashKey(token),
		Role:      role,
		CreatedBy: createdBy,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.store.Invites().Create(ctx, invite); err != nil {
		return nil, "", apperr.Internal(err)
	}
	return invite, token, nil
}

// Register redeems an invite token and creates the user account.
func (s *Service) Register(ctx context.Context, inviteToken, email, password, displayName string) (*db.User, error) {
	if len(password) < 8 {
		return nil, apperr.New(apperr.KindValidation, "password must be at least 8 characters")
	}

	invite, err := s.store.Invites().GetByTokenHash(ctx, crypto.HashKey(inviteToken))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid invite key")
		}
		return nil, apperr.Internal(err)
	}
	now := s.now()
	if invite.UsedAt != nil {
		return nil, apperr.Unauthorized("invite key already used")
	}
	if !invite.ExpiresAt.After(now) {
		return nil, apperr.Unauthorized("invite key expired")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &db.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         invite.Role,
		IsActive:     true,
	}

	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		// MarkUsed guards on used_at IS NULL, so two racing redemptions
		// cannot both succeed.
		return tx.Invites().MarkUsed(ctx, invite.ID, user.ID, now)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, apperr.Conflict("an account with this email already exists")
		}
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.Unauthorized("invite key already used")
		}
		return nil, apperr.Internal(err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
	)
	return user, nil
}
