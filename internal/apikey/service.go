// Package apikey implements issuance, validation, rotation and revocation
// of project API keys.
//
// Validation deliberately scans every active key and compares hashes in
// constant time rather than looking the hash up by index. The linear scan
// keeps the comparison side-channel-safe: the work done is independent of
// whether and where a match occurs.
package apikey

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

// ProjectContext identifies the project and key tier a validated key grants.
type ProjectContext struct {
	ProjectID uuid.UUID
	KeyID     uuid.UUID
	KeyType   crypto.KeyType
}

// Service issues and validates API keys.
type Service struct {
	store  repositories.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a Service. now is injectable for tests; pass nil for
// time.Now.
func NewService(store repositories.Store, logger *zap.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, logger: logger.Named("apikey"), now: now}
}

// Issue generates a key of the given type for a project and persists its
// hash. The plaintext is returned exactly once; it is never stored.
func (s *Service) Issue(ctx context.Context, projectID uuid.UUID, keyType crypto.KeyType, expiresAt *time.Time) (*db.APIKey, string, error) {
	plaintext, err := crypto.NewAPIKey(keyType)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}

	key := &db.APIKey{
		ProjectID: projectID,
		Type:      keyType,
		Hash:      crypto.HashKey(plaintext),
		Prefix:    crypto.DisplayPrefix(plaintext),
		ExpiresAt: expiresAt,
	}
	if err := s.store.APIKeys().Create(ctx, key); err != nil {
		return nil, "", apperr.Internal(err)
	}
	return key, plaintext, nil
}

// Validate resolves a key plaintext to its project context, or nil if no
// active key matches. The plaintext is hashed once; every active key is then
// compared in constant time, and the scan always visits the full set so the
// timing does not reveal whether or where a match occurred.
func (s *Service) Validate(ctx context.Context, plaintext string) (*ProjectContext, error) {
	hash := crypto.HashKey(plaintext)

	active, err := s.store.APIKeys().ListActive(ctx, s.now())
	if err != nil {
		return nil, apperr.Internal(err)
	}

	var match *db.APIKey
	for i := range active {
		if crypto.SecureCompare(active[i].Hash, hash) && match == nil {
			match = &active[i]
		}
	}
	if match == nil {
		return nil, nil
	}
	return &ProjectContext{
		ProjectID: match.ProjectID,
		KeyID:     match.ID,
		KeyType:   match.Type,
	}, nil
}

// Rotate revokes all active keys of one type for a project and issues a
// replacement, atomically. The old keys fail validation as soon as the
// transaction commits.
func (s *Service) Rotate(ctx context.Context, projectID uuid.UUID, keyType crypto.KeyType) (*db.APIKey, string, error) {
	if !keyType.Valid() {
		return nil, "", apperr.BadRequestf("unknown key type %q", keyType)
	}

	plaintext, err := crypto.NewAPIKey(keyType)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}

	key := &db.APIKey{
		ProjectID: projectID,
		Type:      keyType,
		Hash:      crypto.HashKey(plaintext),
		Prefix:    crypto.DisplayPrefix(plaintext),
	}

	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		if err := tx.APIKeys().RevokeActiveByType(ctx, projectID, keyType, s.now()); err != nil {
			return err
		}
		return tx.APIKeys().Create(ctx, key)
	})
	if err != nil {
		return nil, "", apperr.Internal(err)
	}

	s.logger.Info("api key rotated",
		zap.String("project_id", projectID.String()),
		zap.String("type", string(keyType)),
		zap.String("prefix", key.Prefix),
	)
	return key, plaintext, nil
}

// Revoke marks a key revoked iff it is currently active.
func (s *Service) Revoke(ctx context.Context, keyID uuid.UUID) error {
	if err := s.store.APIKeys().Revoke(ctx, keyID, s.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("api key not found or not active")
		}
		return apperr.Internal(err)
	}
	return nil
}
