// Package provision orchestrates project creation and deletion: tenant
// database and roles, grants, encrypted credentials, API keys, default
// logical buckets and the physical object-store bucket.
//
// DDL (CREATE/DROP DATABASE, CREATE/DROP ROLE) cannot run inside a
// transaction, so creation is ordered to make failure recoverable: server
// objects first, then one metadata transaction, with idempotent DROP ... IF
// EXISTS cleanup if anything after the first step fails.
package provision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/audit"
	"github.com/parabase-io/parabase/internal/config"
	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/objectstore"
	"github.com/parabase-io/parabase/internal/repositories"
	"github.com/parabase-io/parabase/internal/tenant"
)

// defaultBuckets are the logical buckets every new project starts with.
var defaultBuckets = []string{"private", "uploads"}

var slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// CreateResult carries everything returned from a successful provision. The
// two key plaintexts appear here and nowhere else.
type CreateResult struct {
	Project        *db.Project
	PublishableKey string
	SecretKey      string
}

// Service provisions and destroys projects.
type Service struct {
	store   repositories.Store
	cipher  *crypto.Cipher
	objects *objectstore.Client
	router  *tenant.Router
	dbCfg   config.Database
	logger  *zap.Logger
	audit   *audit.Recorder
}

// NewService creates a Service.
func NewService(store repositories.Store, cipher *crypto.Cipher, objects *objectstore.Client, router *tenant.Router, dbCfg config.Database, auditor *audit.Recorder, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		cipher:  cipher,
		objects: objects,
		router:  router,
		dbCfg:   dbCfg,
		logger:  logger.Named("provision"),
		audit:   auditor,
	}
}

// names derives the deterministic server object names of a project.
type names struct {
	database  string
	ownerRole string
	appRole   string
}

func namesFor(projectID uuid.UUID) names {
	dbName := "proj_" + strings.ReplaceAll(projectID.String(), "-", "")
	return names{
		database:  dbName,
		ownerRole: dbName + "_owner",
		appRole:   dbName + "_app",
	}
}

// Create provisions a new project end to end.
func (s *Service) Create(ctx context.Context, name, slug, description string, userID *uuid.UUID) (*CreateResult, error) {
	if name == "" {
		return nil, apperr.BadRequest("project name is required")
	}
	if !slugRe.MatchString(slug) {
		return nil, apperr.BadRequest("slug must be 2-63 lowercase letters, digits or hyphens")
	}
	if _, err := s.store.Projects().GetBySlug(ctx, slug); err == nil {
		return nil, apperr.Conflict("a project with this slug already exists")
	}

	projectID, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	n := namesFor(projectID)

	ownerPassword, err := randomPassword()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	appPassword, err := randomPassword()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := s.createServerObjects(ctx, n, ownerPassword, appPassword); err != nil {
		s.cleanup(ctx, n)
		return nil, err
	}
	if err := s.grantTenantPrivileges(ctx, n); err != nil {
		s.cleanup(ctx, n)
		return nil, err
	}

	result, err := s.persistMetadata(ctx, projectID, name, slug, description, n, ownerPassword, appPassword)
	if err != nil {
		s.cleanup(ctx, n)
		return nil, err
	}

	if err := s.objects.CreateProjectNamespace(ctx, projectID); err != nil {
		s.logger.Error("physical bucket creation failed",
			zap.String("project_id", projectID.String()),
			zap.Error(err),
		)
		// Metadata is committed; tear everything down rather than leave a
		// half-provisioned project behind.
		if delErr := s.Delete(ctx, projectID, userID); delErr != nil {
			s.logger.Error("rollback after bucket failure also failed",
				zap.String("project_id", projectID.String()),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	s.audit.Record(ctx, &projectID, userID, "project.created", map[string]any{
		"name": name,
		"slug": slug,
	})
	s.logger.Info("project provisioned",
		zap.String("project_id", projectID.String()),
		zap.String("slug", slug),
		zap.String("database", n.database),
	)
	return result, nil
}

// Delete destroys a project: pools, metadata, server objects, bucket.
func (s *Service) Delete(ctx context.Context, projectID uuid.UUID, userID *uuid.UUID) error {
	project, err := s.store.Projects().GetByID(ctx, projectID)
	if err != nil {
		return apperr.NotFound("project not found")
	}

	s.router.Close(projectID)

	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		if err := tx.Buckets().DeleteFilesByProject(ctx, projectID); err != nil {
			return err
		}
		if err := tx.Buckets().DeleteBucketsByProject(ctx, projectID); err != nil {
			return err
		}
		if err := tx.APIKeys().DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		if err := tx.Credentials().DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		if err := tx.Audit().DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		return tx.Projects().Delete(ctx, projectID)
	})
	if err != nil {
		return apperr.Internal(err)
	}

	// Server-object and bucket teardown is best-effort from here: metadata
	// is gone, and re-running delete cannot resurrect it.
	n := namesFor(projectID)
	s.cleanup(ctx, n)

	if err := s.objects.DestroyProjectNamespace(ctx, projectID); err != nil {
		s.logger.Error("bucket teardown failed",
			zap.String("project_id", projectID.String()),
			zap.Error(err),
		)
	}

	s.audit.Record(ctx, &projectID, userID, "project.deleted", map[string]any{
		"slug": project.Slug,
	})
	s.logger.Info("project deleted",
		zap.String("project_id", projectID.String()),
		zap.String("slug", project.Slug),
	)
	return nil
}

// createServerObjects runs the database and role DDL on the maintenance
// connection. None of it can run inside a transaction.
func (s *Service) createServerObjects(ctx context.Context, n names, ownerPassword, appPassword string) error {
	conn, err := pgx.Connect(ctx, s.adminDSN())
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamDatabase, "connecting to maintenance database", err)
	}
	defer conn.Close(ctx)

	stmts := []string{
		fmt.Sprintf(`CREATE DATABASE %q`, n.database),
		fmt.Sprintf(`CREATE ROLE %q WITH LOGIN PASSWORD '%s'`, n.ownerRole, ownerPassword),
		fmt.Sprintf(`CREATE ROLE %q WITH LOGIN PASSWORD '%s'`, n.appRole, appPassword),
		fmt.Sprintf(`GRANT ALL PRIVILEGES ON DATABASE %q TO %q`, n.database, n.ownerRole),
		fmt.Sprintf(`GRANT CONNECT ON DATABASE %q TO %q`, n.database, n.appRole),
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.KindUpstreamDatabase, "creating tenant database objects", err)
		}
	}
	return nil
}

// grantTenantPrivileges connects to the new database and sets up schema
// grants plus default privileges for tables the owner creates later.
func (s *Service) grantTenantPrivileges(ctx context.Context, n names) error {
	conn, err := pgx.Connect(ctx, s.dbCfg.DSN(n.database, s.dbCfg.User, s.dbCfg.Password))
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamDatabase, "connecting to tenant database", err)
	}
	defer conn.Close(ctx)

	stmts := []string{
		fmt.Sprintf(`GRANT ALL ON SCHEMA public TO %q`, n.ownerRole),
		fmt.Sprintf(`GRANT USAGE ON SCHEMA public TO %q`, n.appRole),
		fmt.Sprintf(`ALTER DEFAULT PRIVILEGES FOR ROLE %q IN SCHEMA public GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO %q`, n.ownerRole, n.appRole),
		fmt.Sprintf(`ALTER DEFAULT PRIVILEGES FOR ROLE %q IN SCHEMA public GRANT USAGE, SELECT ON SEQUENCES TO %q`, n.ownerRole, n.appRole),
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.KindUpstreamDatabase, "granting tenant privileges", err)
		}
	}
	return nil
}

// persistMetadata writes the project row, both encrypted credentials, both
// API keys and the default logical buckets in one transaction.
func (s *Service) persistMetadata(ctx context.Context, projectID uuid.UUID, name, slug, description string, n names, ownerPassword, appPassword string) (*CreateResult, error) {
	project := &db.Project{Name: name, Slug: slug, Description: description}
	project.ID = projectID

	var publishable, secret string
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		if err := tx.Projects().Create(ctx, project); err != nil {
			return err
		}

		creds := map[db.Principal]string{
			db.PrincipalOwner: s.dbCfg.DSN(n.database, n.ownerRole, ownerPassword),
			db.PrincipalApp:   s.dbCfg.DSN(n.database, n.appRole, appPassword),
		}
		for principal, dsn := range creds {
			envelope, err := s.cipher.Encrypt(dsn)
			if err != nil {
				return err
			}
			cred := &db.ProjectCredential{
				ProjectID:  projectID,
				Principal:  principal,
				Ciphertext: envelope.Ciphertext,
				IV:         envelope.IV,
				AuthTag:    envelope.AuthTag,
			}
			if err := tx.Credentials().Create(ctx, cred); err != nil {
				return err
			}
		}

		issue := func(keyType crypto.KeyType) (string, error) {
			plaintext, err := crypto.NewAPIKey(keyType)
			if err != nil {
				return "", err
			}
			key := &db.APIKey{
				ProjectID: projectID,
				Type:      keyType,
				Hash:      crypto.HashKey(plaintext),
				Prefix:    crypto.DisplayPrefix(plaintext),
			}
			return plaintext, tx.APIKeys().Create(ctx, key)
		}
		var err error
		if publishable, err = issue(crypto.KeyTypePublishable); err != nil {
			return err
		}
		if secret, err = issue(crypto.KeyTypeSecret); err != nil {
			return err
		}

		for _, bucketName := range defaultBuckets {
			bucket := &db.LogicalBucket{ProjectID: projectID, Name: bucketName}
			if err := tx.Buckets().CreateBucket(ctx, bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return &CreateResult{
		Project:        project,
		PublishableKey: publishable,
		SecretKey:      secret,
	}, nil
}

// cleanup drops the tenant database and roles with IF EXISTS so it can run
// after any partial failure. Errors are logged and recorded, never
// re-raised.
func (s *Service) cleanup(ctx context.Context, n names) {
	conn, err := pgx.Connect(ctx, s.adminDSN())
	if err != nil {
		s.logger.Error("cleanup: maintenance connection failed", zap.Error(err))
		s.audit.Record(ctx, nil, nil, "provision.cleanup_failed", map[string]any{
			"database": n.database,
			"error":    err.Error(),
		})
		return
	}
	defer conn.Close(ctx)

	stmts := []string{
		fmt.Sprintf(`DROP DATABASE IF EXISTS %q WITH (FORCE)`, n.database),
		fmt.Sprintf(`DROP ROLE IF EXISTS %q`, n.ownerRole),
		fmt.Sprintf(`DROP ROLE IF EXISTS %q`, n.appRole),
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			s.logger.Warn("cleanup statement failed",
				zap.String("database", n.database),
				zap.Error(err),
			)
			s.audit.Record(ctx, nil, nil, "provision.cleanup_failed", map[string]any{
				"database": n.database,
				"error":    err.Error(),
			})
		}
	}
}

func (s *Service) adminDSN() string {
	return s.dbCfg.DSN("postgres", s.dbCfg.User, s.dbCfg.Password)
}

// randomPassword returns 32 hex chars of cryptographic randomness.
func randomPassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("provision: generating password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
