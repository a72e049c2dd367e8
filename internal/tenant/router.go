// Package tenant implements the per-project connection router. It is the
// single chokepoint for tenant database access: every query against a
// tenant database goes through Get, which names the privilege tier
// explicitly. Pools are built lazily on first access by decrypting the two
// stored credentials and are torn down on project deletion and on shutdown.
package tenant

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/metrics"
	"github.com/parabase-io/parabase/internal/repositories"
)

// poolMaxConns caps each per-tenant pool. Two tiers of three connections
// bound the blast radius a single project can have on the database server.
const poolMaxConns = 3

// tierPools holds the two pools of one project. Either may be nil until the
// corresponding tier is first requested.
type tierPools struct {
	owner *pgxpool.Pool
	app   *pgxpool.Pool
}

// Router caches per-project pgx pools at two privilege tiers.
type Router struct {
	creds  repositories.CredentialRepository
	cipher *crypto.Cipher
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[uuid.UUID]*tierPools
}

// NewRouter creates a Router. Pools are opened lazily.
func NewRouter(creds repositories.CredentialRepository, cipher *crypto.Cipher, logger *zap.Logger) *Router {
	return &Router{
		creds:  creds,
		cipher: cipher,
		logger: logger.Named("tenant"),
		pools:  make(map[uuid.UUID]*tierPools),
	}
}

// Get returns the pool for (projectID, principal), opening it on first use.
// The credential row is decrypted only long enough to build the pool config.
func (r *Router) Get(ctx context.Context, projectID uuid.UUID, principal db.Principal) (*pgxpool.Pool, error) {
	if !principal.Valid() {
		return nil, fmt.Errorf("tenant: unknown principal %q", principal)
	}

	r.mu.RLock()
	if tp, ok := r.pools[projectID]; ok {
		if pool := tp.tier(principal); pool != nil {
			r.mu.RUnlock()
			return pool, nil
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; another request may have raced us here.
	tp, ok := r.pools[projectID]
	if !ok {
		tp = &tierPools{}
		r.pools[projectID] = tp
		metrics.TenantPoolsOpen.Inc()
	}
	if pool := tp.tier(principal); pool != nil {
		return pool, nil
	}

	pool, err := r.open(ctx, projectID, principal)
	if err != nil {
		return nil, err
	}
	tp.setTier(principal, pool)

	r.logger.Info("tenant pool opened",
		zap.String("project_id", projectID.String()),
		zap.String("principal", string(principal)),
	)
	return pool, nil
}

// Close drains and removes both pools of a project. Called on project
// deletion; safe to call for projects with no open pools.
func (r *Router) Close(projectID uuid.UUID) {
	r.mu.Lock()
	tp, ok := r.pools[projectID]
	if ok {
		delete(r.pools, projectID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if tp.owner != nil {
		tp.owner.Close()
	}
	if tp.app != nil {
		tp.app.Close()
	}
	metrics.TenantPoolsOpen.Dec()
	r.logger.Info("tenant pools closed", zap.String("project_id", projectID.String()))
}

// CloseAll drains every cached pool. Called once on shutdown.
func (r *Router) CloseAll() {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[uuid.UUID]*tierPools)
	r.mu.Unlock()

	for _, tp := range pools {
		if tp.owner != nil {
			tp.owner.Close()
		}
		if tp.app != nil {
			tp.app.Close()
		}
	}
	metrics.TenantPoolsOpen.Sub(float64(len(pools)))
	r.logger.Info("all tenant pools closed", zap.Int("projects", len(pools)))
}

// open decrypts the stored credential for the tier and builds a small pool.
func (r *Router) open(ctx context.Context, projectID uuid.UUID, principal db.Principal) (*pgxpool.Pool, error) {
	cred, err := r.creds.Get(ctx, projectID, principal)
	if err != nil {
		return nil, fmt.Errorf("tenant: loading credential for project %s (%s): %w", projectID, principal, err)
	}

	dsn, err := r.cipher.Decrypt(cred.Envelope())
	if err != nil {
		return nil, fmt.Errorf("tenant: decrypting credential for project %s (%s): %w", projectID, principal, err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("tenant: parsing connection config for project %s: %w", projectID, err)
	}
	cfg.MaxConns = poolMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tenant: opening pool for project %s (%s): %w", projectID, principal, err)
	}
	return pool, nil
}

func (tp *tierPools) tier(p db.Principal) *pgxpool.Pool {
	if p == db.PrincipalOwner {
		return tp.owner
	}
	return tp.app
}

func (tp *tierPools) setTier(p db.Principal, pool *pgxpool.Pool) {
	if p == db.PrincipalOwner {
		tp.owner = pool
	} else {
		tp.app = pool
	}
}
