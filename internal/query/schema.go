package query

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/tenant"
)

// schemaTTL bounds how stale the cached column sets may be. A table or
// column added through the SQL editor becomes visible to CRUD within this
// window without any explicit invalidation.
const schemaTTL = 60 * time.Second

// TableSchema is the allowed column set of one table.
type TableSchema struct {
	Name    string
	Columns map[string]bool
}

// projectSchema is one project's cached public-schema snapshot.
type projectSchema struct {
	tables    map[string]*TableSchema
	fetchedAt time.Time
}

// SchemaCache serves per-project table/column whitelists backed by
// information_schema, refreshed at most once per TTL per project.
type SchemaCache struct {
	router *tenant.Router
	now    func() time.Time

	mu       sync.RWMutex
	projects map[uuid.UUID]*projectSchema
}

// NewSchemaCache creates a SchemaCache. now is injectable for tests; pass
// nil for time.Now.
func NewSchemaCache(router *tenant.Router, now func() time.Time) *SchemaCache {
	if now == nil {
		now = time.Now
	}
	return &SchemaCache{
		router:   router,
		now:      now,
		projects: make(map[uuid.UUID]*projectSchema),
	}
}

// Table returns the schema for one table of a project, refreshing the
// project's snapshot when it is absent or expired. A table still unknown
// after a fresh fetch is a schema error.
func (c *SchemaCache) Table(ctx context.Context, projectID uuid.UUID, table string) (*TableSchema, error) {
	if !ValidTableName(table) {
		return nil, apperr.BadRequestf("invalid table name %q", table)
	}

	now := c.now()

	c.mu.RLock()
	cached, ok := c.projects[projectID]
	c.mu.RUnlock()

	if ok && now.Sub(cached.fetchedAt) < schemaTTL {
		if ts, found := cached.tables[table]; found {
			return ts, nil
		}
		// Table missing from a fresh-enough snapshot may mean it was just
		// created; fall through to a forced refresh before giving up.
	}

	refreshed, err := c.refresh(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ts, found := refreshed.tables[table]
	if !found {
		return nil, apperr.Newf(apperr.KindSchema, "table %q does not exist", table)
	}
	return ts, nil
}

// TableInfo is the public listing shape of one table.
type TableInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Tables lists the tables and columns of a project's public schema, sorted
// by table name.
func (c *SchemaCache) Tables(ctx context.Context, projectID uuid.UUID) ([]TableInfo, error) {
	now := c.now()

	c.mu.RLock()
	cached, ok := c.projects[projectID]
	c.mu.RUnlock()

	if !ok || now.Sub(cached.fetchedAt) >= schemaTTL {
		var err error
		cached, err = c.refresh(ctx, projectID)
		if err != nil {
			return nil, err
		}
	}

	infos := make([]TableInfo, 0, len(cached.tables))
	for name, ts := range cached.tables {
		columns := make([]string, 0, len(ts.Columns))
		for col := range ts.Columns {
			columns = append(columns, col)
		}
		sort.Strings(columns)
		infos = append(infos, TableInfo{Name: name, Columns: columns})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Invalidate drops a project's snapshot, forcing a refetch on next use.
// Called on project deletion.
func (c *SchemaCache) Invalidate(projectID uuid.UUID) {
	c.mu.Lock()
	delete(c.projects, projectID)
	c.mu.Unlock()
}

// refresh fetches the public-schema tables and columns via the app pool and
// replaces the project's snapshot.
func (c *SchemaCache) refresh(ctx context.Context, projectID uuid.UUID) (*projectSchema, error) {
	pool, err := c.router.Get(ctx, projectID, db.PrincipalApp)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "connecting to project database", err)
	}

	rows, err := pool.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "reading schema", err)
	}
	defer rows.Close()

	tables := make(map[string]*TableSchema)
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "reading schema", err)
		}
		ts, ok := tables[tableName]
		if !ok {
			ts = &TableSchema{Name: tableName, Columns: make(map[string]bool)}
			tables[tableName] = ts
		}
		ts.Columns[columnName] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "reading schema", err)
	}

	snapshot := &projectSchema{tables: tables, fetchedAt: c.now()}

	c.mu.Lock()
	c.projects[projectID] = snapshot
	c.mu.Unlock()

	return snapshot, nil
}
