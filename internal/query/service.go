package query

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/tenant"
)

// Service executes compiled CRUD statements against tenant databases. All
// traffic runs on the app privilege tier; the owner tier never serves CRUD.
type Service struct {
	router  *tenant.Router
	schemas *SchemaCache
	logger  *zap.Logger

	// maxRows caps the limit parameter and is read per request so runtime
	// settings changes apply without restart.
	maxRows func() int
}

// NewService creates a Service. maxRows supplies the current row cap.
func NewService(router *tenant.Router, schemas *SchemaCache, maxRows func() int, logger *zap.Logger) *Service {
	return &Service{
		router:  router,
		schemas: schemas,
		maxRows: maxRows,
		logger:  logger.Named("query"),
	}
}

// InsertResult reports the outcome of a multi-row insert. Inserts are
// per-row: earlier rows stay committed when a later row fails.
type InsertResult struct {
	Inserted []map[string]any `json:"inserted"`
	Failed   int              `json:"failed"`
	Errors   []string         `json:"errors,omitempty"`
}

// Select parses and runs a read query.
func (s *Service) Select(ctx context.Context, projectID uuid.UUID, table string, params url.Values) ([]map[string]any, error) {
	ts, err := s.schemas.Table(ctx, projectID, table)
	if err != nil {
		return nil, err
	}
	q, err := Parse(params, s.maxRows())
	if err != nil {
		return nil, err
	}
	stmt, err := CompileSelect(ts, q)
	if err != nil {
		return nil, err
	}
	return s.queryRows(ctx, projectID, stmt)
}

// Insert validates and inserts up to 1000 rows, one statement per row.
func (s *Service) Insert(ctx context.Context, projectID uuid.UUID, table string, rows []map[string]any) (*InsertResult, error) {
	ts, err := s.schemas.Table(ctx, projectID, table)
	if err != nil {
		return nil, err
	}
	stmts, err := CompileInsert(ts, rows)
	if err != nil {
		return nil, err
	}

	pool, err := s.router.Get(ctx, projectID, db.PrincipalApp)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "connecting to project database", err)
	}

	result := &InsertResult{}
	for _, stmt := range stmts {
		returned, err := scanRows(pool.Query(ctx, stmt.SQL, stmt.Args...))
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Inserted = append(result.Inserted, returned...)
	}

	s.logger.Debug("insert executed",
		zap.String("project_id", projectID.String()),
		zap.String("table", table),
		zap.Int("inserted", len(result.Inserted)),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// Update parses filters and applies a scoped update, returning the changed
// rows.
func (s *Service) Update(ctx context.Context, projectID uuid.UUID, table string, params url.Values, values map[string]any) ([]map[string]any, error) {
	ts, err := s.schemas.Table(ctx, projectID, table)
	if err != nil {
		return nil, err
	}
	q, err := Parse(params, s.maxRows())
	if err != nil {
		return nil, err
	}
	stmt, err := CompileUpdate(ts, q, values)
	if err != nil {
		return nil, err
	}
	return s.queryRows(ctx, projectID, stmt)
}

// Delete parses filters and applies a scoped delete, returning the removed
// rows.
func (s *Service) Delete(ctx context.Context, projectID uuid.UUID, table string, params url.Values) ([]map[string]any, error) {
	ts, err := s.schemas.Table(ctx, projectID, table)
	if err != nil {
		return nil, err
	}
	q, err := Parse(params, s.maxRows())
	if err != nil {
		return nil, err
	}
	stmt, err := CompileDelete(ts, q)
	if err != nil {
		return nil, err
	}
	return s.queryRows(ctx, projectID, stmt)
}

// Tables lists the project's public tables and their columns.
func (s *Service) Tables(ctx context.Context, projectID uuid.UUID) ([]TableInfo, error) {
	return s.schemas.Tables(ctx, projectID)
}

func (s *Service) queryRows(ctx context.Context, projectID uuid.UUID, stmt *Statement) ([]map[string]any, error) {
	pool, err := s.router.Get(ctx, projectID, db.PrincipalApp)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "connecting to project database", err)
	}
	rows, err := scanRows(pool.Query(ctx, stmt.SQL, stmt.Args...))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "executing query", err)
	}
	return rows, nil
}

// scanRows drains a pgx result set into generic row maps.
func scanRows(rows pgx.Rows, err error) ([]map[string]any, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
