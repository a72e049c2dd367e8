// Package sqlexec runs operator-authored SQL against a tenant database via
// the owner privilege tier. Input is restricted to a single statement,
// screened against a denylist, row-capped for reads and bounded by a
// per-session statement timeout. The screening is textual and approximate;
// the denylist exists to stop the obvious footguns, not to sandbox the
// owner role.
package sqlexec

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/tenant"
)

// Result is the response payload of one executed statement.
type Result struct {
	Columns         []string         `json:"columns"`
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"rowCount"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
}

// deniedFragments are matched case-insensitively against the normalized
// statement. COPY ... PROGRAM is handled separately because the two words
// need not be adjacent.
var deniedFragments = []string{
	"do $",
	"pg_sleep(",
	"create extension",
	"drop database",
	"drop role",
	"alter system",
}

// Limits carries the runtime caps applied to each execution.
type Limits struct {
	MaxRows            int
	StatementTimeoutMs int
}

// Executor validates and runs admin SQL.
type Executor struct {
	router *tenant.Router
	logger *zap.Logger
	limits func() Limits
}

// NewExecutor creates an Executor. limits supplies the current caps so
// runtime settings changes apply without restart.
func NewExecutor(router *tenant.Router, limits func() Limits, logger *zap.Logger) *Executor {
	return &Executor{router: router, limits: limits, logger: logger.Named("sqlexec")}
}

// Execute validates sql and runs it on the project's owner pool.
func (e *Executor) Execute(ctx context.Context, projectID uuid.UUID, sql string) (*Result, error) {
	limits := e.limits()

	stmt, err := prepare(sql, limits.MaxRows)
	if err != nil {
		return nil, err
	}

	pool, err := e.router.Get(ctx, projectID, db.PrincipalOwner)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "connecting to project database", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "acquiring connection", err)
	}
	defer conn.Release()

	// Session-scoped so it never outlives this connection checkout.
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", limits.StatementTimeoutMs)); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "setting statement timeout", err)
	}
	defer conn.Exec(context.WithoutCancel(ctx), "SET statement_timeout = DEFAULT")

	start := time.Now()
	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "query failed", err)
	}

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = string(fd.Name)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			rows.Close()
			return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "reading row", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "query failed", err)
	}

	elapsed := time.Since(start)
	e.logger.Info("admin sql executed",
		zap.String("project_id", projectID.String()),
		zap.Int("rows", len(out)),
		zap.Duration("elapsed", elapsed),
	)

	return &Result{
		Columns:         columns,
		Rows:            out,
		RowCount:        len(out),
		ExecutionTimeMs: elapsed.Milliseconds(),
	}, nil
}

// prepare enforces the single-statement rule and the denylist, and appends
// a LIMIT to uncapped reads. Returns the statement to run.
func prepare(sql string, maxRows int) (string, error) {
	stmts := splitStatements(sql)
	switch len(stmts) {
	case 0:
		return "", apperr.BadRequest("empty sql statement")
	case 1:
	default:
		return "", apperr.BadRequest("only a single sql statement is allowed")
	}

	stmt := stmts[0]
	lower := strings.ToLower(stmt)

	for _, fragment := range deniedFragments {
		if strings.Contains(lower, fragment) {
			return "", apperr.New(apperr.KindDenied, "statement contains a denied operation")
		}
	}
	if strings.Contains(lower, "copy") && strings.Contains(lower, "program") {
		return "", apperr.New(apperr.KindDenied, "statement contains a denied operation")
	}

	if isRead(lower) && !limitClauseRe.MatchString(lower) {
		stmt = fmt.Sprintf("%s LIMIT %d", stmt, maxRows)
	}
	return stmt, nil
}

// limitClauseRe recognizes an explicit LIMIT clause. Matching the clause
// token rather than the bare word keeps identifiers like "unlimited" or the
// word inside a string literal from suppressing the row cap.
var limitClauseRe = regexp.MustCompile(`\blimit\s+(\d+|all)\b`)

// splitStatements splits on semicolons and drops empty segments. A trailing
// semicolon therefore does not count as a second statement.
func splitStatements(sql string) []string {
	var out []string
	for _, part := range strings.Split(sql, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isRead(lower string) bool {
	return strings.HasPrefix(lower, "select") || strings.HasPrefix(lower, "with")
}
