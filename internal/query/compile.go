package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parabase-io/parabase/internal/apperr"
)

// Statement is a compiled SQL statement with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// maxInsertRows caps a single insert request.
const maxInsertRows = 1000

// quoteIdent double-quotes an identifier that has already passed the schema
// whitelist. Quoting still doubles embedded quotes so a compromised
// information_schema row cannot break out of the identifier position.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// checkColumn rejects any column not present in the table's schema.
func checkColumn(ts *TableSchema, column string) error {
	if !ts.Columns[column] {
		return apperr.Newf(apperr.KindSchema, "unknown column %q on table %q", column, ts.Name)
	}
	return nil
}

// CompileSelect builds a parameterized SELECT from a parsed query.
func CompileSelect(ts *TableSchema, q *Query) (*Statement, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")

	if len(q.Select) == 0 {
		sb.WriteString("*")
	} else {
		for i, col := range q.Select {
			if err := checkColumn(ts, col); err != nil {
				return nil, err
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteIdent(col))
		}
	}

	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(ts.Name))

	args, err := writeWhere(&sb, ts, q.Filters, 0)
	if err != nil {
		return nil, err
	}

	if q.Order != nil {
		if err := checkColumn(ts, q.Order.Column); err != nil {
			return nil, err
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quoteIdent(q.Order.Column))
		if q.Order.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
	}

	return &Statement{SQL: sb.String(), Args: args}, nil
}

// CompileInsert builds one parameterized INSERT per row. Rows are validated
// up front so a bad row fails the whole request before anything executes;
// execution is then per-row, best-effort across rows.
func CompileInsert(ts *TableSchema, rows []map[string]any) ([]*Statement, error) {
	if len(rows) == 0 {
		return nil, apperr.BadRequest("insert requires at least one row")
	}
	if len(rows) > maxInsertRows {
		return nil, apperr.BadRequestf("insert accepts at most %d rows", maxInsertRows)
	}

	stmts := make([]*Statement, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			return nil, apperr.BadRequestf("insert row %d is empty", i)
		}

		cols := make([]string, 0, len(row))
		for col := range row {
			if err := checkColumn(ts, col); err != nil {
				return nil, err
			}
			cols = append(cols, col)
		}
		sort.Strings(cols)

		var sb strings.Builder
		sb.WriteString("INSERT INTO ")
		sb.WriteString(quoteIdent(ts.Name))
		sb.WriteString(" (")

		args := make([]any, 0, len(cols))
		for j, col := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteIdent(col))
			args = append(args, row[col])
		}

		sb.WriteString(") VALUES (")
		for j := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", j+1)
		}
		sb.WriteString(") RETURNING *")

		stmts = append(stmts, &Statement{SQL: sb.String(), Args: args})
	}
	return stmts, nil
}

// CompileUpdate builds a parameterized UPDATE. At least one filter is
// required; an unscoped update is never issued.
func CompileUpdate(ts *TableSchema, q *Query, values map[string]any) (*Statement, error) {
	if len(q.Filters) == 0 {
		return nil, apperr.BadRequest("update requires at least one filter")
	}
	if len(values) == 0 {
		return nil, apperr.BadRequest("update requires at least one column to set")
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		if err := checkColumn(ts, col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(quoteIdent(ts.Name))
	sb.WriteString(" SET ")

	args := make([]any, 0, len(cols)+len(q.Filters))
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s = $%d", quoteIdent(col), i+1)
		args = append(args, values[col])
	}

	whereArgs, err := writeWhere(&sb, ts, q.Filters, len(args))
	if err != nil {
		return nil, err
	}
	args = append(args, whereArgs...)

	sb.WriteString(" RETURNING *")
	return &Statement{SQL: sb.String(), Args: args}, nil
}

// CompileDelete builds a parameterized DELETE. At least one filter is
// required.
func CompileDelete(ts *TableSchema, q *Query) (*Statement, error) {
	if len(q.Filters) == 0 {
		return nil, apperr.BadRequest("delete requires at least one filter")
	}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(quoteIdent(ts.Name))

	args, err := writeWhere(&sb, ts, q.Filters, 0)
	if err != nil {
		return nil, err
	}

	sb.WriteString(" RETURNING *")
	return &Statement{SQL: sb.String(), Args: args}, nil
}

// writeWhere appends the WHERE clause for the given filters, numbering
// placeholders from argOffset+1, and returns the bound values in order.
func writeWhere(sb *strings.Builder, ts *TableSchema, filters []Filter, argOffset int) ([]any, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	sb.WriteString(" WHERE ")
	var args []any
	n := argOffset

	for i, f := range filters {
		if err := checkColumn(ts, f.Column); err != nil {
			return nil, err
		}
		if i > 0 {
			sb.WriteString(" AND ")
		}

		if f.Op == OpIn {
			sb.WriteString(quoteIdent(f.Column))
			sb.WriteString(" IN (")
			for j, v := range f.Values {
				if j > 0 {
					sb.WriteString(", ")
				}
				n++
				fmt.Fprintf(sb, "$%d", n)
				args = append(args, v)
			}
			sb.WriteString(")")
			continue
		}

		n++
		fmt.Fprintf(sb, "%s %s $%d", quoteIdent(f.Column), sqlOp[f.Op], n)
		args = append(args, f.Values[0])
	}
	return args, nil
}
