// Package query implements the safe CRUD compiler: it parses the public
// REST filter/order/select grammar into parameterized SQL against a
// validated table and column set. Clients never supply SQL; every value is
// bound as a positional parameter and every identifier is checked against
// the cached schema before it is quoted.
package query

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/parabase-io/parabase/internal/apperr"
)

// FilterOp is the closed set of filter operators accepted in query strings.
type FilterOp string

const (
	OpEq    FilterOp = "eq"
	OpNeq   FilterOp = "neq"
	OpLt    FilterOp = "lt"
	OpLte   FilterOp = "lte"
	OpGt    FilterOp = "gt"
	OpGte   FilterOp = "gte"
	OpLike  FilterOp = "like"
	OpILike FilterOp = "ilike"
	OpIn    FilterOp = "in"
)

// sqlOp maps each operator to its SQL counterpart. OpIn is handled
// separately because it expands to one placeholder per value.
var sqlOp = map[FilterOp]string{
	OpEq:    "=",
	OpNeq:   "<>",
	OpLt:    "<",
	OpLte:   "<=",
	OpGt:    ">",
	OpGte:   ">=",
	OpLike:  "LIKE",
	OpILike: "ILIKE",
}

// Filter is one parsed filter condition. Values holds a single element for
// every operator except OpIn, which carries the full comma-separated list.
type Filter struct {
	Op     FilterOp
	Column string
	Values []string
}

// Order is a parsed order clause.
type Order struct {
	Column string
	Desc   bool
}

// Query is the parsed form of a CRUD query string.
type Query struct {
	Select  []string // empty means *
	Order   *Order
	Limit   int
	Offset  int
	Filters []Filter
}

// DefaultLimit applies when the client omits limit.
const DefaultLimit = 100

// reserved query-string keys that are not filters.
var reservedKeys = map[string]bool{
	"select": true,
	"order":  true,
	"limit":  true,
	"offset": true,
}

// tableNameRe constrains table names referenced by the public API.
var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidTableName reports whether name is an acceptable table reference.
func ValidTableName(name string) bool {
	return tableNameRe.MatchString(name)
}

// Parse interprets a CRUD query string. maxLimit caps the limit parameter;
// unknown operators, malformed order clauses and out-of-range limits are
// rejected with BadRequest before any schema access happens.
func Parse(values url.Values, maxLimit int) (*Query, error) {
	q := &Query{Limit: DefaultLimit}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}

	if raw := values.Get("select"); raw != "" && raw != "*" {
		for _, col := range strings.Split(raw, ",") {
			col = strings.TrimSpace(col)
			if col == "" {
				return nil, apperr.BadRequest("select: empty column name")
			}
			q.Select = append(q.Select, col)
		}
	}

	if raw := values.Get("order"); raw != "" {
		order, err := parseOrder(raw)
		if err != nil {
			return nil, err
		}
		q.Order = order
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, apperr.BadRequest("limit must be a positive integer")
		}
		if maxLimit > 0 && n > maxLimit {
			return nil, apperr.BadRequestf("limit must not exceed %d", maxLimit)
		}
		q.Limit = n
	}

	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, apperr.BadRequest("offset must be a non-negative integer")
		}
		q.Offset = n
	}

	for key := range values {
		if reservedKeys[key] {
			continue
		}
		filter, err := parseFilter(key, values.Get(key))
		if err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, *filter)
	}

	return q, nil
}

// parseOrder parses "col.asc" / "col.desc".
func parseOrder(raw string) (*Order, error) {
	column, dir, ok := strings.Cut(raw, ".")
	if !ok || column == "" {
		return nil, apperr.BadRequest(`order must be of the form "column.asc" or "column.desc"`)
	}
	switch dir {
	case "asc":
		return &Order{Column: column}, nil
	case "desc":
		return &Order{Column: column, Desc: true}, nil
	default:
		return nil, apperr.BadRequestf("order: unknown direction %q", dir)
	}
}

// parseFilter parses a "<op>.<column>=<value>" query-string pair. Keys that
// do not contain a dot are rejected rather than silently ignored so typos
// never widen a result set.
func parseFilter(key, value string) (*Filter, error) {
	opPart, column, ok := strings.Cut(key, ".")
	if !ok || column == "" {
		return nil, apperr.BadRequestf("unknown query parameter %q", key)
	}

	op := FilterOp(opPart)
	if _, known := sqlOp[op]; !known && op != OpIn {
		return nil, apperr.BadRequestf("unknown filter operator %q", opPart)
	}

	if op == OpIn {
		parts := strings.Split(value, ",")
		if len(parts) == 0 || (len(parts) == 1 && parts[0] == "") {
			return nil, apperr.BadRequestf("in.%s requires at least one value", column)
		}
		return &Filter{Op: op, Column: column, Values: parts}, nil
	}

	return &Filter{Op: op, Column: column, Values: []string{value}}, nil
}
