package backup

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/query"
)

// exportRowCap bounds a single-table export.
const exportRowCap = 100000

// exportTable reads up to exportRowCap rows via the owner pool and
// serializes them in the requested format.
func exportTable(ctx context.Context, pool *pgxpool.Pool, table string, format db.BackupFormat) ([]byte, error) {
	if !query.ValidTableName(table) {
		return nil, apperr.BadRequestf("invalid table name %q", table)
	}

	sql := fmt.Sprintf(`SELECT * FROM "%s" LIMIT %d`, table, exportRowCap)
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "reading table "+table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = string(fd.Name)
	}

	var records [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "reading table "+table, err)
		}
		records = append(records, values)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "reading table "+table, err)
	}

	switch format {
	case db.BackupFormatCSV:
		return encodeCSV(columns, records)
	case db.BackupFormatJSON:
		return encodeJSON(columns, records)
	default:
		return nil, apperr.BadRequestf("unsupported table export format %q", format)
	}
}

// encodeCSV writes a header row plus one record per row. encoding/csv
// handles RFC 4180 quoting of embedded quotes, commas and newlines.
func encodeCSV(columns []string, records [][]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("backup: csv: %w", err)
	}
	record := make([]string, len(columns))
	for _, values := range records {
		for i, v := range values {
			record[i] = formatCSVValue(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("backup: csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("backup: csv: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeJSON produces an array of column-keyed objects.
func encodeJSON(columns []string, records [][]any) ([]byte, error) {
	out := make([]map[string]any, 0, len(records))
	for _, values := range records {
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("backup: json: %w", err)
	}
	return data, nil
}

// formatCSVValue renders a database value as a CSV cell. Composite values
// fall back to their JSON form so the cell stays parseable.
func formatCSVValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", t)
	default:
		if data, err := json.Marshal(t); err == nil {
			return string(data)
		}
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}
