package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/duckvd/duckvd/internal/backend"
	"github.com/duckvd/duckvd/internal/query"
)

type Engine struct {
	Capability backend.Capability
	// Threads caps engine parallelism; zero keeps the DuckDB default.
	Threads int
	// Open returns a fresh database handle. Defaults to an in-memory DuckDB.
	Open func(ctx context.Context) (*sql.DB, error)
}

func NewEngine(capability backend.Capability, threads int) *Engine {
	return &Engine{Capability: capability, Threads: threads}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.Spec.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	db, err := e.open(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if e.Threads > 0 {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET threads = %d", e.Threads)); err != nil {
			return query.Result{}, &query.Error{Op: "set threads", Err: err}
		}
	}

	if err := backend.Configure(ctx, conn, request.Backend, e.Capability); err != nil {
		var capErr *backend.CapabilityError
		if errors.As(err, &capErr) {
			return query.Result{}, err
		}
		return query.Result{}, &query.Error{Op: "configure backend", Err: err}
	}

	if request.Spec.Table != "" {
		viewSQL, err := placeholderView(request.Spec)
		if err != nil {
			return query.Result{}, err
		}
		if _, err := conn.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, &query.Error{Op: fmt.Sprintf("register %s source %q", request.Spec.Format, request.Spec.Source), Err: err}
		}
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, &query.Error{Op: "execute query", Err: err}
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return query.Result{}, &query.Error{Op: "query columns", Err: err}
	}
	columns := make([]query.Column, len(columnTypes))
	databaseTypes := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		databaseTypes[i] = columnType.DatabaseTypeName()
		columns[i] = ColumnFor(columnType.Name(), databaseTypes[i])
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, &query.Error{Op: "scan row", Err: err}
		}
		normalized, err := normalizeValues(columns, databaseTypes, values)
		if err != nil {
			return query.Result{}, err
		}
		resultRows = append(resultRows, normalized)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, &query.Error{Op: "iterate rows", Err: err}
	}
	narrowHugeInts(columns, databaseTypes, resultRows)

	return query.Result{
		Table:    query.Table{Columns: columns, Rows: resultRows},
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) open(ctx context.Context) (*sql.DB, error) {
	if e.Open != nil {
		return e.Open(ctx)
	}
	return sql.Open("duckdb", "")
}

func placeholderView(spec query.Spec) (string, error) {
	pattern := spec.Pattern
	if pattern == "" {
		pattern = spec.Source
	}
	var reader string
	switch spec.Format {
	case query.FormatCSV:
		reader = "read_csv_auto"
	case query.FormatJSON:
		reader = "read_json_auto"
	case query.FormatParquet:
		reader = "read_parquet"
	default:
		return "", fmt.Errorf("unsupported format %q for source %q", spec.Format, spec.Source)
	}
	return fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM %s(%s)`, quoteIdent(spec.Table), reader, quoteString(pattern)), nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
