package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/duckvd/duckvd/internal/backend"
)

// PlaceholderTable is the view name queries use to reference a source when the
// source is not embedded in the SQL text.
const PlaceholderTable = "mytable"

type Format string

const (
	FormatUnset   Format = ""
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return FormatUnset, nil
	case "csv", "tsv":
		return FormatCSV, nil
	case "json", "ndjson", "jsonl":
		return FormatJSON, nil
	case "parquet", "pq":
		return FormatParquet, nil
	default:
		return FormatUnset, fmt.Errorf("unsupported format %q (want csv, json or parquet)", raw)
	}
}

// Extension is the file extension used when scanning a folder source.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	default:
		return ""
	}
}

// Spec is a fully resolved query. Build it once and treat it as a value.
type Spec struct {
	SQL    string
	Source string
	// Pattern is what the placeholder view reads; it differs from Source for
	// folder sources.
	Pattern string
	Format  Format
	Table   string
}

// Identity is the byte sequence the cache key is derived from.
func (s Spec) Identity() string {
	return s.Source + "::" + s.SQL
}

type Request struct {
	Spec    Spec
	Backend backend.Plan
}

type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt64
	KindUint64
	KindFloat64
	KindBytes
	KindTimestamp
	KindDate
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	case KindBytes:
		return "bytes"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	case KindDecimal:
		return "decimal"
	default:
		return "string"
	}
}

type Column struct {
	Name string
	Kind Kind
	// Precision and Scale apply to KindDecimal only.
	Precision int
	Scale     int
}

// Table is a fully materialized result. Row values are nil or the Go type
// matching the column kind: bool, int64, uint64, float64, string, []byte,
// time.Time (timestamps and dates) or *big.Int holding the unscaled decimal.
type Table struct {
	Columns []Column
	Rows    [][]any
}

type Result struct {
	Table    Table
	Duration time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// Error is a failure reported by the query engine itself, as opposed to a
// failure in the surrounding plumbing.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
