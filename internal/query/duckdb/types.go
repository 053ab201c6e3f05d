package duckdb

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/duckvd/duckvd/internal/query"
)

const (
	defaultDecimalPrecision = 18
	defaultDecimalScale     = 3
	hugeIntPrecision        = 38
)

// ColumnFor maps a result column to the kind it is cached as. Types without
// a lossless Parquet mapping here fall back to their text form. HUGEINT
// columns start as decimal(38,0) and are narrowed once all rows are known.
func ColumnFor(name, databaseType string) query.Column {
	column := query.Column{Name: name, Kind: query.KindString}
	typeName, args := splitTypeName(databaseType)
	switch typeName {
	case "BOOLEAN", "BOOL":
		column.Kind = query.KindBool
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "UTINYINT", "USMALLINT", "UINTEGER":
		column.Kind = query.KindInt64
	case "UBIGINT":
		column.Kind = query.KindUint64
	case "HUGEINT", "UHUGEINT":
		column.Kind = query.KindDecimal
		column.Precision = hugeIntPrecision
	case "FLOAT", "REAL", "DOUBLE":
		column.Kind = query.KindFloat64
	case "DECIMAL", "NUMERIC":
		column.Kind = query.KindDecimal
		column.Precision, column.Scale = decimalArgs(args)
	case "BLOB", "BYTEA":
		column.Kind = query.KindBytes
	case "DATE":
		column.Kind = query.KindDate
	case "TIMESTAMP", "DATETIME", "TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE":
		column.Kind = query.KindTimestamp
	}
	return column
}

func splitTypeName(databaseType string) (string, string) {
	name := strings.ToUpper(strings.TrimSpace(databaseType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		return strings.TrimSpace(name[:i]), name[i:]
	}
	return name, ""
}

// decimalArgs parses "(width,scale)" and falls back to DuckDB's default
// DECIMAL(18,3).
func decimalArgs(args string) (int, int) {
	inner, ok := strings.CutPrefix(args, "(")
	if !ok {
		return defaultDecimalPrecision, defaultDecimalScale
	}
	inner, ok = strings.CutSuffix(inner, ")")
	if !ok {
		return defaultDecimalPrecision, defaultDecimalScale
	}
	rawWidth, rawScale, found := strings.Cut(inner, ",")
	width, err := strconv.Atoi(strings.TrimSpace(rawWidth))
	if err != nil || width < 1 {
		return defaultDecimalPrecision, defaultDecimalScale
	}
	scale := 0
	if found {
		scale, err = strconv.Atoi(strings.TrimSpace(rawScale))
		if err != nil || scale < 0 || scale > width {
			return defaultDecimalPrecision, defaultDecimalScale
		}
	}
	return width, scale
}

func isHugeInt(databaseType string) bool {
	name, _ := splitTypeName(databaseType)
	return name == "HUGEINT" || name == "UHUGEINT"
}

// narrowHugeInts turns HUGEINT columns whose values all fit into int64
// columns, and widens the decimal precision for values beyond 38 digits.
func narrowHugeInts(columns []query.Column, databaseTypes []string, rows [][]any) {
	for i := range columns {
		if !isHugeInt(databaseTypes[i]) {
			continue
		}
		fits := true
		digits := 0
		for _, row := range rows {
			v, ok := row[i].(*big.Int)
			if !ok {
				continue
			}
			if !v.IsInt64() {
				fits = false
			}
			digits = max(digits, len(new(big.Int).Abs(v).String()))
		}
		if fits {
			columns[i] = query.Column{Name: columns[i].Name, Kind: query.KindInt64}
			for _, row := range rows {
				if v, ok := row[i].(*big.Int); ok {
					row[i] = v.Int64()
				}
			}
			continue
		}
		columns[i].Precision = max(hugeIntPrecision, digits)
	}
}

func normalizeValues(columns []query.Column, databaseTypes []string, values []any) ([]any, error) {
	normalized := make([]any, len(values))
	for i, value := range values {
		v, err := normalizeValue(columns[i], databaseTypes[i], value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", columns[i].Name, err)
		}
		normalized[i] = v
	}
	return normalized, nil
}

func normalizeValue(column query.Column, databaseType string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch column.Kind {
	case query.KindBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case query.KindInt64:
		switch v := value.(type) {
		case int8:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case uint8:
			return int64(v), nil
		case uint16:
			return int64(v), nil
		case uint32:
			return int64(v), nil
		}
	case query.KindUint64:
		switch v := value.(type) {
		case uint64:
			return v, nil
		case int64:
			if v >= 0 {
				return uint64(v), nil
			}
		}
	case query.KindFloat64:
		switch v := value.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		}
	case query.KindDecimal:
		switch v := value.(type) {
		case goduckdb.Decimal:
			if v.Value == nil {
				return nil, nil
			}
			if int(v.Scale) != column.Scale {
				return nil, fmt.Errorf("decimal scale %d, want %d", v.Scale, column.Scale)
			}
			return new(big.Int).Set(v.Value), nil
		case *big.Int:
			if v == nil {
				return nil, nil
			}
			return new(big.Int).Set(v), nil
		case int64:
			return new(big.Int).Mul(big.NewInt(v), pow10(column.Scale)), nil
		}
	case query.KindBytes:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	case query.KindTimestamp:
		if v, ok := value.(time.Time); ok {
			return v.UTC(), nil
		}
	case query.KindDate:
		if v, ok := value.(time.Time); ok {
			year, month, day := v.Date()
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
		}
	case query.KindString:
		return textOf(databaseType, value), nil
	}
	return nil, fmt.Errorf("unexpected %T for %s column", value, column.Kind)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func textOf(databaseType string, value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		if len(v) == 16 && strings.EqualFold(databaseType, "UUID") {
			return uuid.UUID(v).String()
		}
		return string(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case time.Time:
		return v.Format("15:04:05.999999")
	case goduckdb.Interval:
		return fmt.Sprintf("%d months %d days %d us", v.Months, v.Days, v.Micros)
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err == nil {
			return string(encoded)
		}
	}
	return fmt.Sprint(value)
}
