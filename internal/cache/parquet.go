package cache

import (
	"fmt"
	"io"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/duckvd/duckvd/internal/query"
)

const (
	maxInt64DecimalPrecision = 18
	secondsPerDay            = 24 * 60 * 60
)

var (
	boolPtr    = reflect.TypeOf((*bool)(nil))
	int64Ptr   = reflect.TypeOf((*int64)(nil))
	uint64Ptr  = reflect.TypeOf((*uint64)(nil))
	float64Ptr = reflect.TypeOf((*float64)(nil))
	stringPtr  = reflect.TypeOf((*string)(nil))
	bytesType  = reflect.TypeOf([]byte(nil))
	timePtr    = reflect.TypeOf((*time.Time)(nil))
	int64Type  = reflect.TypeOf(int64(0))
)

// WriteParquet encodes table as a single Parquet file. Column order is kept
// and every column is optional. Dates and decimals keep their logical types.
func WriteParquet(w io.Writer, table query.Table) error {
	rowType, err := rowTypeFor(table.Columns)
	if err != nil {
		return err
	}
	schema := parquet.SchemaOf(reflect.New(rowType).Interface())
	if got := len(schema.Columns()); got != len(table.Columns) {
		return fmt.Errorf("parquet schema has %d columns, want %d", got, len(table.Columns))
	}
	writer := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Zstd))

	for rowIndex, values := range table.Rows {
		if len(values) != len(table.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", rowIndex, len(values), len(table.Columns))
		}
		row := make(parquet.Row, len(values))
		for i, value := range values {
			v, err := valueOf(table.Columns[i], value)
			if err != nil {
				return fmt.Errorf("row %d: %w", rowIndex, err)
			}
			if v.IsNull() {
				row[i] = v.Level(0, 0, i)
			} else {
				row[i] = v.Level(0, 1, i)
			}
		}
		if _, err := writer.WriteRows([]parquet.Row{row}); err != nil {
			return fmt.Errorf("write parquet row %d: %w", rowIndex, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// rowTypeFor builds a struct type only to derive the schema; struct fields
// keep the result's column order, which a parquet.Group would not.
func rowTypeFor(columns []query.Column) (reflect.Type, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("result has no columns")
	}
	names := columnNames(columns)
	fields := make([]reflect.StructField, len(columns))
	for i, column := range columns {
		tag := names[i]
		var fieldType reflect.Type
		switch column.Kind {
		case query.KindBool:
			fieldType = boolPtr
		case query.KindInt64:
			fieldType = int64Ptr
		case query.KindUint64:
			fieldType = uint64Ptr
		case query.KindFloat64:
			fieldType = float64Ptr
		case query.KindString:
			fieldType = stringPtr
		case query.KindBytes:
			fieldType = bytesType
			tag += ",optional"
		case query.KindTimestamp:
			fieldType = timePtr
			tag += ",timestamp(microsecond)"
		case query.KindDate:
			fieldType = timePtr
			tag += ",date"
		case query.KindDecimal:
			if err := checkDecimal(column); err != nil {
				return nil, err
			}
			fieldType = bytesType
			if column.Precision <= maxInt64DecimalPrecision {
				fieldType = int64Type
			}
			tag += fmt.Sprintf(",decimal(%d:%d),optional", column.Scale, column.Precision)
		default:
			return nil, fmt.Errorf("column %q: unsupported kind %v", column.Name, column.Kind)
		}
		fields[i] = reflect.StructField{
			Name: "C" + strconv.Itoa(i),
			Type: fieldType,
			Tag:  reflect.StructTag("parquet:" + strconv.Quote(tag)),
		}
	}
	return reflect.StructOf(fields), nil
}

func checkDecimal(column query.Column) error {
	if column.Precision < 1 || column.Scale < 0 || column.Scale > column.Precision {
		return fmt.Errorf("column %q: invalid decimal(%d,%d)", column.Name, column.Precision, column.Scale)
	}
	return nil
}

// columnNames makes result column names usable as Parquet field names: no
// commas (they separate tag options), no blanks, no "-" (it skips the field),
// no duplicates.
func columnNames(columns []query.Column) []string {
	names := make([]string, len(columns))
	used := make(map[string]bool, len(columns))
	for i, column := range columns {
		base := strings.ReplaceAll(strings.TrimSpace(column.Name), ",", "_")
		if base == "" || base == "-" {
			base = "column" + strconv.Itoa(i)
		}
		name := base
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func valueOf(column query.Column, value any) (parquet.Value, error) {
	if value == nil {
		return parquet.NullValue(), nil
	}
	mismatch := func() (parquet.Value, error) {
		return parquet.Value{}, fmt.Errorf("column %q (%s): unexpected value type %T", column.Name, column.Kind, value)
	}
	switch column.Kind {
	case query.KindBool:
		if v, ok := value.(bool); ok {
			return parquet.BooleanValue(v), nil
		}
	case query.KindInt64:
		if v, ok := value.(int64); ok {
			return parquet.Int64Value(v), nil
		}
	case query.KindUint64:
		if v, ok := value.(uint64); ok {
			return parquet.Int64Value(int64(v)), nil
		}
	case query.KindFloat64:
		if v, ok := value.(float64); ok {
			return parquet.DoubleValue(v), nil
		}
	case query.KindString:
		if v, ok := value.(string); ok {
			return parquet.ByteArrayValue([]byte(v)), nil
		}
	case query.KindBytes:
		if v, ok := value.([]byte); ok {
			return parquet.ByteArrayValue(v), nil
		}
	case query.KindTimestamp:
		if v, ok := value.(time.Time); ok {
			return parquet.Int64Value(v.UnixMicro()), nil
		}
	case query.KindDate:
		if v, ok := value.(time.Time); ok {
			return parquet.Int32Value(daysSinceEpoch(v)), nil
		}
	case query.KindDecimal:
		v, ok := value.(*big.Int)
		if !ok || v == nil {
			return mismatch()
		}
		return decimalValue(column, v)
	}
	return mismatch()
}

func daysSinceEpoch(t time.Time) int32 {
	year, month, day := t.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return int32(midnight.Unix() / secondsPerDay)
}

func decimalValue(column query.Column, unscaled *big.Int) (parquet.Value, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(column.Precision)), nil)
	if new(big.Int).Abs(unscaled).Cmp(limit) >= 0 {
		return parquet.Value{}, fmt.Errorf("column %q: %s exceeds decimal precision %d", column.Name, unscaled, column.Precision)
	}
	if column.Precision <= maxInt64DecimalPrecision {
		return parquet.Int64Value(unscaled.Int64()), nil
	}
	return parquet.FixedLenByteArrayValue(twosComplement(unscaled, decimalSize(column.Precision))), nil
}

// decimalSize is the smallest byte width holding every signed value of the
// given number of decimal digits.
func decimalSize(precision int) int {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	return limit.BitLen()/8 + 1
}

// twosComplement encodes v big-endian in size bytes. v must fit.
func twosComplement(v *big.Int, size int) []byte {
	buf := make([]byte, size)
	if v.Sign() >= 0 {
		v.FillBytes(buf)
		return buf
	}
	wrapped := new(big.Int).Lsh(big.NewInt(1), uint(size*8))
	wrapped.Add(wrapped, v)
	wrapped.FillBytes(buf)
	return buf
}
