package cache

import (
	"bytes"
	"errors"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/duckvd/duckvd/internal/query"
)

func TestKeyIsDeterministic(t *testing.T) {
	spec := query.Spec{SQL: "SELECT * FROM t"}
	if Key(spec) != Key(spec) {
		t.Fatal("Key() is not deterministic")
	}
	if len(Key(spec)) != 64 {
		t.Fatalf("len(Key()) = %d, want 64", len(Key(spec)))
	}
}

func TestKeyDistinguishesSourceAndWhitespace(t *testing.T) {
	specs := []query.Spec{
		{SQL: "SELECT * FROM t"},
		{SQL: "SELECT * FROM t "},
		{SQL: "SELECT *  FROM t"},
		{SQL: "SELECT * FROM mytable", Source: "path/one"},
		{SQL: "SELECT * FROM mytable", Source: "path/two"},
	}
	seen := map[string]int{}
	for i, spec := range specs {
		key := Key(spec)
		if prev, ok := seen[key]; ok {
			t.Fatalf("specs %d and %d share key %s", prev, i, key)
		}
		seen[key] = i
	}
}

func TestPathUsesParquetExtension(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got := c.Path("abc")
	if got != filepath.Join(dir, "abc.parquet") {
		t.Fatalf("Path() = %q", got)
	}
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestWriteCreatesDirAndEntry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "duck_vd")
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	key := Key(query.Spec{SQL: "SELECT 1"})
	if c.Exists(key) {
		t.Fatal("Exists() = true before write")
	}

	entry, err := c.Write(key, sampleTable())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !c.Exists(key) {
		t.Fatal("Exists() = false after write")
	}
	if entry.Path != c.Path(key) || entry.Size <= 0 {
		t.Fatalf("entry = %+v", entry)
	}
	assertOnlyEntries(t, dir, key+".parquet")
}

func TestWriteOverwritesExistingEntry(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	key := "k"
	if err := os.WriteFile(c.Path(key), []byte("stale"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := c.Write(key, sampleTable()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(c.Path(key))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) {
		t.Fatalf("entry was not replaced: %q", data[:min(len(data), 8)])
	}
}

func TestWriteFailureLeavesNoEntry(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	bad := query.Table{
		Columns: []query.Column{{Name: "id", Kind: query.KindInt64}},
		Rows:    [][]any{{"not-an-int"}},
	}
	if _, err := c.Write("k", bad); err == nil {
		t.Fatal("expected write error")
	}
	if c.Exists("k") {
		t.Fatal("failed write left a cache entry")
	}
	assertOnlyEntries(t, dir)
}

func TestRoundTripPreservesSchemaAndRows(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	table := sampleTable()
	entry, err := c.Write("roundtrip", table)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	file, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	fields := file.Schema().Fields()
	if len(fields) != len(table.Columns) {
		t.Fatalf("fields = %d, want %d", len(fields), len(table.Columns))
	}
	for i, field := range fields {
		if field.Name() != table.Columns[i].Name {
			t.Fatalf("field %d = %q, want %q", i, field.Name(), table.Columns[i].Name)
		}
		if !field.Optional() {
			t.Fatalf("field %q is not optional", field.Name())
		}
	}

	reader := parquet.NewGenericReader[cachedRow](f)
	defer func() { _ = reader.Close() }()
	rows := make([]cachedRow, 4)
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}

	first := rows[0]
	if first.ID == nil || *first.ID != 1 {
		t.Fatalf("id = %v", first.ID)
	}
	if first.Name == nil || *first.Name != "alpha" {
		t.Fatalf("name = %v", first.Name)
	}
	if first.Score == nil || *first.Score != 1.5 {
		t.Fatalf("score = %v", first.Score)
	}
	if first.OK == nil || !*first.OK {
		t.Fatalf("ok = %v", first.OK)
	}
	if first.Big == nil || *first.Big != 1<<63 {
		t.Fatalf("big = %v", first.Big)
	}
	if first.At == nil || !first.At.Equal(sampleTime) {
		t.Fatalf("at = %v, want %v", first.At, sampleTime)
	}
	if string(first.Blob) != "raw" {
		t.Fatalf("blob = %q", first.Blob)
	}

	second := rows[1]
	if second.ID == nil || *second.ID != 2 {
		t.Fatalf("id = %v", second.ID)
	}
	if second.Name != nil || second.Score != nil || second.OK != nil || second.At != nil || second.Big != nil || len(second.Blob) != 0 {
		t.Fatalf("expected nulls, got %+v", second)
	}
}

func TestWriteParquetRenamesDuplicateColumns(t *testing.T) {
	table := query.Table{
		Columns: []query.Column{
			{Name: "a", Kind: query.KindInt64},
			{Name: "a", Kind: query.KindInt64},
			{Name: "min(x, y)", Kind: query.KindString},
			{Name: "", Kind: query.KindString},
			{Name: "-", Kind: query.KindInt64},
		},
		Rows: [][]any{{int64(1), int64(2), "z", nil, int64(5)}},
	}
	var buf bytes.Buffer
	if err := WriteParquet(&buf, table); err != nil {
		t.Fatalf("WriteParquet() error = %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	var names []string
	for _, field := range file.Schema().Fields() {
		names = append(names, field.Name())
	}
	if got, want := strings.Join(names, "|"), "a|a_2|min(x_ y)|column3|column4"; got != want {
		t.Fatalf("names = %q, want %q", got, want)
	}
	row := readOneRow(t, file)
	if len(row) != 5 || row[4].Int64() != 5 {
		t.Fatalf("row = %v", row)
	}
}

func TestWriteParquetKeepsDecimalAndDateTypes(t *testing.T) {
	table := query.Table{
		Columns: []query.Column{
			{Name: "price", Kind: query.KindDecimal, Precision: 9, Scale: 2},
			{Name: "balance", Kind: query.KindDecimal, Precision: 38, Scale: 2},
			{Name: "day", Kind: query.KindDate},
		},
		Rows: [][]any{
			{big.NewInt(250), big.NewInt(-12345), time.Date(1969, time.December, 31, 0, 0, 0, 0, time.UTC)},
			{nil, nil, nil},
		},
	}
	var buf bytes.Buffer
	if err := WriteParquet(&buf, table); err != nil {
		t.Fatalf("WriteParquet() error = %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	fields := file.Schema().Fields()
	price := fields[0].Type()
	if price.Kind() != parquet.Int64 || price.LogicalType().Decimal == nil || price.LogicalType().Decimal.Precision != 9 {
		t.Fatalf("price type = %v", price)
	}
	balance := fields[1].Type()
	if balance.Kind() != parquet.FixedLenByteArray || balance.Length() != 16 || balance.LogicalType().Decimal.Scale != 2 {
		t.Fatalf("balance type = %v", balance)
	}
	if fields[2].Type().LogicalType().Date == nil {
		t.Fatalf("day type = %v", fields[2].Type())
	}

	rows := file.RowGroups()[0].Rows()
	defer func() { _ = rows.Close() }()
	got := make([]parquet.Row, 2)
	n, err := rows.ReadRows(got)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("ReadRows() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	first := got[0]
	if first[0].Int64() != 250 {
		t.Fatalf("price = %v", first[0])
	}
	balanceBytes := first[1].ByteArray()
	if len(balanceBytes) != 16 || balanceBytes[0] != 0xff || balanceBytes[15] != 0xc7 || balanceBytes[14] != 0xcf {
		t.Fatalf("balance bytes = %x", balanceBytes)
	}
	if first[2].Int32() != -1 {
		t.Fatalf("day = %d, want -1", first[2].Int32())
	}
	for i, value := range got[1] {
		if !value.IsNull() {
			t.Fatalf("row 1 column %d = %v, want null", i, value)
		}
	}
}

func TestWriteParquetRejectsDecimalOverflow(t *testing.T) {
	table := query.Table{
		Columns: []query.Column{{Name: "d", Kind: query.KindDecimal, Precision: 4, Scale: 1}},
		Rows:    [][]any{{big.NewInt(12345)}},
	}
	if err := WriteParquet(io.Discard, table); err == nil {
		t.Fatal("expected precision overflow error")
	}
}

func readOneRow(t *testing.T, file *parquet.File) parquet.Row {
	t.Helper()
	rows := file.RowGroups()[0].Rows()
	defer func() { _ = rows.Close() }()
	got := make([]parquet.Row, 1)
	n, err := rows.ReadRows(got)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("ReadRows() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}
	return got[0]
}

func TestWriteParquetRejectsEmptySchema(t *testing.T) {
	if err := WriteParquet(io.Discard, query.Table{}); err == nil {
		t.Fatal("expected error for table without columns")
	}
}

func TestClearMissingDirIsNoop(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	result, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if result.Existed {
		t.Fatal("Existed = true for missing dir")
	}
}

func TestClearRemovesPopulatedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "duck_vd")
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.Write("one", sampleTable()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dummy_file"), []byte("xy"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	result, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if !result.Existed || result.Files != 2 || result.Bytes <= 2 {
		t.Fatalf("result = %+v", result)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cache dir still present: %v", err)
	}
}

var sampleTime = time.Date(2026, time.February, 19, 10, 30, 0, 123456000, time.UTC)

type cachedRow struct {
	ID    *int64     `parquet:"id"`
	Name  *string    `parquet:"name"`
	Score *float64   `parquet:"score"`
	OK    *bool      `parquet:"ok"`
	Big   *uint64    `parquet:"big"`
	At    *time.Time `parquet:"at,timestamp(microsecond)"`
	Blob  []byte     `parquet:"blob,optional"`
}

func sampleTable() query.Table {
	return query.Table{
		Columns: []query.Column{
			{Name: "id", Kind: query.KindInt64},
			{Name: "name", Kind: query.KindString},
			{Name: "score", Kind: query.KindFloat64},
			{Name: "ok", Kind: query.KindBool},
			{Name: "big", Kind: query.KindUint64},
			{Name: "at", Kind: query.KindTimestamp},
			{Name: "blob", Kind: query.KindBytes},
		},
		Rows: [][]any{
			{int64(1), "alpha", 1.5, true, uint64(1 << 63), sampleTime, []byte("raw")},
			{int64(2), nil, nil, nil, nil, nil, nil},
		},
	}
}

func assertOnlyEntries(t *testing.T, dir string, want ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var got []string
	for _, entry := range entries {
		got = append(got, entry.Name())
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("dir entries = %v, want %v", got, want)
	}
}
