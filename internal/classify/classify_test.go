package classify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/duckvd/duckvd/internal/query"
)

func TestIsQuery(t *testing.T) {
	tests := map[string]bool{
		"SELECT * FROM t":                  true,
		"select 1 from t":                  true,
		"with x as (select 1) select *":    true,
		"values (1), (2)":                  true,
		"local/file.csv":                   false,
		"selected_rows.csv":                false,
		"SELECT":                           false,
		"gs://bucket/from_archive.parquet": false,
	}
	for input, want := range tests {
		if got := IsQuery(input); got != want {
			t.Fatalf("IsQuery(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestFindURI(t *testing.T) {
	tests := map[string]string{
		"SELECT * FROM 'gs://bucket/obj'":           "gs://bucket/obj",
		`SELECT * FROM "s3://b/k.parquet" LIMIT 10`: "s3://b/k.parquet",
		"https://example.com/a.csv":                 "https://example.com/a.csv",
		"SELECT * FROM 'http://a/x' JOIN 's3://b'":  "http://a/x",
		"local/file.csv":                            "",
		"ftp://example.com/a.csv":                   "",
	}
	for input, want := range tests {
		if got := FindURI(input); got != want {
			t.Fatalf("FindURI(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestClassifyLiteralQueryIsVerbatim(t *testing.T) {
	input := "SELECT * FROM t"
	spec, err := Classify(input, Options{})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if spec.SQL != input {
		t.Fatalf("SQL = %q, want %q", spec.SQL, input)
	}
	if spec.Source != "" || spec.Table != "" {
		t.Fatalf("unexpected source/table: %+v", spec)
	}
}

func TestClassifyPathWrapsInSelect(t *testing.T) {
	spec, err := Classify("local/file.csv", Options{IsDir: never})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if spec.SQL != "SELECT * FROM 'local/file.csv';" {
		t.Fatalf("SQL = %q", spec.SQL)
	}
	if spec.Source != "local/file.csv" {
		t.Fatalf("Source = %q", spec.Source)
	}
}

func TestClassifyRejectsEmptyInput(t *testing.T) {
	if _, err := Classify("   ", Options{}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("Classify() error = %v, want ErrEmptyInput", err)
	}
}

func TestClassifyRejectsOverrideOnLiteralQuery(t *testing.T) {
	_, err := Classify("SELECT 1 FROM x", Options{Query: "SELECT 2"})
	if !errors.Is(err, ErrQueryWithOverride) {
		t.Fatalf("Classify() error = %v, want ErrQueryWithOverride", err)
	}
}

func TestClassifyOverrideQueryUsesPlaceholderTable(t *testing.T) {
	spec, err := Classify("data/events.ndjson", Options{Query: "SELECT count(*) FROM mytable", IsDir: never})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if spec.Table != query.PlaceholderTable {
		t.Fatalf("Table = %q", spec.Table)
	}
	if spec.Format != query.FormatJSON {
		t.Fatalf("Format = %q", spec.Format)
	}
	if spec.Pattern != "data/events.ndjson" {
		t.Fatalf("Pattern = %q", spec.Pattern)
	}
	if spec.SQL != "SELECT count(*) FROM mytable" {
		t.Fatalf("SQL = %q", spec.SQL)
	}
}

func TestClassifyFolderRequiresFormat(t *testing.T) {
	dir := t.TempDir()
	_, err := Classify(dir, Options{})
	if !errors.Is(err, ErrFormatRequired) {
		t.Fatalf("Classify() error = %v, want ErrFormatRequired", err)
	}
}

func TestClassifyFolderWithFormatScansRecursively(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x\n1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	spec, err := Classify(dir, Options{Format: query.FormatCSV})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	want := filepath.ToSlash(dir) + "/**/*.csv"
	if spec.Pattern != want {
		t.Fatalf("Pattern = %q, want %q", spec.Pattern, want)
	}
	if spec.SQL != "SELECT * FROM mytable;" {
		t.Fatalf("SQL = %q", spec.SQL)
	}
}

func TestClassifyRemoteFolder(t *testing.T) {
	spec, err := Classify("gs://bucket/exports/", Options{Format: query.FormatParquet})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if spec.Pattern != "gs://bucket/exports/**/*.parquet" {
		t.Fatalf("Pattern = %q", spec.Pattern)
	}
}

func TestClassifyUnknownExtensionNeedsFormat(t *testing.T) {
	_, err := Classify("data/blob.bin", Options{Query: "SELECT * FROM mytable", IsDir: never})
	if err == nil {
		t.Fatal("expected error for unknown extension")
	}
}

func TestIdentityDiffersBySource(t *testing.T) {
	opts := Options{Query: "SELECT * FROM mytable", Format: query.FormatParquet, IsDir: never}
	one, err := Classify("path/one", opts)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	two, err := Classify("path/two", opts)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if one.Identity() == two.Identity() {
		t.Fatalf("identities collide: %q", one.Identity())
	}
}

func never(string) bool { return false }
