// Package classify turns the free-form command-line argument into a resolved
// query.Spec.
package classify

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/duckvd/duckvd/internal/query"
)

var (
	ErrEmptyInput        = errors.New("query or path is required")
	ErrFormatRequired    = errors.New("a format is required for folder sources")
	ErrQueryWithOverride = errors.New("--query and --format apply to a data source, not to a literal SQL query")
)

var sqlMarkers = []string{"SELECT ", "FROM ", "WITH ", "VALUES "}

var uriPattern = regexp.MustCompile(`['"]?((?:gs|s3|https?)://[^'"]+)['"]?`)

type Options struct {
	Query  string
	Format query.Format
	// IsDir reports whether a local source is a folder. Defaults to os.Stat.
	IsDir func(string) bool
}

// IsQuery is a keyword heuristic, not a parser.
func IsQuery(input string) bool {
	upper := strings.ToUpper(input)
	for _, marker := range sqlMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// FindURI returns the first gs, s3, http or https URI in s without
// surrounding quotes, or "".
func FindURI(s string) string {
	match := uriPattern.FindStringSubmatch(s)
	if match == nil {
		return ""
	}
	return match[1]
}

func Classify(input string, opts Options) (query.Spec, error) {
	if strings.TrimSpace(input) == "" {
		return query.Spec{}, ErrEmptyInput
	}
	overrideQuery := strings.TrimSpace(opts.Query)

	if IsQuery(input) {
		if overrideQuery != "" || opts.Format != query.FormatUnset {
			return query.Spec{}, ErrQueryWithOverride
		}
		return query.Spec{SQL: input}, nil
	}

	source := filepath.ToSlash(strings.TrimSpace(input))
	isDir := opts.IsDir
	if isDir == nil {
		isDir = localDir
	}
	folder := isFolder(source, isDir)

	if overrideQuery == "" && opts.Format == query.FormatUnset && !folder {
		return query.Spec{
			SQL:    fmt.Sprintf("SELECT * FROM '%s';", source),
			Source: source,
		}, nil
	}

	format := opts.Format
	if format == query.FormatUnset {
		if folder {
			return query.Spec{}, fmt.Errorf("%w: %q", ErrFormatRequired, source)
		}
		format = inferFormat(source)
		if format == query.FormatUnset {
			return query.Spec{}, fmt.Errorf("cannot infer format of %q; pass --format", source)
		}
	}

	pattern := source
	if folder {
		pattern = strings.TrimRight(source, "/") + "/**/*." + format.Extension()
	}

	sqlText := overrideQuery
	if sqlText == "" {
		sqlText = "SELECT * FROM " + query.PlaceholderTable + ";"
	}
	return query.Spec{
		SQL:     sqlText,
		Source:  source,
		Pattern: pattern,
		Format:  format,
		Table:   query.PlaceholderTable,
	}, nil
}

func isFolder(source string, isDir func(string) bool) bool {
	if FindURI(source) == source {
		return strings.HasSuffix(source, "/")
	}
	return isDir(filepath.FromSlash(source))
}

func localDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func inferFormat(source string) query.Format {
	switch strings.ToLower(path.Ext(source)) {
	case ".csv", ".tsv", ".txt":
		return query.FormatCSV
	case ".json", ".jsonl", ".ndjson":
		return query.FormatJSON
	case ".parquet", ".pq":
		return query.FormatParquet
	default:
		return query.FormatUnset
	}
}
