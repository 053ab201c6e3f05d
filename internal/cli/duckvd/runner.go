package duckvd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/duckvd/duckvd/internal/app"
	"github.com/duckvd/duckvd/internal/backend"
	"github.com/duckvd/duckvd/internal/cache"
	"github.com/duckvd/duckvd/internal/classify"
	"github.com/duckvd/duckvd/internal/config"
	"github.com/duckvd/duckvd/internal/observability"
	"github.com/duckvd/duckvd/internal/query"
	"github.com/duckvd/duckvd/internal/query/duckdb"
	s3store "github.com/duckvd/duckvd/internal/storage/s3"
	"github.com/duckvd/duckvd/internal/viewer"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type Viewer interface {
	Locate() (string, error)
	Handoff(file string) error
}

type Options struct {
	Config  config.Config
	Version string
	Stdout  io.Writer
	Stderr  io.Writer
	// Viewer and Engine default to the configured viewer program and an
	// in-memory DuckDB engine.
	Viewer Viewer
	Engine query.Engine
	IsDir  func(string) bool
}

type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func Run(ctx context.Context, args []string, opts Options) int {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	cmd := newCommand(opts, stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	// Flag parsing failures from cobra itself.
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	_, _ = fmt.Fprintln(stderr, "Run with --help for usage information.")
	return exitUsage
}

func newCommand(opts Options, stdout, stderr io.Writer) *cobra.Command {
	var (
		noCache    bool
		clearCache bool
		queryText  string
		formatRaw  string
	)

	cmd := &cobra.Command{
		Use:   "duck-vd [flags] QUERY_OR_PATH",
		Short: "Query data with DuckDB and view it in VisiData",
		Long: `duck-vd runs a SQL query, or reads a data file or URI, with an embedded
DuckDB engine, caches the result as Parquet and opens it in VisiData.

Supported remote sources: gs://, s3://, http:// and https://.`,
		Example: `  duck-vd "SELECT * FROM 'data.csv' WHERE amount > 10"
  duck-vd s3://bucket/events.parquet
  duck-vd ./exports --format json --query "SELECT kind, count(*) FROM mytable GROUP BY 1"`,
		Version:       opts.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cache.New(opts.Config.Cache.Dir)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
				return &exitCodeError{code: exitError}
			}
			if clearCache {
				return runClearCache(c, stdout, stderr)
			}

			if len(args) > 1 {
				_, _ = fmt.Fprintf(stderr, "Error: Got unexpected extra arguments (%s).\n", strings.Join(args[1:], " "))
				_, _ = fmt.Fprintln(stderr, "Run with --help for usage information.")
				return &exitCodeError{code: exitUsage}
			}
			input := ""
			if len(args) == 1 {
				input = args[0]
			}
			if strings.TrimSpace(input) == "" {
				_, _ = fmt.Fprintln(stderr, "Error: Missing argument 'QUERY_OR_PATH'.")
				_, _ = fmt.Fprintln(stderr, "Run with --help for usage information.")
				return &exitCodeError{code: exitUsage}
			}

			return runQuery(cmd.Context(), opts, c, queryRequest{
				input:   input,
				query:   queryText,
				format:  formatRaw,
				noCache: noCache,
			}, stderr)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&noCache, "no-cache", false, "Bypass the cache for a fresh query result.")
	flags.BoolVar(&clearCache, "clear-cache", false, "Clear the entire query result cache and exit.")
	flags.StringVarP(&queryText, "query", "q", "", "Query to run against the source, which is available as table \"mytable\".")
	flags.StringVarP(&formatRaw, "format", "f", "", "Source format: csv, json or parquet. Required for folders.")
	return cmd
}

func runClearCache(c *cache.Cache, stdout, stderr io.Writer) error {
	_, _ = fmt.Fprintf(stdout, "Clearing cache at: %s\n", c.Dir())
	result, err := c.Clear()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return &exitCodeError{code: exitError}
	}
	if !result.Existed {
		_, _ = fmt.Fprintln(stdout, "Cache directory does not exist, nothing to do.")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "Cache cleared: removed %d files (%s).\n", result.Files, humanize.Bytes(uint64(result.Bytes)))
	return nil
}

type queryRequest struct {
	input   string
	query   string
	format  string
	noCache bool
}

func runQuery(ctx context.Context, opts Options, c *cache.Cache, req queryRequest, stderr io.Writer) error {
	cfg := opts.Config
	logger := observability.NewLogger(cfg, stderr)
	ctx = observability.ContextWithRunID(ctx, observability.NewRunID())

	view := opts.Viewer
	if view == nil {
		view = viewer.New(cfg.Viewer.Program)
	}
	if _, err := view.Locate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %s not found in your PATH.\n", cfg.Viewer.Program)
		_, _ = fmt.Fprintln(stderr, viewer.InstallHint)
		return &exitCodeError{code: exitError}
	}

	format, err := query.ParseFormat(req.format)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return &exitCodeError{code: exitUsage}
	}
	spec, err := classify.Classify(req.input, classify.Options{
		Query:  req.query,
		Format: format,
		IsDir:  opts.IsDir,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return &exitCodeError{code: exitUsage}
	}

	engine := opts.Engine
	if engine == nil {
		engine = duckdb.NewEngine(gcsCapability(cfg), cfg.Engine.Threads)
	}
	metrics := observability.NewMetrics()
	runner := &app.Runner{Cache: c, Engine: engine, Metrics: metrics, Logger: logger}

	outcome, err := runner.Run(ctx, app.Request{
		Spec:    spec,
		URI:     classify.FindURI(req.input),
		NoCache: req.noCache,
	})
	if writeErr := metrics.WriteTextfile(cfg.Observability.MetricsFile); writeErr != nil {
		logger.WarnContext(ctx, "failed to write metrics", slog.Any("error", writeErr))
	}
	if err != nil {
		return reportRunError(stderr, err)
	}

	if outcome.CacheHit {
		_, _ = fmt.Fprintf(stderr, "[Using cached result] Opening: %s\n", outcome.Path)
	} else {
		_, _ = fmt.Fprintf(stderr, "Query successful (%d rows, %s). Result cached and opened in %s: %s\n",
			outcome.Rows, humanize.Bytes(uint64(outcome.Bytes)), cfg.Viewer.Program, outcome.Path)
	}

	if err := view.Handoff(outcome.Path); err != nil {
		var viewerExit *viewer.ExitError
		if errors.As(err, &viewerExit) {
			return &exitCodeError{code: viewerExit.Code}
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return &exitCodeError{code: exitError}
	}
	return nil
}

func reportRunError(stderr io.Writer, err error) error {
	var capErr *backend.CapabilityError
	var queryErr *query.Error
	switch {
	case errors.As(err, &capErr):
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", capErr)
		_, _ = fmt.Fprintln(stderr, capErr.Hint)
	case errors.As(err, &queryErr):
		_, _ = fmt.Fprintf(stderr, "DuckDB Error: %v\n", queryErr)
	default:
		_, _ = fmt.Fprintf(stderr, "An unexpected error occurred: %v\n", err)
	}
	return &exitCodeError{code: exitError}
}

func gcsCapability(cfg config.Config) backend.GCSCapability {
	return backend.GCSCapability{
		Credentials: backend.Credentials{KeyID: cfg.GCS.KeyID, Secret: cfg.GCS.Secret},
		Verify:      cfg.GCS.VerifyBucket,
		NewChecker: func(creds backend.Credentials) (backend.BucketChecker, error) {
			checker, err := s3store.NewBucketChecker(s3store.Config{
				Endpoint:        cfg.GCS.Endpoint,
				AccessKeyID:     creds.KeyID,
				SecretAccessKey: creds.Secret,
				UseSSL:          true,
			})
			if err != nil {
				return nil, err
			}
			return checker, nil
		},
	}
}
