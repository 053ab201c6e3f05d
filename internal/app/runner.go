// Package app resolves a query to a cached result file, executing it only on
// a cache miss.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duckvd/duckvd/internal/backend"
	"github.com/duckvd/duckvd/internal/cache"
	"github.com/duckvd/duckvd/internal/observability"
	"github.com/duckvd/duckvd/internal/query"
)

type Metrics interface {
	ObserveCacheHit()
	ObserveQuery(elapsed time.Duration, rows int, bytes int64)
	ObserveQueryError()
}

type Request struct {
	Spec query.Spec
	// URI is the first remote URI found in the raw input, if any.
	URI     string
	NoCache bool
}

type Outcome struct {
	Path     string
	CacheHit bool
	Rows     int
	Bytes    int64
}

type Runner struct {
	Cache   *cache.Cache
	Engine  query.Engine
	Metrics Metrics
	Logger  *slog.Logger
}

func (r *Runner) Run(ctx context.Context, request Request) (Outcome, error) {
	if r.Cache == nil || r.Engine == nil {
		return Outcome{}, fmt.Errorf("runner requires a cache and an engine")
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if runID := observability.RunIDFromContext(ctx); runID != "" {
		logger = logger.With(slog.String("run_id", runID))
	}

	key := cache.Key(request.Spec)
	path := r.Cache.Path(key)
	if !request.NoCache && r.Cache.Exists(key) {
		logger.InfoContext(ctx, "using cached result", slog.String("path", path))
		if r.Metrics != nil {
			r.Metrics.ObserveCacheHit()
		}
		return Outcome{Path: path, CacheHit: true}, nil
	}

	plan := backend.Select(request.URI)
	logger.InfoContext(ctx, "executing query",
		slog.String("sql", request.Spec.SQL),
		slog.String("source", request.Spec.Source),
		slog.String("backend", string(plan.Kind)),
	)

	result, err := r.Engine.Execute(ctx, query.Request{Spec: request.Spec, Backend: plan})
	if err != nil {
		if r.Metrics != nil {
			r.Metrics.ObserveQueryError()
		}
		return Outcome{}, err
	}

	entry, err := r.Cache.Write(key, result.Table)
	if err != nil {
		return Outcome{}, fmt.Errorf("cache result: %w", err)
	}
	rows := len(result.Table.Rows)
	if r.Metrics != nil {
		r.Metrics.ObserveQuery(result.Duration, rows, entry.Size)
	}
	logger.InfoContext(ctx, "query successful",
		slog.String("path", entry.Path),
		slog.Int("rows", rows),
		slog.Int64("bytes", entry.Size),
		slog.String("duration", result.Duration.String()),
	)
	return Outcome{Path: entry.Path, Rows: rows, Bytes: entry.Size}, nil
}
