package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/duckvd/duckvd/internal/config"
)

func TestMetricsTrackCacheOutcomes(t *testing.T) {
	m := NewMetrics()
	m.ObserveCacheHit()
	m.ObserveQuery(1500*time.Millisecond, 42, 2048)
	m.ObserveQueryError()

	if got := testutil.ToFloat64(m.cacheHitsTotal); got != 1 {
		t.Fatalf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheMissesTotal); got != 2 {
		t.Fatalf("cache misses = %v", got)
	}
	if got := testutil.ToFloat64(m.queryErrorsTotal); got != 1 {
		t.Fatalf("query errors = %v", got)
	}
	if got := testutil.ToFloat64(m.resultRows); got != 42 {
		t.Fatalf("result rows = %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveCacheHit()
	path := filepath.Join(t.TempDir(), "duck_vd.prom")

	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "duck_vd_cache_hits_total 1") {
		t.Fatalf("textfile = %s", data)
	}
}

func TestWriteTextfileEmptyPathIsNoop(t *testing.T) {
	if err := NewMetrics().WriteTextfile(""); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
}

func TestRunIDContextHelpers(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "abc123")
	if got := RunIDFromContext(ctx); got != "abc123" {
		t.Fatalf("RunIDFromContext() = %q", got)
	}
	if RunIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty run id")
	}
	if NewRunID() == NewRunID() {
		t.Fatal("expected distinct run ids")
	}
}

func TestNewLoggerDoesNotPanic(t *testing.T) {
	cfg := config.Config{Service: config.ServiceConfig{Name: "duck-vd"}}
	cfg.Observability.LogJSON = true
	cfg.Observability.LogLevel = slog.LevelInfo
	NewLogger(cfg, io.Discard).Info("hello")
	NewLogger(config.Config{}, nil).Info("hello")
}
