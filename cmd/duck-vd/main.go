package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckvd/duckvd/internal/cli/duckvd"
	"github.com/duckvd/duckvd/internal/config"
)

var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv(config.AppName)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := duckvd.Run(ctx, os.Args[1:], duckvd.Options{
		Config:  cfg,
		Version: version,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
	stop()
	os.Exit(code)
}
