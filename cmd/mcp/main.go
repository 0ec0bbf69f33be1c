package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/docstack/internal/adapters/mcp"
	"github.com/kirillkom/docstack/internal/bootstrap"
	"github.com/kirillkom/docstack/internal/config"
	"github.com/kirillkom/docstack/internal/observability/logging"
)

// The MCP binary serves the document Q&A tools over stdio. Stdout is
// the protocol channel, so all logging goes to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewStderrLogger("mcp", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	slog.Info("mcp_serving", "transport", "stdio")
	if err := mcpadapter.NewServer(app.QueryUC).ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
