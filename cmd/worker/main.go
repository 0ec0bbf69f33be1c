package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docstack/internal/bootstrap"
	"github.com/kirillkom/docstack/internal/config"
	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/observability/logging"
	"github.com/kirillkom/docstack/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewLogger(service, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:    cfg.WorkerMetricsAddr,
		Handler: metricsHandler(workerMetrics),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeIngestJobs(ctx, func(handlerCtx context.Context, job domain.IngestJob) error {
		return handleJob(handlerCtx, app, workerMetrics, cfg.WorkerDocTimeout.Std(), job)
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func metricsHandler(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// handleJob runs one queued document under the per-document deadline.
// Failures are logged by the queue layer; successes are logged here so
// every job leaves exactly one line with its outcome.
func handleJob(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, timeout time.Duration, job domain.IngestJob) error {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !job.EnqueuedAt.IsZero() {
		m.ObserveQueueLag(service, time.Since(job.EnqueuedAt))
	}
	m.StartDocument()
	start := time.Now()

	outcome, err := app.ProcessUC.ProcessJob(processCtx, job)
	m.FinishDocument(service, string(outcome), time.Since(start))
	if err != nil {
		return err
	}

	slog.Info("document_processed",
		"document_id", job.DocumentID,
		"user_id", job.UserID,
		"outcome", string(outcome),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return nil
}
