package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/StantonManagement/sms-foundation-agent/internal/config"
	"github.com/StantonManagement/sms-foundation-agent/internal/logging"
	"github.com/StantonManagement/sms-foundation-agent/internal/observability"
	"github.com/StantonManagement/sms-foundation-agent/internal/retry"
	"github.com/StantonManagement/sms-foundation-agent/internal/service"
	"github.com/StantonManagement/sms-foundation-agent/internal/store/pg"
	"github.com/StantonManagement/sms-foundation-agent/internal/tenantdir"
)

func main() {
	cfg := config.LoadReconciler()
	logging.Init("reconciler", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{})
	if err != nil {
		slog.Error("reconciler db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	observability.Register(prometheus.DefaultRegisterer)

	directory := tenantdir.New(cfg.MonitorAPIURL, mustDuration(cfg.MonitorTimeout), retry.Policy{
		MaxAttempts: cfg.MonitorMaxAttempts,
		BaseDelay:   mustDuration(cfg.MonitorBackoffBase),
		MaxDelay:    mustDuration(cfg.MonitorBackoffCap),
	})
	reconciler := &service.Reconciler{
		Store:     pg.New(db),
		Directory: directory,
		BatchSize: cfg.BatchSize,
	}

	sweep := func() {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, 5*time.Minute)
		defer sweepCancel()
		sum, err := reconciler.Sweep(sweepCtx)
		if err != nil {
			slog.Error("reconciliation sweep failed", "err", err)
			return
		}
		slog.Info("reconciliation sweep done",
			"processed", sum.Processed,
			"matched", sum.Matched,
			"no_match", sum.NoMatch,
		)
	}

	if cfg.RunOnce {
		sweep()
		return
	}

	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}
	go func() {
		slog.Info("reconciler metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("reconciler metrics server failed", "err", err)
		}
	}()

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, sweep); err != nil {
		slog.Error("invalid reconcile schedule", "schedule", cfg.Schedule, "err", err)
		os.Exit(1)
	}
	c.Start()
	slog.Info("reconciler scheduled", "schedule", cfg.Schedule, "batch_size", cfg.BatchSize)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("reconciler shutdown", "signal", sig.String())

	cancel()
	<-c.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Error("invalid duration in config", "value", raw, "err", err)
		os.Exit(1)
	}
	return d
}
