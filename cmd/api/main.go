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
	"golang.org/x/time/rate"

	smsfoundation "github.com/StantonManagement/sms-foundation-agent"
	"github.com/StantonManagement/sms-foundation-agent/internal/awsutil"
	"github.com/StantonManagement/sms-foundation-agent/internal/config"
	"github.com/StantonManagement/sms-foundation-agent/internal/httpserver"
	"github.com/StantonManagement/sms-foundation-agent/internal/langdetect"
	"github.com/StantonManagement/sms-foundation-agent/internal/logging"
	"github.com/StantonManagement/sms-foundation-agent/internal/observability"
	"github.com/StantonManagement/sms-foundation-agent/internal/providers/twilio"
	sqsqueue "github.com/StantonManagement/sms-foundation-agent/internal/queue/sqs"
	"github.com/StantonManagement/sms-foundation-agent/internal/retry"
	"github.com/StantonManagement/sms-foundation-agent/internal/service"
	"github.com/StantonManagement/sms-foundation-agent/internal/store/pg"
	"github.com/StantonManagement/sms-foundation-agent/internal/tenantdir"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RunMigrations {
		if err := pg.Migrate(smsfoundation.MigrationsFS(), "migrations", cfg.DBDSN); err != nil {
			slog.Error("api migrations failed", "err", err)
			os.Exit(1)
		}
	}

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	dbStore := pg.New(db)

	observability.Register(prometheus.DefaultRegisterer)

	sender := &twilio.Client{
		AccountSID:          cfg.TwilioAccountSID,
		AuthToken:           cfg.TwilioAuthToken,
		FromNumber:          cfg.TwilioFromNumber,
		MessagingServiceSID: cfg.TwilioMessagingServiceSID,
		BaseURL:             cfg.TwilioBaseURL,
		HTTP:                &http.Client{Timeout: 10 * time.Second},
	}

	directory := tenantdir.New(cfg.MonitorAPIURL, mustDuration(cfg.MonitorTimeout), retry.Policy{
		MaxAttempts: cfg.MonitorMaxAttempts,
		BaseDelay:   mustDuration(cfg.MonitorBackoffBase),
		MaxDelay:    mustDuration(cfg.MonitorBackoffCap),
	})

	inbound := &service.Inbound{Store: dbStore, Directory: directory, Detect: langdetect.Detect}
	status := &service.Status{Store: dbStore}
	outbound := &service.Outbound{
		Store:  dbStore,
		Sender: sender,
		Policy: retry.Policy{
			MaxAttempts: cfg.SendMaxAttempts,
			BaseDelay:   mustDuration(cfg.SendBackoffBase),
			MaxDelay:    mustDuration(cfg.SendBackoffCap),
		},
		Limiter: rate.NewLimiter(rate.Limit(cfg.TwilioRPSPerPod), cfg.TwilioBurst),
	}

	webhook := &httpserver.Webhook{
		Inbound:       inbound,
		Status:        status,
		AuthToken:     cfg.TwilioAuthToken,
		PublicBaseURL: cfg.PublicWebhookBaseURL,
	}
	if cfg.VerifyWebhookSignature {
		webhook.VerifySignature = twilio.VerifySignature
	}
	if cfg.WebhookIngestMode == "queue" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("api sqs client init failed", "err", err)
			os.Exit(1)
		}
		webhook.Queue = &sqsqueue.WebhookProducer{SQS: sqsClient, QueueURL: cfg.WebhookEventsQueueURL}
	}

	api := &httpserver.API{Outbound: outbound, Reader: dbStore}

	s := httpserver.New()
	s.Mux.Use(httpserver.Metrics(observability.APIRequests))
	api.Register(s.Mux)
	webhook.Register(s.Mux)
	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	handler := httpserver.RequestID(httpserver.Logging(s.Mux))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: handler}
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}

	go func() {
		slog.Info("api metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api metrics server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port, "ingest_mode", cfg.WebhookIngestMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}
}

func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Error("invalid duration in config", "value", raw, "err", err)
		os.Exit(1)
	}
	return d
}
