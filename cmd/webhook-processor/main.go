package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StantonManagement/sms-foundation-agent/internal/awsutil"
	"github.com/StantonManagement/sms-foundation-agent/internal/config"
	"github.com/StantonManagement/sms-foundation-agent/internal/httpserver"
	"github.com/StantonManagement/sms-foundation-agent/internal/langdetect"
	"github.com/StantonManagement/sms-foundation-agent/internal/logging"
	"github.com/StantonManagement/sms-foundation-agent/internal/observability"
	sqsqueue "github.com/StantonManagement/sms-foundation-agent/internal/queue/sqs"
	"github.com/StantonManagement/sms-foundation-agent/internal/retry"
	"github.com/StantonManagement/sms-foundation-agent/internal/service"
	"github.com/StantonManagement/sms-foundation-agent/internal/store/pg"
	"github.com/StantonManagement/sms-foundation-agent/internal/tenantdir"
)

func main() {
	cfg := config.LoadWebhookProcessor()
	logging.Init("webhook-processor", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("webhook-processor db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	dbStore := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("webhook-processor sqs client init failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	directory := tenantdir.New(cfg.MonitorAPIURL, mustDuration(cfg.MonitorTimeout), retry.Policy{
		MaxAttempts: cfg.MonitorMaxAttempts,
		BaseDelay:   mustDuration(cfg.MonitorBackoffBase),
		MaxDelay:    mustDuration(cfg.MonitorBackoffCap),
	})
	inbound := &service.Inbound{Store: dbStore, Directory: directory, Detect: langdetect.Detect}
	status := &service.Status{Store: dbStore}

	consumer := &sqsqueue.WebhookConsumer{
		SQS:               sqsClient,
		QueueURL:          cfg.WebhookEventsQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	healthMux := httpserver.New().Mux
	healthMux.Use(httpserver.Logging)
	healthMux.HandleFunc("/healthz", httpserver.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.WebhookEventsQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	)).Methods(http.MethodGet)

	healthSrv := &http.Server{Addr: ":" + cfg.Port, Handler: healthMux}
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("webhook-processor health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()
	metricsErrCh := make(chan error, 1)
	go func() {
		slog.Info("webhook-processor metrics listening", "port", cfg.MetricsPort)
		metricsErrCh <- metricsSrv.ListenAndServe()
	}()

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("webhook-processor starting poll", "queue_url", cfg.WebhookEventsQueueURL)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.ProcessorConcurrency, func(ctx context.Context, ev sqsqueue.WebhookEvent) error {
			return processWebhookEvent(ctx, inbound, status, ev)
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("webhook-processor poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("webhook-processor health server failed", "err", err)
			os.Exit(1)
		}
	case err := <-metricsErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("webhook-processor metrics server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("webhook-processor shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("webhook-processor shutdown timeout waiting for poll loop")
	}
}

// processWebhookEvent replays one queued callback through the same pipeline
// the inline mode uses. A pipeline error means a dependency was down, so the
// message is left for SQS redrive; anything else is final.
func processWebhookEvent(ctx context.Context, inbound *service.Inbound, status *service.Status, ev sqsqueue.WebhookEvent) error {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	switch ev.Kind {
	case sqsqueue.KindInbound:
		_, err = inbound.Process(dbCtx, service.InboundPayloadFromForm(ev.Form))
	case sqsqueue.KindStatus:
		_, err = status.Process(dbCtx, service.StatusPayloadFromForm(ev.Form))
	default:
		// unknown kind => drop, redriving cannot fix it
		slog.Warn("webhook event with unknown kind dropped", "kind", ev.Kind)
		observability.WebhookQueue.WithLabelValues("dropped").Inc()
		return nil
	}
	if err != nil {
		observability.WebhookQueue.WithLabelValues("redrive").Inc()
		return fmt.Errorf("webhook %s event for %s: %w", ev.Kind, ev.Form["MessageSid"], err)
	}
	observability.WebhookQueue.WithLabelValues("processed").Inc()
	return nil
}

func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Error("invalid duration in config", "value", raw, "err", err)
		os.Exit(1)
	}
	return d
}
