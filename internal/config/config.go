package config

import "github.com/kelseyhightower/envconfig"

type APIConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	RunMigrations bool `envconfig:"RUN_MIGRATIONS" default:"true"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	// Twilio
	TwilioAccountSID          string  `envconfig:"TWILIO_ACCOUNT_SID" required:"true"`
	TwilioAuthToken           string  `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	TwilioFromNumber          string  `envconfig:"TWILIO_FROM_NUMBER"`
	TwilioMessagingServiceSID string  `envconfig:"TWILIO_MESSAGING_SERVICE_SID"`
	TwilioBaseURL             string  `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`
	TwilioRPSPerPod           float64 `envconfig:"TWILIO_RPS_PER_POD" default:"5"`
	TwilioBurst               int     `envconfig:"TWILIO_BURST" default:"10"`

	// Webhook signature verification. PublicWebhookBaseURL must match the
	// exact scheme+host Twilio is configured with; the route path is appended.
	VerifyWebhookSignature bool   `envconfig:"VERIFY_WEBHOOK_SIGNATURE" default:"true"`
	PublicWebhookBaseURL   string `envconfig:"PUBLIC_WEBHOOK_BASE_URL"`

	// Provider send retry policy
	SendMaxAttempts int    `envconfig:"SEND_MAX_ATTEMPTS" default:"3"`
	SendBackoffBase string `envconfig:"SEND_BACKOFF_BASE" default:"100ms"`
	SendBackoffCap  string `envconfig:"SEND_BACKOFF_CAP" default:"2s"`

	// Tenant directory (Collections Monitor)
	MonitorAPIURL      string `envconfig:"MONITOR_API_URL"`
	MonitorTimeout     string `envconfig:"MONITOR_TIMEOUT" default:"3s"`
	MonitorMaxAttempts int    `envconfig:"MONITOR_MAX_ATTEMPTS" default:"4"`
	MonitorBackoffBase string `envconfig:"MONITOR_BACKOFF_BASE" default:"100ms"`
	MonitorBackoffCap  string `envconfig:"MONITOR_BACKOFF_CAP" default:"2s"`

	// Webhook intake mode: "inline" processes on the request path,
	// "queue" enqueues the raw event to SQS for the webhook-processor.
	WebhookIngestMode     string `envconfig:"WEBHOOK_INGEST_MODE" default:"inline"`
	AWSRegion             string `envconfig:"AWS_REGION" default:"us-east-1"`
	WebhookEventsQueueURL string `envconfig:"WEBHOOK_EVENTS_QUEUE_URL"`
	LocalstackEndpoint    string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type WebhookProcessorConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	AWSRegion             string `envconfig:"AWS_REGION" required:"true"`
	WebhookEventsQueueURL string `envconfig:"WEBHOOK_EVENTS_QUEUE_URL" required:"true"`
	LocalstackEndpoint    string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime           int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs            int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout         int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`
	ProcessorConcurrency  int    `envconfig:"PROCESSOR_CONCURRENCY" default:"10"`

	MonitorAPIURL      string `envconfig:"MONITOR_API_URL"`
	MonitorTimeout     string `envconfig:"MONITOR_TIMEOUT" default:"3s"`
	MonitorMaxAttempts int    `envconfig:"MONITOR_MAX_ATTEMPTS" default:"4"`
	MonitorBackoffBase string `envconfig:"MONITOR_BACKOFF_BASE" default:"100ms"`
	MonitorBackoffCap  string `envconfig:"MONITOR_BACKOFF_CAP" default:"2s"`
}

type ReconcilerConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Cron spec for the sweep; standard 5-field syntax.
	Schedule  string `envconfig:"RECONCILE_SCHEDULE" default:"*/15 * * * *"`
	BatchSize int    `envconfig:"RECONCILE_BATCH_SIZE" default:"100"`
	RunOnce   bool   `envconfig:"RECONCILE_RUN_ONCE" default:"false"`

	MonitorAPIURL      string `envconfig:"MONITOR_API_URL" required:"true"`
	MonitorTimeout     string `envconfig:"MONITOR_TIMEOUT" default:"3s"`
	MonitorMaxAttempts int    `envconfig:"MONITOR_MAX_ATTEMPTS" default:"4"`
	MonitorBackoffBase string `envconfig:"MONITOR_BACKOFF_BASE" default:"100ms"`
	MonitorBackoffCap  string `envconfig:"MONITOR_BACKOFF_CAP" default:"2s"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWebhookProcessor() WebhookProcessorConfig {
	var cfg WebhookProcessorConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadReconciler() ReconcilerConfig {
	var cfg ReconcilerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
