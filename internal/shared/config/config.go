package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Sync       SyncConfig
	Scheduler  SchedulerConfig
	Providers  ProvidersConfig
	TLS        TLSConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	HostURL      string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

type EncryptionConfig struct {
	Key string
}

type SyncConfig struct {
	OverlapDays       int
	InitialWindowDays int
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	ManualThrottle    time.Duration
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type ProvidersConfig struct {
	DemoMode  bool
	Plaid     PlaidConfig
	TrueLayer TrueLayerConfig
	Belvo     BelvoConfig
	Yodlee    YodleeConfig
}

type PlaidConfig struct {
	ClientID      string
	Secret        string
	Environment   string
	WebhookURL    string
	WebhookSecret string
}

type TrueLayerConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	WebhookSecret string
}

type BelvoConfig struct {
	SecretID       string
	SecretPassword string
	Environment    string
	WebhookSecret  string
}

type YodleeConfig struct {
	ClientID      string
	Secret        string
	Environment   string
	WebhookSecret string
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	// Parse sync configuration
	overlapDays, err := strconv.Atoi(getEnv("SYNC_OVERLAP_DAYS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_OVERLAP_DAYS: %w", err)
	}
	initialWindowDays, err := strconv.Atoi(getEnv("SYNC_INITIAL_WINDOW_DAYS", "90"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INITIAL_WINDOW_DAYS: %w", err)
	}
	maxAttempts, err := strconv.Atoi(getEnv("SYNC_MAX_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_MAX_ATTEMPTS: %w", err)
	}
	retryBaseDelay, err := time.ParseDuration(getEnv("SYNC_RETRY_BASE_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_RETRY_BASE_DELAY: %w", err)
	}
	manualThrottle, err := time.ParseDuration(getEnv("SYNC_MANUAL_THROTTLE", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_MANUAL_THROTTLE: %w", err)
	}

	// Parse scheduler configuration
	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", true)
	schedulerTimes := strings.Split(getEnv("SCHEDULER_TIMES", "05:00,11:00,17:00,23:00"), ",")
	schedulerWorkers, err := strconv.Atoi(getEnv("SCHEDULER_WORKERS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_WORKERS: %w", err)
	}
	schedulerJobDelay, err := time.ParseDuration(getEnv("SCHEDULER_JOB_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_DELAY: %w", err)
	}
	schedulerQueueSize, err := strconv.Atoi(getEnv("SCHEDULER_QUEUE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_QUEUE_SIZE: %w", err)
	}
	schedulerRunOnStartup := getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false)

	// Parse TLS configuration
	tlsEnabled := getBoolEnv("TLS_ENABLED", false)

	// Parse allowed hosts (comma-separated list)
	allowedHostsStr := getEnv("ALLOWED_HOSTS", "")
	var allowedHosts []string
	if allowedHostsStr != "" {
		for _, host := range strings.Split(allowedHostsStr, ",") {
			host = strings.TrimSpace(host)
			if host != "" {
				allowedHosts = append(allowedHosts, host)
			}
		}
	}

	hostURL := getEnv("HOST_URL", "")
	truelayerRedirect := getEnv("TRUELAYER_REDIRECT_URI", "")
	if truelayerRedirect == "" && hostURL != "" {
		truelayerRedirect = hostURL + "/api/bank/callback/truelayer"
	}
	plaidWebhookURL := getEnv("PLAID_WEBHOOK_URL", "")
	if plaidWebhookURL == "" && hostURL != "" {
		plaidWebhookURL = hostURL + "/api/bank/webhooks/plaid"
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			HostURL:      hostURL,
			AllowedHosts: allowedHosts,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "moneta"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "moneta"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Sync: SyncConfig{
			OverlapDays:       overlapDays,
			InitialWindowDays: initialWindowDays,
			MaxAttempts:       maxAttempts,
			RetryBaseDelay:    retryBaseDelay,
			ManualThrottle:    manualThrottle,
		},
		Scheduler: SchedulerConfig{
			Enabled:       schedulerEnabled,
			ScheduleTimes: schedulerTimes,
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  schedulerRunOnStartup,
		},
		Providers: ProvidersConfig{
			DemoMode: getBoolEnv("BANK_DEMO_MODE", false),
			Plaid: PlaidConfig{
				ClientID:      getEnv("PLAID_CLIENT_ID", ""),
				Secret:        getEnv("PLAID_SECRET", ""),
				Environment:   getEnv("PLAID_ENV", "sandbox"),
				WebhookURL:    plaidWebhookURL,
				WebhookSecret: getEnv("PLAID_WEBHOOK_SECRET", ""),
			},
			TrueLayer: TrueLayerConfig{
				ClientID:      getEnv("TRUELAYER_CLIENT_ID", ""),
				ClientSecret:  getEnv("TRUELAYER_CLIENT_SECRET", ""),
				RedirectURI:   truelayerRedirect,
				WebhookSecret: getEnv("TRUELAYER_WEBHOOK_SECRET", ""),
			},
			Belvo: BelvoConfig{
				SecretID:       getEnv("BELVO_SECRET_ID", ""),
				SecretPassword: getEnv("BELVO_SECRET_PASSWORD", ""),
				Environment:    getEnv("BELVO_ENV", "sandbox"),
				WebhookSecret:  getEnv("BELVO_WEBHOOK_SECRET", ""),
			},
			Yodlee: YodleeConfig{
				ClientID:      getEnv("YODLEE_CLIENT_ID", ""),
				Secret:        getEnv("YODLEE_SECRET", ""),
				Environment:   getEnv("YODLEE_ENV", "sandbox"),
				WebhookSecret: getEnv("YODLEE_WEBHOOK_SECRET", ""),
			},
		},
		TLS: TLSConfig{
			Enabled:      tlsEnabled,
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "moneta-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if cfg.Sync.OverlapDays < 0 || cfg.Sync.InitialWindowDays <= 0 {
		return nil, fmt.Errorf("sync window configuration must be positive")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
