package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr         string
	Environment  string
	Logging      LoggingConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Gateway      GatewayConfig
	Registration RegistrationConfig
	// WebhookRetryWindow is how long the gateway keeps redelivering an
	// unacknowledged webhook. Delivery dedupe entries live this long.
	WebhookRetryWindow time.Duration
	OrderCacheTTL      time.Duration
	CatalogPath        string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers            string
	Topic              string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
}

// GatewayConfig holds the payment gateway credentials and call budgets.
type GatewayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
	// FetchTimeout bounds the order read-back during direct confirmation.
	// On expiry the confirmation falls back to the client-supplied event list.
	FetchTimeout time.Duration
	Currency     string
}

// Registration store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBolt     = "bolt"
	StoreDisabled = "disabled"
)

type RegistrationConfig struct {
	Store       string
	BoltPath    string
	MaxAttempts int
}

const (
	envDevelopment = "development"
	envProduction  = "production"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	env := getenv("ENVIRONMENT", envDevelopment)

	cfg := Server{
		Addr:        getenv("EVENTPAY_ADDR", ":8080"),
		Environment: env,
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    intEnv("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    intEnv("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: durationEnv("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:            os.Getenv("KAFKA_BROKERS"),
			Topic:              getenv("KAFKA_TOPIC", "eventpay.registrations"),
			OutboxPollInterval: durationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
			OutboxBatchSize:    intEnv("OUTBOX_BATCH_SIZE", 100),
		},
		Gateway: GatewayConfig{
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
			BaseURL:       getenv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
			Timeout:       durationEnv("GATEWAY_TIMEOUT", 10*time.Second),
			FetchTimeout:  durationEnv("ORDER_FETCH_TIMEOUT", 3*time.Second),
			Currency:      getenv("CURRENCY", "INR"),
		},
		Registration: RegistrationConfig{
			Store:       strings.ToLower(getenv("REGISTRATION_STORE", StoreMemory)),
			BoltPath:    getenv("BOLT_PATH", "eventpay.db"),
			MaxAttempts: intEnv("RECONCILE_MAX_ATTEMPTS", 5),
		},
		WebhookRetryWindow: durationEnv("WEBHOOK_RETRY_WINDOW", 24*time.Hour),
		OrderCacheTTL:      durationEnv("ORDER_CACHE_TTL", 2*time.Hour),
		CatalogPath:        os.Getenv("CATALOG_PATH"),
	}

	if env == envDevelopment {
		// Development defaults so the service boots against the fake gateway.
		if cfg.Gateway.KeyID == "" {
			cfg.Gateway.KeyID = "rzp_test_dev"
		}
		if cfg.Gateway.KeySecret == "" {
			cfg.Gateway.KeySecret = "dev-key-secret-change-in-production"
		}
		if cfg.Gateway.WebhookSecret == "" {
			cfg.Gateway.WebhookSecret = "dev-webhook-secret-change-in-production"
		}
	}
	return cfg
}

// Validate reports configuration that would make the service unsafe or unable to start.
func (s Server) Validate() error {
	var errs []error
	if s.Gateway.KeyID == "" || s.Gateway.KeySecret == "" {
		errs = append(errs, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required"))
	}
	if s.Gateway.WebhookSecret == "" {
		errs = append(errs, errors.New("RAZORPAY_WEBHOOK_SECRET is required"))
	}
	if s.Environment == envProduction && strings.HasPrefix(s.Gateway.KeySecret, "dev-") {
		errs = append(errs, errors.New("development gateway secret used in production"))
	}
	switch s.Registration.Store {
	case StoreMemory, StoreBolt, StoreDisabled:
	case StorePostgres:
		if s.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres registration store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REGISTRATION_STORE %q", s.Registration.Store))
	}
	if s.Registration.MaxAttempts < 1 {
		errs = append(errs, errors.New("RECONCILE_MAX_ATTEMPTS must be at least 1"))
	}
	if s.WebhookRetryWindow <= 0 {
		errs = append(errs, errors.New("WEBHOOK_RETRY_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
