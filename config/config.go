package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	Database          DatabaseConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Auth              AuthConfig
	Stripe            StripeConfig
	YooKassa          YooKassaConfig
	Payments          PaymentsConfig
	RateLimit         RateLimitConfig
	Kafka             KafkaConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type AuthConfig struct {
	JWTSecret string
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	Currency                  string
	APIURL                    string
	HTTPTimeout               time.Duration
}

type YooKassaConfig struct {
	ShopID        string
	SecretKey     string
	WebhookSecret string
	ReturnURL     string
	Currency      string
	APIURL        string
	HTTPTimeout   time.Duration
}

type PaymentsConfig struct {
	DefaultProvider          string
	MockEnabled              bool
	DefaultCommissionPercent string
	MinIdempotencyKeyLength  int
	PendingTimeout           time.Duration
	JobBatchSize             int32
	NotifyMaxAttempts        int32
	NotifyRetryInterval      time.Duration
}

type RateLimitConfig struct {
	MaxRequests   int
	Window        time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type JobsConfig struct {
	ExpirePendingInterval  time.Duration
	NotifyDispatchInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, errors.New("DATABASE_DSN environment variable is required")
	}

	driver := strings.ToLower(getEnv("DATABASE_DRIVER", "postgres"))
	if driver != "postgres" && driver != "mysql" {
		return nil, errors.New("DATABASE_DRIVER must be postgres or mysql")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payments-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		Database: DatabaseConfig{
			Driver:          driver,
			DSN:             dsn,
			MaxOpenConns:    getIntEnv("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("DATABASE_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		Stripe: StripeConfig{
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			Currency:                  strings.ToLower(getEnv("STRIPE_CURRENCY", "rub")),
			APIURL:                    getEnv("STRIPE_API_URL", ""),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		YooKassa: YooKassaConfig{
			ShopID:        getEnv("YOOKASSA_SHOP_ID", ""),
			SecretKey:     getEnv("YOOKASSA_SECRET_KEY", ""),
			WebhookSecret: getEnv("YOOKASSA_WEBHOOK_SECRET", ""),
			ReturnURL:     getEnv("YOOKASSA_RETURN_URL", ""),
			Currency:      strings.ToUpper(getEnv("YOOKASSA_CURRENCY", "RUB")),
			APIURL:        getEnv("YOOKASSA_API_URL", "https://api.yookassa.ru"),
			HTTPTimeout:   getSecondsEnv("YOOKASSA_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			DefaultProvider:          strings.ToLower(getEnv("PAYMENTS_DEFAULT_PROVIDER", "")),
			MockEnabled:              getBoolEnv("PAYMENTS_MOCK_ENABLED", false),
			DefaultCommissionPercent: getEnv("PAYMENTS_DEFAULT_COMMISSION_PERCENT", "7"),
			MinIdempotencyKeyLength:  getIntEnv("PAYMENTS_MIN_IDEMPOTENCY_KEY_LENGTH", 20),
			PendingTimeout:           getMinutesEnv("PAYMENTS_PENDING_TIMEOUT_MINUTES", 60*time.Minute),
			JobBatchSize:             int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
			NotifyMaxAttempts:        int32(getIntEnv("PAYMENTS_NOTIFY_MAX_ATTEMPTS", 10)),
			NotifyRetryInterval:      getMinutesEnv("PAYMENTS_NOTIFY_RETRY_INTERVAL_MINUTES", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   getIntEnv("RATE_LIMIT_MAX_REQUESTS", 10),
			Window:        getSecondsEnv("RATE_LIMIT_WINDOW_SECONDS", time.Minute),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getIntEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getListEnv("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "payments.transactions"),
		},
		Jobs: JobsConfig{
			ExpirePendingInterval:  getMinutesEnv("PAYMENTS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
			NotifyDispatchInterval: getMinutesEnv("PAYMENTS_NOTIFY_DISPATCH_INTERVAL_MINUTES", time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
