package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/bookstore/internal/domain/order"
)

const defaultAddr = "0.0.0.0:5000"

// Payment modes.
const (
	PaymentAssumePaid = "assume-paid"
	PaymentManual     = "manual"
)

// Config holds the complete application configuration, loadable from
// environment variables (BOOKSTORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:5000" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (BOOKSTORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative cover image paths" flag:"image-base-url"`
	Auth         AuthConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Payment      PaymentConfig
	OpenLibrary  OpenLibraryConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls bearer token signing.
type AuthConfig struct {
	Secret   string        `usage:"HMAC secret for signing tokens (BOOKSTORE_AUTH_SECRET or JWT_SECRET)"`
	TokenTTL time.Duration `default:"24h" usage:"Token lifetime" flag:"token-ttl"`
}

// RedisConfig controls the cart cache and checkout idempotency store. An
// empty URL disables both.
type RedisConfig struct {
	URL     string        `usage:"Redis URL (BOOKSTORE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	CartTTL time.Duration `default:"15m" usage:"Base TTL of cached carts" flag:"cart-ttl"`
}

// KafkaConfig locates the topic order events are relayed to.
type KafkaConfig struct {
	Brokers string `default:"" usage:"Comma-separated Kafka brokers"`
	Topic   string `default:"bookstore.orders" usage:"Topic for order events"`
}

// OutboxConfig controls order event recording and relaying.
type OutboxConfig struct {
	Enabled  bool          `default:"false" usage:"Record order events and relay them to Kafka" flag:"outbox-enabled"`
	Interval time.Duration `default:"1s" usage:"Relay poll interval" flag:"outbox-interval"`
	Batch    int           `default:"100" usage:"Messages per relay poll" flag:"outbox-batch"`
}

// PaymentConfig selects how new orders are settled.
type PaymentConfig struct {
	Mode string `default:"assume-paid" usage:"assume-paid marks orders paid, manual leaves them pending" flag:"payment-mode"`
}

// OpenLibraryConfig configures the Open Library proxy.
type OpenLibraryConfig struct {
	BaseURL string        `default:"https://openlibrary.org" usage:"Open Library base URL" flag:"openlibrary-url"`
	Timeout time.Duration `default:"10s" usage:"Open Library request timeout" flag:"openlibrary-timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"15m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads .env when present, then environment variables, YAML
// config files and flags.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BOOKSTORE",
		Files:     []string{"config.yaml", "/etc/bookstore/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed variables hosting platforms set
// (DATABASE_URL, REDIS_URL, PORT) and the JWT_SECRET name used by older
// deployments.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	fallback := func(dst *string, key string) {
		if *dst == "" {
			*dst = getenv(key)
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.Redis.URL, "REDIS_URL")
	fallback(&c.Auth.Secret, "JWT_SECRET")

	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set BOOKSTORE_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth secret is required: set BOOKSTORE_AUTH_SECRET or JWT_SECRET")
	}
	if c.Outbox.Enabled && strings.TrimSpace(c.Kafka.Brokers) == "" {
		return errors.New("outbox is enabled but no Kafka brokers are configured")
	}
	if _, err := c.Payment.settler(); err != nil {
		return err
	}
	return nil
}

func (c PaymentConfig) settler() (order.Settler, error) {
	switch c.Mode {
	case "", PaymentAssumePaid:
		return order.AssumePaid{}, nil
	case PaymentManual:
		return order.ManualSettlement{}, nil
	default:
		return nil, errors.Errorf("unknown payment mode %q", c.Mode)
	}
}
