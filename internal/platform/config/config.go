package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultSessionHeader      = "woocommerce-session"
	defaultCartBatchSize      = 3
	defaultCartBatchDelay     = 100 * time.Millisecond
	defaultOrderTimeout       = 10 * time.Second
	defaultRiskCacheTTL       = 5 * time.Minute
	defaultFlushInterval      = 2 * time.Second
	defaultFlushChunkSize     = 5
	defaultQueueLimit         = 200
	defaultRateLimitCheckout  = 10
	defaultRateLimitRisk      = 30
	defaultRateLimitWindow    = time.Minute
	defaultSubmitWindow       = 10 * time.Minute
	defaultSubmitMaxAttempts  = 3
	defaultStoreFilePath      = "data/store.json"
	defaultShippingInsideBDT  = 80
	defaultShippingOutsideBDT = 150
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Commerce   CommerceConfig
	Risk       RiskConfig
	Analytics  AnalyticsConfig
	RateLimits RateLimitConfig
	Checkout   CheckoutConfig
	Stores     StoreConfig
	Revalidate RevalidateConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CommerceConfig points at the remote commerce API and tunes cart synchronisation.
type CommerceConfig struct {
	Endpoint       string
	SessionHeader  string
	CartBatchSize  int
	CartBatchDelay time.Duration
	OrderTimeout   time.Duration
}

// RiskConfig controls the courier delivery-history verification service.
type RiskConfig struct {
	HistoryEndpoint string
	APIKey          string
	CacheTTL        time.Duration
	FailOpen        bool
	BypassSuffixes  []string
}

// AnalyticsConfig configures the outbound event pipeline.
type AnalyticsConfig struct {
	PixelID        string
	PixelEndpoint  string
	ServerEndpoint string
	AccessToken    string
	FlushInterval  time.Duration
	ChunkSize      int
	QueueLimit     int
}

// RateLimitConfig controls request throttling on sensitive endpoints.
type RateLimitConfig struct {
	CheckoutPerWindow int
	RiskPerWindow     int
	Window            time.Duration
}

// CheckoutConfig tunes the orchestrator's local policies.
type CheckoutConfig struct {
	SubmitWindow       time.Duration
	SubmitMaxAttempts  int
	ShippingInsideBDT  int64
	ShippingOutsideBDT int64
}

// StoreConfig lists the durable key-value backends tried in order.
type StoreConfig struct {
	RedisAddr     string
	RedisPassword string
	FilePath      string
}

// RevalidateConfig guards the cache invalidation webhook.
type RevalidateConfig struct {
	BearerSecret string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringValue(lookup, "PORT", defaultPort),
			ReadTimeout:  durationValue(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationValue(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationValue(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Commerce: CommerceConfig{
			Endpoint:       stringValue(lookup, "COMMERCE_ENDPOINT", ""),
			SessionHeader:  stringValue(lookup, "COMMERCE_SESSION_HEADER", defaultSessionHeader),
			CartBatchSize:  intValue(lookup, "COMMERCE_CART_BATCH_SIZE", defaultCartBatchSize),
			CartBatchDelay: durationValue(lookup, "COMMERCE_CART_BATCH_DELAY", defaultCartBatchDelay),
			OrderTimeout:   durationValue(lookup, "COMMERCE_ORDER_TIMEOUT", defaultOrderTimeout),
		},
		Risk: RiskConfig{
			HistoryEndpoint: stringValue(lookup, "RISK_HISTORY_ENDPOINT", ""),
			APIKey:          stringValue(lookup, "RISK_API_KEY", ""),
			CacheTTL:        durationValue(lookup, "RISK_CACHE_TTL", defaultRiskCacheTTL),
			FailOpen:        boolValue(lookup, "RISK_FAIL_OPEN", true),
			BypassSuffixes:  listValue(lookup, "RISK_BYPASS_SUFFIXES"),
		},
		Analytics: AnalyticsConfig{
			PixelID:        stringValue(lookup, "ANALYTICS_PIXEL_ID", ""),
			PixelEndpoint:  stringValue(lookup, "ANALYTICS_PIXEL_ENDPOINT", ""),
			ServerEndpoint: stringValue(lookup, "ANALYTICS_SERVER_ENDPOINT", ""),
			AccessToken:    stringValue(lookup, "ANALYTICS_ACCESS_TOKEN", ""),
			FlushInterval:  durationValue(lookup, "ANALYTICS_FLUSH_INTERVAL", defaultFlushInterval),
			ChunkSize:      intValue(lookup, "ANALYTICS_CHUNK_SIZE", defaultFlushChunkSize),
			QueueLimit:     intValue(lookup, "ANALYTICS_QUEUE_LIMIT", defaultQueueLimit),
		},
		RateLimits: RateLimitConfig{
			CheckoutPerWindow: intValue(lookup, "RATE_LIMIT_CHECKOUT", defaultRateLimitCheckout),
			RiskPerWindow:     intValue(lookup, "RATE_LIMIT_RISK", defaultRateLimitRisk),
			Window:            durationValue(lookup, "RATE_LIMIT_WINDOW", defaultRateLimitWindow),
		},
		Checkout: CheckoutConfig{
			SubmitWindow:       durationValue(lookup, "CHECKOUT_SUBMIT_WINDOW", defaultSubmitWindow),
			SubmitMaxAttempts:  intValue(lookup, "CHECKOUT_SUBMIT_MAX_ATTEMPTS", defaultSubmitMaxAttempts),
			ShippingInsideBDT:  int64Value(lookup, "CHECKOUT_SHIPPING_INSIDE", defaultShippingInsideBDT),
			ShippingOutsideBDT: int64Value(lookup, "CHECKOUT_SHIPPING_OUTSIDE", defaultShippingOutsideBDT),
		},
		Stores: StoreConfig{
			RedisAddr:     stringValue(lookup, "STORE_REDIS_ADDR", ""),
			RedisPassword: stringValue(lookup, "STORE_REDIS_PASSWORD", ""),
			FilePath:      stringValue(lookup, "STORE_FILE_PATH", defaultStoreFilePath),
		},
		Revalidate: RevalidateConfig{
			BearerSecret: stringValue(lookup, "REVALIDATE_SECRET", ""),
		},
	}

	var missing []string
	if strings.TrimSpace(cfg.Commerce.Endpoint) == "" {
		missing = append(missing, "Commerce.Endpoint")
	}
	if cfg.Commerce.CartBatchSize <= 0 {
		missing = append(missing, "Commerce.CartBatchSize")
	}
	if cfg.Commerce.OrderTimeout <= 0 {
		missing = append(missing, "Commerce.OrderTimeout")
	}
	if strings.TrimSpace(cfg.Risk.HistoryEndpoint) == "" {
		missing = append(missing, "Risk.HistoryEndpoint")
	}
	if cfg.Analytics.ChunkSize <= 0 {
		missing = append(missing, "Analytics.ChunkSize")
	}
	if len(missing) > 0 {
		return Config{}, &ValidationError{fields: missing}
	}

	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func stringValue(lookup lookupFunc, key, fallback string) string {
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func intValue(lookup lookupFunc, key string, fallback int) int {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64Value(lookup lookupFunc, key string, fallback int64) int64 {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolValue(lookup lookupFunc, key string, fallback bool) bool {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func durationValue(lookup lookupFunc, key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		trimmed := strings.TrimSpace(value)
		if parsed, err := time.ParseDuration(trimmed); err == nil && parsed > 0 {
			return parsed
		}
		// Bare integers are interpreted as milliseconds.
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return fallback
}

func listValue(lookup lookupFunc, key string) []string {
	value, ok := lookup(key)
	if !ok {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}
