package backend

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-prism/internal/ports"
)

// These constants bound and default the backend settings.
const (
	// DefaultTimeout is the per-attempt request timeout.
	DefaultTimeout = 30 * time.Second
	// MaxTimeout is the largest accepted per-attempt timeout.
	MaxTimeout = 10 * time.Minute
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2
	// DefaultBaseDelay is the initial retry backoff.
	DefaultBaseDelay = 500 * time.Millisecond
	// DefaultMaxDelay caps the retry backoff.
	DefaultMaxDelay = 10 * time.Second
	// DefaultBreakerFailures opens the circuit after this many consecutive failures.
	DefaultBreakerFailures = 5
	// DefaultBreakerCooldown keeps the circuit open this long.
	DefaultBreakerCooldown = 30 * time.Second
)

// Config holds the settings of one metric backend.
// Zero values select the defaults above; negative MaxRetries disables retries
// and a zero RateLimit disables rate limiting.
type Config struct {
	// Name is the source tag metrics use to select this backend.
	Name string `mapstructure:"name" validate:"required"`
	// BaseURL is the service root; metrics are posted to {BaseURL}/metrics/{id}.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// APIKey is sent as a bearer token. APIKeyEnv names an environment
	// variable to read it from when APIKey is empty.
	APIKey    string `mapstructure:"api_key"`
	APIKeyEnv string `mapstructure:"api_key_env"`

	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=-1,lte=10"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gte=0"`

	// RateLimit is the sustained requests per second; Burst the bucket size.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" validate:"gte=0"`

	BreakerFailures int           `mapstructure:"breaker_failures" validate:"gte=0"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" validate:"gte=0"`

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client `mapstructure:"-" validate:"-"`
}

var configValidator = validator.New()

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid backend config: %w", err)
	}
	if c.Timeout > MaxTimeout {
		return fmt.Errorf("invalid backend config: timeout %v exceeds %v", c.Timeout, MaxTimeout)
	}
	return nil
}

// withDefaults fills zero values and resolves APIKeyEnv.
func (c Config) withDefaults() Config {
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}
	if c.RateLimit > 0 && c.Burst == 0 {
		c.Burst = max(1, int(c.RateLimit))
	}
	return c
}

// Observability carries the optional collectors the standard chain reports to.
type Observability struct {
	Collector      ports.MetricsCollector
	BreakerMetrics CircuitBreakerMetrics
	Tracing        bool
}

// StandardMiddleware returns the production chain for cfg, outermost first:
// tracing, metrics, retry, circuit breaker, rate limit, per-attempt timeout.
// Retries happen outside the breaker so an open circuit stops them, and the
// timeout applies to each attempt rather than to the whole call.
func StandardMiddleware(cfg Config, obs Observability) []Middleware {
	cfg = cfg.withDefaults()

	var mw []Middleware
	if obs.Tracing {
		mw = append(mw, TracingMiddleware(cfg.Name))
	}
	if obs.Collector != nil {
		mw = append(mw, MetricsMiddleware(obs.Collector))
	}
	if cfg.MaxRetries > 0 {
		mw = append(mw, RetryMiddleware(cfg.MaxRetries, cfg.BaseDelay, cfg.MaxDelay))
	}
	mw = append(mw, CircuitBreakerMiddlewareWithMetrics(cfg.BreakerFailures, cfg.BreakerCooldown, obs.BreakerMetrics))
	if cfg.RateLimit > 0 {
		mw = append(mw, RateLimitMiddleware(rate.Limit(cfg.RateLimit), cfg.Burst))
	}
	mw = append(mw, TimeoutMiddleware(cfg.Timeout))
	return mw
}

// NewStandard creates an HTTP backend wrapped in StandardMiddleware.
func NewStandard(cfg Config, obs Observability) (ports.Backend, error) {
	cfg = cfg.withDefaults()
	return New(cfg, StandardMiddleware(cfg, obs)...)
}
