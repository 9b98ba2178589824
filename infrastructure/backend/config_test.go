package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-prism/internal/testutils"
)

func TestConfig_Validate(t *testing.T) {
	valid := Config{Name: "risk-engine", BaseURL: "https://risk.example.com/api"}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "retries disabled", mutate: func(c *Config) { c.MaxRetries = -1 }},
		{name: "missing name", mutate: func(c *Config) { c.Name = "" }, wantErr: "Name"},
		{name: "missing url", mutate: func(c *Config) { c.BaseURL = "" }, wantErr: "BaseURL"},
		{name: "bad url", mutate: func(c *Config) { c.BaseURL = "risk engine" }, wantErr: "BaseURL"},
		{name: "too many retries", mutate: func(c *Config) { c.MaxRetries = 11 }, wantErr: "MaxRetries"},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit = -1 }, wantErr: "RateLimit"},
		{name: "timeout too long", mutate: func(c *Config) { c.Timeout = time.Hour }, wantErr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid backend config")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Setenv("PRISM_TEST_RISK_KEY", "from-env")

	cfg := Config{Name: "risk", BaseURL: "https://x", APIKeyEnv: "PRISM_TEST_RISK_KEY", RateLimit: 2.5}.withDefaults()
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultBaseDelay, cfg.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, cfg.MaxDelay)
	assert.Equal(t, DefaultBreakerFailures, cfg.BreakerFailures)
	assert.Equal(t, DefaultBreakerCooldown, cfg.BreakerCooldown)
	assert.Equal(t, 2, cfg.Burst)

	explicit := Config{APIKey: "inline", APIKeyEnv: "PRISM_TEST_RISK_KEY", MaxRetries: -1, Timeout: time.Second}.withDefaults()
	assert.Equal(t, "inline", explicit.APIKey)
	assert.Equal(t, -1, explicit.MaxRetries)
	assert.Equal(t, time.Second, explicit.Timeout)
	assert.Zero(t, explicit.Burst)
}

func TestStandardMiddleware(t *testing.T) {
	cfg := Config{Name: "risk", BaseURL: "https://x"}

	assert.Len(t, StandardMiddleware(cfg, Observability{}), 3)

	cfg.RateLimit = 10
	full := StandardMiddleware(cfg, Observability{
		Collector:      testutils.NewMockCollector(),
		BreakerMetrics: &recordingBreakerMetrics{},
		Tracing:        true,
	})
	assert.Len(t, full, 6)

	cfg.MaxRetries = -1
	assert.Len(t, StandardMiddleware(cfg, Observability{Tracing: true}), 4)
}
