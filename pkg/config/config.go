package config

import (
	"fmt"
	"time"
)

// DefaultBaseURL is the public Azion Edge SQL databases endpoint.
const DefaultBaseURL = "https://api.azion.com/v4/edge_sql/databases"

// Config is the root configuration structure.
type Config struct {
	// Endpoint describes the remote EdgeSQL service
	Endpoint EndpointConfig `yaml:"endpoint" json:"endpoint"`

	// Timeouts define various timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for error handling and resilience
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Import settings for chunk planning and execution
	Import ImportConfig `yaml:"import" json:"import"`

	// Sources holds connector credentials
	Sources SourcesConfig `yaml:"sources" json:"sources"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// EndpointConfig locates the EdgeSQL service.
type EndpointConfig struct {
	// BaseURL of the databases collection
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Token is sent as "Authorization: Token <token>"
	Token string `yaml:"token" json:"token"`
	// Database is the id or name of the database statements run against
	Database string `yaml:"database" json:"database"`
}

// TimeoutConfig contains all timeout-related settings.
type TimeoutConfig struct {
	// Request timeout for a single HTTP attempt
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Idle timeout before closing inactive connections
	Idle time.Duration `yaml:"idle" json:"idle"`
	// KeepAlive interval for TCP keep-alives
	KeepAlive time.Duration `yaml:"keep_alive" json:"keep_alive"`
}

// ReliabilityConfig contains reliability and error handling settings.
type ReliabilityConfig struct {
	// RetryAttempts is the total number of attempts per chunk, including the first
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// CircuitBreaker enables the circuit breaker on HTTP clients
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
}

// ImportConfig controls chunk sizing and encoding.
type ImportConfig struct {
	// MaxPayloadBytes is the largest request body one chunk may produce
	MaxPayloadBytes int `yaml:"max_payload_bytes" json:"max_payload_bytes"`
	// DefaultChunkRows is used for the first chunk, before any measurement
	DefaultChunkRows int `yaml:"default_chunk_rows" json:"default_chunk_rows"`
	// MinChunkRows and MaxChunkRows clamp the planner
	MinChunkRows int `yaml:"min_chunk_rows" json:"min_chunk_rows"`
	MaxChunkRows int `yaml:"max_chunk_rows" json:"max_chunk_rows"`
	// SampleRows bounds the rows inspected for type inference
	SampleRows int `yaml:"sample_rows" json:"sample_rows"`
	// MultiRowInsert emits one INSERT with many VALUES tuples per chunk
	MultiRowInsert bool `yaml:"multi_row_insert" json:"multi_row_insert"`
	// VectorFormat is the blob layout for new vector columns (f32 or f64)
	VectorFormat string `yaml:"vector_format" json:"vector_format"`
	// VectorLiteral sends vectors as vector('[..]') text instead of blobs
	VectorLiteral bool `yaml:"vector_literal" json:"vector_literal"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFormat is console or json
	LogFormat string `yaml:"log_format" json:"log_format"`
	// EnableTracing writes chunk spans to stderr
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// MetricsAddr serves /metrics when non-empty
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// NewConfig creates a Config with defaults suited to the public service.
func NewConfig() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			BaseURL: DefaultBaseURL,
		},
		Timeouts: TimeoutConfig{
			Request:    60 * time.Second,
			Connection: 10 * time.Second,
			Idle:       90 * time.Second,
			KeepAlive:  30 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   30 * time.Second,
			CircuitBreaker:  true,
			RateLimitPerSec: 0,
		},
		Import: ImportConfig{
			MaxPayloadBytes:  1 << 20,
			DefaultChunkRows: 512,
			MinChunkRows:     1,
			MaxChunkRows:     5000,
			SampleRows:       1000,
			VectorFormat:     "f32",
		},
		Sources: SourcesConfig{
			MySQL:    RelationalConfig{Port: 3306},
			Postgres: RelationalConfig{Port: 5432},
			Kaggle:   KaggleConfig{APIURL: DefaultKaggleAPI},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Endpoint.BaseURL == "" {
		return fmt.Errorf("endpoint.base_url is required")
	}
	if c.Timeouts.Request <= 0 {
		return fmt.Errorf("timeouts.request must be positive")
	}
	if c.Reliability.RetryAttempts < 1 {
		return fmt.Errorf("reliability.retry_attempts must be at least 1")
	}
	if c.Reliability.RetryMultiplier < 1 {
		return fmt.Errorf("reliability.retry_multiplier must be at least 1")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("reliability.rate_limit_per_sec cannot be negative")
	}
	im := c.Import
	if im.MaxPayloadBytes <= 0 {
		return fmt.Errorf("import.max_payload_bytes must be positive")
	}
	if im.MinChunkRows < 1 {
		return fmt.Errorf("import.min_chunk_rows must be at least 1")
	}
	if im.MaxChunkRows < im.MinChunkRows {
		return fmt.Errorf("import.max_chunk_rows (%d) is below min_chunk_rows (%d)", im.MaxChunkRows, im.MinChunkRows)
	}
	if im.DefaultChunkRows < 1 {
		return fmt.Errorf("import.default_chunk_rows must be at least 1")
	}
	if im.SampleRows < 1 {
		return fmt.Errorf("import.sample_rows must be at least 1")
	}
	switch im.VectorFormat {
	case "f32", "f64":
	default:
		return fmt.Errorf("import.vector_format must be f32 or f64, got %q", im.VectorFormat)
	}
	return nil
}

// IsRateLimited returns true if rate limiting is enabled
func (r *ReliabilityConfig) IsRateLimited() bool {
	return r.RateLimitPerSec > 0
}

// HasToken reports whether an API token is configured.
func (e *EndpointConfig) HasToken() bool {
	return e.Token != ""
}
