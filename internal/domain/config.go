package domain

import "time"

// Config holds the complete screener configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Quotes     QuotesConfig     `json:"quotes"`
	Runner     RunnerConfig     `json:"runner"`
	Worker     WorkerConfig     `json:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ReadTimeout    int      `json:"readTimeout"`  // seconds
	WriteTimeout   int      `json:"writeTimeout"` // seconds
	AllowedOrigins []string `json:"allowedOrigins"`
}

// RunnerConfig tunes strategy execution.
type RunnerConfig struct {
	// DefaultMarket is used when a run request names no market.
	DefaultMarket string `json:"defaultMarket"`

	// ChunkSize is the number of records evaluated per goroutine on the local route.
	ChunkSize int `json:"chunkSize"`

	// Parallelism caps concurrent evaluation chunks.
	Parallelism int `json:"parallelism"`

	// MaxPages caps the pages requested on the remote route.
	MaxPages int `json:"maxPages"`
}

// WorkerConfig controls the async run worker.
type WorkerConfig struct {
	Enabled bool `json:"enabled"`

	// Tenants limits the worker to these tenants. Empty means one global
	// subscription serving every tenant.
	Tenants []string `json:"tenants"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultConfig returns a single-node configuration: SQLite, in-memory cache,
// channel bus and the remote quote service on localhost.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   60,
			AllowedOrigins: []string{"*"},
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./screener.db",
		},
		Cache: CacheConfig{
			Type:          "memory",
			LocalMaxSize:  1000,
			LocalTTL:      TTLStockList,
			PurgeSchedule: "@every 5m",
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 256,
		},
		Quotes: QuotesConfig{
			Type:           "http",
			BaseURL:        "http://localhost:8000",
			Timeout:        30,
			RequestsPerSec: 5,
			PageSize:       500,
			MaxPages:       20,
		},
		Runner: RunnerConfig{
			DefaultMarket: MarketAShare,
			ChunkSize:     500,
			Parallelism:   4,
			MaxPages:      ProjectedMaxPages,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "screener",
		},
	}
}

// Timeout converts a seconds setting into a duration.
func Timeout(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
