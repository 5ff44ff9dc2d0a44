// Package config loads the screener configuration.
//
// Precedence is environment (SCREENER_ prefix, dots become underscores), then
// the optional config file, then domain.DefaultConfig. A .env file in the
// working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCREENER"

// Load reads configuration from path (optional), the environment and defaults.
func Load(path string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, domain.DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *domain.Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("repository.driver", d.Repository.Driver)
	v.SetDefault("repository.sqlite_path", d.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", "localhost")
	v.SetDefault("repository.postgres_port", 5432)
	v.SetDefault("repository.postgres_user", "")
	v.SetDefault("repository.postgres_password", "")
	v.SetDefault("repository.postgres_db", "screener")
	v.SetDefault("repository.postgres_sslmode", "disable")
	v.SetDefault("repository.max_open_conns", 0)
	v.SetDefault("repository.max_idle_conns", 0)
	v.SetDefault("repository.conn_max_lifetime", "0s")

	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("cache.local_max_size", d.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", d.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.two_phase", false)
	v.SetDefault("cache.purge_schedule", d.Cache.PurgeSchedule)

	v.SetDefault("eventbus.type", d.EventBus.Type)
	v.SetDefault("eventbus.channel_buffer_size", d.EventBus.ChannelBufferSize)
	v.SetDefault("eventbus.nats_url", "nats://localhost:4222")
	v.SetDefault("eventbus.nats_token", "")
	v.SetDefault("eventbus.nats_max_reconnects", 10)
	v.SetDefault("eventbus.nats_reconnect_wait", 2)

	v.SetDefault("quotes.type", d.Quotes.Type)
	v.SetDefault("quotes.base_url", d.Quotes.BaseURL)
	v.SetDefault("quotes.timeout", d.Quotes.Timeout)
	v.SetDefault("quotes.requests_per_sec", d.Quotes.RequestsPerSec)
	v.SetDefault("quotes.page_size", d.Quotes.PageSize)
	v.SetDefault("quotes.max_pages", d.Quotes.MaxPages)
	v.SetDefault("quotes.static_path", "")

	v.SetDefault("runner.default_market", d.Runner.DefaultMarket)
	v.SetDefault("runner.chunk_size", d.Runner.ChunkSize)
	v.SetDefault("runner.parallelism", d.Runner.Parallelism)
	v.SetDefault("runner.max_pages", d.Runner.MaxPages)

	v.SetDefault("worker.enabled", d.Worker.Enabled)
	v.SetDefault("worker.tenants", []string{})

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

func fromViper(v *viper.Viper) *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			ReadTimeout:    v.GetInt("server.read_timeout"),
			WriteTimeout:   v.GetInt("server.write_timeout"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Repository: domain.RepositoryConfig{
			Driver:           v.GetString("repository.driver"),
			SQLitePath:       v.GetString("repository.sqlite_path"),
			PostgresHost:     v.GetString("repository.postgres_host"),
			PostgresPort:     v.GetInt("repository.postgres_port"),
			PostgresUser:     v.GetString("repository.postgres_user"),
			PostgresPassword: v.GetString("repository.postgres_password"),
			PostgresDB:       v.GetString("repository.postgres_db"),
			PostgresSSLMode:  v.GetString("repository.postgres_sslmode"),
			MaxOpenConns:     v.GetInt("repository.max_open_conns"),
			MaxIdleConns:     v.GetInt("repository.max_idle_conns"),
			ConnMaxLifetime:  v.GetDuration("repository.conn_max_lifetime"),
		},
		Cache: domain.CacheConfig{
			Type:           v.GetString("cache.type"),
			LocalMaxSize:   v.GetInt("cache.local_max_size"),
			LocalTTL:       v.GetDuration("cache.local_ttl"),
			RedisAddr:      v.GetString("cache.redis_addr"),
			RedisPassword:  v.GetString("cache.redis_password"),
			RedisDB:        v.GetInt("cache.redis_db"),
			EnableTwoPhase: v.GetBool("cache.two_phase"),
			PurgeSchedule:  v.GetString("cache.purge_schedule"),
		},
		EventBus: domain.EventBusConfig{
			Type:              v.GetString("eventbus.type"),
			ChannelBufferSize: v.GetInt("eventbus.channel_buffer_size"),
			NATSUrl:           v.GetString("eventbus.nats_url"),
			NATSToken:         v.GetString("eventbus.nats_token"),
			NATSMaxReconnects: v.GetInt("eventbus.nats_max_reconnects"),
			NATSReconnectWait: v.GetInt("eventbus.nats_reconnect_wait"),
		},
		Quotes: domain.QuotesConfig{
			Type:           v.GetString("quotes.type"),
			BaseURL:        v.GetString("quotes.base_url"),
			Timeout:        v.GetInt("quotes.timeout"),
			RequestsPerSec: v.GetFloat64("quotes.requests_per_sec"),
			PageSize:       v.GetInt("quotes.page_size"),
			MaxPages:       v.GetInt("quotes.max_pages"),
			StaticPath:     v.GetString("quotes.static_path"),
		},
		Runner: domain.RunnerConfig{
			DefaultMarket: v.GetString("runner.default_market"),
			ChunkSize:     v.GetInt("runner.chunk_size"),
			Parallelism:   v.GetInt("runner.parallelism"),
			MaxPages:      v.GetInt("runner.max_pages"),
		},
		Worker: domain.WorkerConfig{
			Enabled: v.GetBool("worker.enabled"),
			Tenants: v.GetStringSlice("worker.tenants"),
		},
		Logging: domain.LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Tracing: domain.TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			ServiceName: v.GetString("tracing.service_name"),
		},
	}
}

// Validate rejects settings the server cannot start with.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("repository.driver must be sqlite or postgres, got %q", cfg.Repository.Driver)
	}
	switch cfg.Runner.DefaultMarket {
	case domain.MarketAShare, domain.MarketHK:
	default:
		return fmt.Errorf("runner.default_market must be %s or %s, got %q", domain.MarketAShare, domain.MarketHK, cfg.Runner.DefaultMarket)
	}
	if cfg.Runner.MaxPages <= 0 {
		return fmt.Errorf("runner.max_pages must be positive, got %d", cfg.Runner.MaxPages)
	}
	return nil
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
