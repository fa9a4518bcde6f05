package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/rollcall/internal/db"
	"github.com/rpattn/rollcall/internal/fetch"

	"github.com/spf13/viper"
)

const envPrefix = "ROLLCALL"

type Config struct {
	Database db.Config
	Source   SourceConfig
	Ingest   IngestConfig
	Log      LogConfig
	Server   ServerConfig
}

type SourceConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             RetryConfig
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type IngestConfig struct {
	Workers int
	Year    int
}

type LogConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Addr string
}

// RetryPolicy builds the fetch retry policy described by the config.
func (r RetryConfig) RetryPolicy() fetch.RetryPolicy {
	policy := fetch.DefaultRetryPolicy()
	if r.MaxAttempts > 0 {
		policy.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelay > 0 {
		policy.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		policy.MaxDelay = r.MaxDelay
	}
	return policy
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	retry := fetch.DefaultRetryPolicy()
	return Config{
		Database: db.DefaultConfig(),
		Source: SourceConfig{
			BaseURL: fetch.DefaultBaseURL,
			Timeout: 30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:  retry.MaxAttempts,
				InitialDelay: retry.InitialDelay,
				MaxDelay:     retry.MaxDelay,
			},
		},
		Ingest: IngestConfig{Workers: 4},
		Log:    LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load layers config.yaml from configPath and ROLLCALL_* environment variables
// over Defaults. A missing config file is not an error.
func Load(configPath string) (Config, error) {
	return Read(New(configPath))
}

// Read loads the config file registered on v, if any, and resolves every key.
func Read(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return FromViper(v), nil
}

// New returns a viper instance seeded with defaults, env binding and the config path.
// Callers may bind flags to it before reading.
func New(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if strings.TrimSpace(configPath) != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath(".")
	}

	// ROLLCALL_DATABASE_HOST maps to database.host.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("source.base_url", d.Source.BaseURL)
	v.SetDefault("source.timeout", d.Source.Timeout)
	v.SetDefault("source.requests_per_second", d.Source.RequestsPerSecond)
	v.SetDefault("source.retry.max_attempts", d.Source.Retry.MaxAttempts)
	v.SetDefault("source.retry.initial_delay", d.Source.Retry.InitialDelay)
	v.SetDefault("source.retry.max_delay", d.Source.Retry.MaxDelay)
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.year", d.Ingest.Year)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.addr", d.Server.Addr)

	return v
}

// FromViper reads the resolved settings out of v.
func FromViper(v *viper.Viper) Config {
	return Config{
		Database: db.Config{
			URL:      v.GetString("database.url"),
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		Source: SourceConfig{
			BaseURL:           v.GetString("source.base_url"),
			Timeout:           v.GetDuration("source.timeout"),
			RequestsPerSecond: v.GetFloat64("source.requests_per_second"),
			Retry: RetryConfig{
				MaxAttempts:  v.GetInt("source.retry.max_attempts"),
				InitialDelay: v.GetDuration("source.retry.initial_delay"),
				MaxDelay:     v.GetDuration("source.retry.max_delay"),
			},
		},
		Ingest: IngestConfig{
			Workers: v.GetInt("ingest.workers"),
			Year:    v.GetInt("ingest.year"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
	}
}
