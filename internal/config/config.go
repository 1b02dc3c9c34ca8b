// Package config loads pim-sync settings from an optional YAML file and
// PIM_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/pim-sync/pkg/client"
	"github.com/Sternrassler/pim-sync/pkg/drive"
	"github.com/Sternrassler/pim-sync/pkg/importer"
	"github.com/Sternrassler/pim-sync/pkg/logging"
	"github.com/Sternrassler/pim-sync/pkg/pipeline"
	"github.com/Sternrassler/pim-sync/pkg/runstore"
	"github.com/Sternrassler/pim-sync/pkg/storage"
	"github.com/Sternrassler/pim-sync/pkg/store"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PIM_COMMERCE_ENDPOINT.
const EnvPrefix = "PIM"

// Config is the complete application configuration.
type Config struct {
	Log      LogConfig
	Commerce CommerceConfig
	Drive    DriveConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Import   ImportConfig
	Metrics  MetricsConfig
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// CommerceConfig configures the commerce GraphQL client.
type CommerceConfig struct {
	Endpoint     string
	AccessToken  string
	AuthHeader   string
	UserAgent    string
	Timeout      time.Duration
	PageSize     int
	MaxAttempts  int
	ThrottleWait time.Duration
}

// DriveConfig configures the remote file tree.
type DriveConfig struct {
	CredentialsFile string
	PageSize        int64
}

// StorageConfig configures object storage.
type StorageConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	KeyPrefix    string
}

// DatabaseConfig configures the record store.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// RedisConfig configures the run store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	LockTTL   time.Duration
	ReportTTL time.Duration
}

// ImportConfig configures import runs.
type ImportConfig struct {
	MetadataPolicy string
	MaxErrors      int
	MaxFileBytes   int64
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Addr string
}

// setDefaults registers every key so environment overrides apply to all of them.
func setDefaults(v *viper.Viper) {
	logDefaults := logging.DefaultConfig()
	v.SetDefault("log.level", string(logDefaults.Level))
	v.SetDefault("log.pretty", logDefaults.Pretty)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logDefaults.File.MaxSizeMB)
	v.SetDefault("log.max_backups", logDefaults.File.MaxBackups)
	v.SetDefault("log.max_age_days", logDefaults.File.MaxAgeDays)

	commerce := client.DefaultConfig("", "")
	v.SetDefault("commerce.endpoint", "")
	v.SetDefault("commerce.access_token", "")
	v.SetDefault("commerce.auth_header", commerce.AuthHeader)
	v.SetDefault("commerce.user_agent", commerce.UserAgent)
	v.SetDefault("commerce.timeout", commerce.Timeout)
	v.SetDefault("commerce.page_size", 50)
	v.SetDefault("commerce.max_attempts", commerce.Retry.MaxAttempts)
	v.SetDefault("commerce.throttle_wait", commerce.Retry.ThrottleWait)

	v.SetDefault("drive.credentials_file", "")
	v.SetDefault("drive.page_size", drive.DefaultGoogleConfig().PageSize)

	s3 := storage.DefaultConfig()
	v.SetDefault("storage.endpoint", s3.Endpoint)
	v.SetDefault("storage.region", s3.Region)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", s3.UseSSL)
	v.SetDefault("storage.use_path_style", s3.UsePathStyle)
	v.SetDefault("storage.key_prefix", importer.DefaultMediaConfig().KeyPrefix)

	db := store.DefaultConfig()
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", db.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", db.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", db.ConnMaxLifetime)
	v.SetDefault("database.log_level", db.LogLevel)

	runs := runstore.DefaultConfig()
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", runs.LockTTL)
	v.SetDefault("redis.report_ttl", runs.ReportTTL)

	media := importer.DefaultMediaConfig()
	v.SetDefault("import.metadata_policy", string(media.Policy))
	v.SetDefault("import.max_errors", pipeline.DefaultMaxErrors)
	v.SetDefault("import.max_file_bytes", media.MaxFileBytes)

	v.SetDefault("metrics.addr", "")
}

// Load reads configuration.
//
// Priority (highest to lowest):
// 1. Environment variables with PIM_ prefix (e.g., PIM_DATABASE_DSN)
// 2. The file at path, or pim-sync.yaml in . or /etc/pim-sync
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pim-sync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pim-sync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Pretty:     v.GetBool("log.pretty"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Commerce: CommerceConfig{
			Endpoint:     v.GetString("commerce.endpoint"),
			AccessToken:  v.GetString("commerce.access_token"),
			AuthHeader:   v.GetString("commerce.auth_header"),
			UserAgent:    v.GetString("commerce.user_agent"),
			Timeout:      v.GetDuration("commerce.timeout"),
			PageSize:     v.GetInt("commerce.page_size"),
			MaxAttempts:  v.GetInt("commerce.max_attempts"),
			ThrottleWait: v.GetDuration("commerce.throttle_wait"),
		},
		Drive: DriveConfig{
			CredentialsFile: v.GetString("drive.credentials_file"),
			PageSize:        v.GetInt64("drive.page_size"),
		},
		Storage: StorageConfig{
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			KeyPrefix:    v.GetString("storage.key_prefix"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("redis.addr"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			LockTTL:   v.GetDuration("redis.lock_ttl"),
			ReportTTL: v.GetDuration("redis.report_ttl"),
		},
		Import: ImportConfig{
			MetadataPolicy: v.GetString("import.metadata_policy"),
			MaxErrors:      v.GetInt("import.max_errors"),
			MaxFileBytes:   v.GetInt64("import.max_file_bytes"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if _, err := importer.ParseMetadataPolicy(c.Import.MetadataPolicy); err != nil {
		return err
	}
	if c.Commerce.PageSize <= 0 || c.Commerce.PageSize > 250 {
		return fmt.Errorf("commerce page size must be between 1 and 250, got %d", c.Commerce.PageSize)
	}
	return nil
}

// LoggingConfig returns the logging settings.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	cfg.File = logging.FileConfig{
		Path:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   true,
	}
	return cfg
}

// ClientConfig returns the commerce client settings.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.Commerce.Endpoint, c.Commerce.AccessToken)
	cfg.AuthHeader = c.Commerce.AuthHeader
	cfg.UserAgent = c.Commerce.UserAgent
	cfg.Timeout = c.Commerce.Timeout
	cfg.Retry.MaxAttempts = c.Commerce.MaxAttempts
	cfg.Retry.ThrottleWait = c.Commerce.ThrottleWait
	return cfg
}

// GoogleConfig returns the drive backend settings.
func (c *Config) GoogleConfig() drive.GoogleConfig {
	return drive.GoogleConfig{
		CredentialsFile: c.Drive.CredentialsFile,
		PageSize:        c.Drive.PageSize,
	}
}

// S3Config returns the object storage settings.
func (c *Config) S3Config() storage.Config {
	return storage.Config{
		Endpoint:     c.Storage.Endpoint,
		Region:       c.Storage.Region,
		Bucket:       c.Storage.Bucket,
		AccessKey:    c.Storage.AccessKey,
		SecretKey:    c.Storage.SecretKey,
		UseSSL:       c.Storage.UseSSL,
		UsePathStyle: c.Storage.UsePathStyle,
	}
}

// StoreConfig returns the record store settings.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		DSN:             c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		LogLevel:        c.Database.LogLevel,
	}
}

// RunStoreConfig returns the run store settings.
func (c *Config) RunStoreConfig() runstore.Config {
	return runstore.Config{
		LockTTL:   c.Redis.LockTTL,
		ReportTTL: c.Redis.ReportTTL,
	}
}

// MediaConfig returns the media import settings for one run.
func (c *Config) MediaConfig(runID string) importer.MediaConfig {
	policy, _ := importer.ParseMetadataPolicy(c.Import.MetadataPolicy)
	return importer.MediaConfig{
		KeyPrefix:    c.Storage.KeyPrefix,
		Policy:       policy,
		RunID:        runID,
		MaxFileBytes: c.Import.MaxFileBytes,
	}
}
