package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Storage  Storage  `mapstructure:"storage"`
	Indexer  Indexer  `mapstructure:"indexer"`
	Jobs     Jobs     `mapstructure:"jobs"`
	Session  Session  `mapstructure:"session"`
	Retry    Retry    `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP port to listen on
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Storage holds configuration for the file storage backend.
type Storage struct {
	BaseDir string `mapstructure:"base_dir"` // Base directory for storing files
}

// Indexer holds the resource limits and normalization settings of the tile
// library indexing pipeline.
type Indexer struct {
	MaxArchiveFiles int      `mapstructure:"max_archive_files"` // Entries beyond this are ignored
	MaxFileBytes    int64    `mapstructure:"max_file_bytes"`    // Per-entry byte cap
	MaxThumbsBytes  int64    `mapstructure:"max_thumbs_bytes"`  // Cumulative thumbnail storage cap
	ThumbSize       int      `mapstructure:"thumb_size"`        // Normalized thumbnail edge length
	Quant           int      `mapstructure:"quant"`             // Color bucket quantization width
	AllowedExt      []string `mapstructure:"allowed_ext"`       // Accepted image extensions
}

// Jobs holds the execution bounds of asynchronous tasks.
type Jobs struct {
	MaxConcurrent int `mapstructure:"max_concurrent"` // Simultaneous indexing/compositing tasks
}

// Session holds the TTL policy for idle sessions.
type Session struct {
	TTL             time.Duration `mapstructure:"ttl"`              // Idle time before a session expires
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // Sweep period
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// AllowedExtSet returns the allowed extensions as a lookup set, lowercase
// with leading dot.
func (i Indexer) AllowedExtSet() map[string]bool {
	set := make(map[string]bool, len(i.AllowedExt))
	for _, ext := range i.AllowedExt {
		set[ext] = true
	}
	return set
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// MustLoad loads the configuration from the config directory.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	return &cfg
}
