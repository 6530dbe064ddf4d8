package config

import (
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server  Server  `mapstructure:"server"`
	Storage Storage `mapstructure:"storage"`
	Codec   Codec   `mapstructure:"codec"`
	Driver  Driver  `mapstructure:"driver"`
	Kafka   Kafka   `mapstructure:"kafka"`
	Retry   Retry   `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP port to listen on
}

// Storage holds configuration for the object storage backend.
type Storage struct {
	Backend string `mapstructure:"backend"` // "local" or "minio"

	// Local filesystem backend.
	BaseDir string `mapstructure:"base_dir"`

	// MinIO backend.
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Codec holds configuration for the AVIF codec pool.
type Codec struct {
	MaxWorkers int `mapstructure:"max_workers"` // simultaneous in-flight encodes
	Quality    int `mapstructure:"quality"`     // 0-100 scale
}

// Driver selects the conversion orchestration strategy.
type Driver struct {
	Mode string `mapstructure:"mode"` // "sequential" or "concurrent"
}

// Kafka holds configuration for completion-event publishing.
type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Topic   string   `mapstructure:"topic"`   // Kafka topic name
	Brokers []string `mapstructure:"brokers"` // List of Kafka broker addresses
}

// Retry defines retry policy configuration for event publishing.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"storage.endpoint":   "MINIO_ENDPOINT",
		"storage.access_key": "MINIO_ACCESS_KEY",
		"storage.secret_key": "MINIO_SECRET_KEY",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// MustLoad loads the configuration from the ./config directory.
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
