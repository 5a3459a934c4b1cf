package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/llxisdsh/synctable"
)

const (
	// CompressionNone serves snapshots as raw table streams
	CompressionNone = "none"
	// CompressionLZ4 wraps snapshot streams in an LZ4 frame
	CompressionLZ4 = "lz4"

	// DefaultMaxSnapshotBytes limits uploaded snapshots when nothing else is configured
	DefaultMaxSnapshotBytes = 64 << 20
)

// Config represents the application configuration structure
type Config struct {
	Environment         string  `default:"prod"`
	ListenAddress       string  `default:":8081" split_words:"true"`
	InitialCapacity     int     `default:"11" split_words:"true"`
	LoadFactor          float32 `default:"0.75" split_words:"true"`
	SnapshotCompression string  `default:"none" split_words:"true"`
	MaxSnapshotBytes    int64   `default:"67108864" split_words:"true"`
}

// IsEnvProduction checks whether the application runs in production mode
func (config *Config) IsEnvProduction() bool {
	return strings.ToLower(config.Environment) == "prod"
}

// TableOptions returns the table options described by the configuration
func (config *Config) TableOptions() []func(*synctable.Config) {
	return []func(*synctable.Config){
		synctable.WithInitialCapacity(config.InitialCapacity),
		synctable.WithLoadFactor(config.LoadFactor),
	}
}

// Validate checks the values envconfig cannot check on its own
func (config *Config) Validate() error {
	switch config.SnapshotCompression {
	case CompressionNone, CompressionLZ4:
	default:
		return errors.Newf("unknown snapshot compression %q", config.SnapshotCompression)
	}
	if config.InitialCapacity < 0 {
		return errors.Newf("initial capacity must not be negative, got %d", config.InitialCapacity)
	}
	if !(config.LoadFactor > 0) {
		return errors.Newf("load factor must be positive, got %v", config.LoadFactor)
	}
	if config.MaxSnapshotBytes <= 0 {
		return errors.Newf("max snapshot bytes must be positive, got %d", config.MaxSnapshotBytes)
	}
	return nil
}

// LoadFromEnv loads a new configuration structure using environment variables and an optional .env file
func LoadFromEnv() (*Config, error) {
	// Load a .env file if it exists
	_ = godotenv.Overload()

	// Load a new configuration structure using environment variables
	config := new(Config)
	if err := envconfig.Process("synctable", config); err != nil {
		return nil, err
	}
	config.SnapshotCompression = strings.ToLower(config.SnapshotCompression)
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return config, nil
}
