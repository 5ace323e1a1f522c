// Package config loads the recgo server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables with the RECGO_ prefix. RECGO_MODEL_FACTORS sets
// model.factors, RECGO_STORAGE_BUCKET sets storage.bucket, and so on: the
// first underscore after the prefix separates the section from the key.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Model   ModelConfig   `koanf:"model"`
	Storage StorageConfig `koanf:"storage"`
	Save    SaveConfig    `koanf:"save"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
	// RateLimitRequests per RateLimitWindow and client IP on /v1. 0 disables it.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ModelConfig configures factorization and the ANN indexes.
type ModelConfig struct {
	Factors        int     `koanf:"factors" validate:"min=1,max=4096"`
	Precision      string  `koanf:"precision" validate:"oneof=float32 float16"`
	Workers        int     `koanf:"workers" validate:"min=0"`
	Regularization float64 `koanf:"regularization" validate:"gte=0"`
	Iterations     int     `koanf:"iterations" validate:"min=1"`
	Seed           int64   `koanf:"seed"`
	M              int     `koanf:"m" validate:"min=2,max=65535"`
	EF             int     `koanf:"ef" validate:"min=1,max=65535"`
	Compression    string  `koanf:"compression" validate:"oneof=none lz4 zstd"`
	Codec          string  `koanf:"codec" validate:"oneof=json go-json msgpack"`
	BM25K1         float64 `koanf:"bm25_k1" validate:"gte=0"`
	BM25B          float64 `koanf:"bm25_b" validate:"gte=0,lte=1"`
}

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendMinio  = "minio"
)

// StorageConfig selects where snapshots live.
type StorageConfig struct {
	Backend string `koanf:"backend" validate:"oneof=local memory s3 minio"`
	// Root is the base directory of the local backend.
	Root string `koanf:"root"`
	// Folder is the snapshot folder loaded at startup and saved to.
	Folder        string `koanf:"folder" validate:"required"`
	Bucket        string `koanf:"bucket"`
	Prefix        string `koanf:"prefix"`
	Endpoint      string `koanf:"endpoint"`
	AccessKey     string `koanf:"access_key"`
	SecretKey     string `koanf:"secret_key"`
	UseSSL        bool   `koanf:"use_ssl"`
	DynamoDBTable string `koanf:"dynamodb_table"`
	CommitHistory int    `koanf:"commit_history" validate:"min=0"`
}

// SaveConfig controls background saves.
type SaveConfig struct {
	LoadOnStartup bool `koanf:"load_on_startup"`
	// Interval triggers a background save of a dirty model. 0 disables it.
	Interval             time.Duration `koanf:"interval" validate:"gte=0"`
	MaxBackgroundWorkers int64         `koanf:"max_background_workers" validate:"min=1"`
	IOLimitBytesPerSec   int64         `koanf:"io_limit_bytes_per_sec" validate:"min=0"`
	MemoryLimitBytes     int64         `koanf:"memory_limit_bytes" validate:"min=0"`
}

// LoggingConfig configures the server logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q constraint (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}

		return err
	}

	switch c.Storage.Backend {
	case BackendS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the s3 backend")
		}
	case BackendMinio:
		if c.Storage.Bucket == "" || c.Storage.Endpoint == "" {
			return errors.New("storage.bucket and storage.endpoint are required for the minio backend")
		}
	default:
		if c.Storage.DynamoDBTable != "" {
			return fmt.Errorf("storage.dynamodb_table requires the s3 backend, got %s", c.Storage.Backend)
		}
	}

	return nil
}
