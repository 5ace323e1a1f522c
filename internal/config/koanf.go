package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RECGO_"

// ConfigPathEnvVar overrides the config file path when none is given.
const ConfigPathEnvVar = "RECGO_CONFIG"

// DefaultConfigPaths lists the files searched, in order, when no path is
// given.
var DefaultConfigPaths = []string{
	"recgo.yaml",
	"recgo.yml",
	"/etc/recgo/config.yaml",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitWindow: time.Minute,
		},
		Model: ModelConfig{
			Factors:        64,
			Precision:      "float32",
			Workers:        0, // 0 = runtime.GOMAXPROCS(0)
			Regularization: 0.01,
			Iterations:     15,
			Seed:           1,
			M:              8,
			EF:             200,
			Compression:    "none",
			Codec:          "go-json",
			BM25K1:         100,
			BM25B:          0.8,
		},
		Storage: StorageConfig{
			Backend:       BackendLocal,
			Root:          "data",
			Folder:        "model",
			CommitHistory: 100,
		},
		Save: SaveConfig{
			LoadOnStartup:        true,
			Interval:             0,
			MaxBackgroundWorkers: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or the
// first file found in RECGO_CONFIG and DefaultConfigPaths when path is empty)
// and RECGO_ environment variables, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps RECGO_SECTION_SOME_KEY to section.some_key.
// Variables without a section, and RECGO_CONFIG itself, are ignored.
func envTransformFunc(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}

	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))

	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" {
		return ""
	}

	return section + "." + rest
}
