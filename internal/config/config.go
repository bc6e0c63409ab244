// Package config loads secretsd's configuration from environment
// variables, plus an optional yaml-parsed plugin manifest describing
// which plugins the host application intends to register.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config collects every option the daemon recognises.
type Config struct {
	// AutotestMode substitutes the default authentication plugin with
	// its ".test" variant.
	AutotestMode bool
	// PluginDir is where plugins are loaded from on startup.
	PluginDir string
	// PluginManifestPath points at a YAML file describing which
	// plugins the host application intends to register and how each is
	// expected to classify.
	PluginManifestPath string
	// DeviceLockKey is the process-wide key used as the authentication
	// key for device-lock collections/secrets.
	DeviceLockKey []byte
	// SystemEncryptionKey is reserved for bookkeeping-database
	// encryption, consumed by a collaborator this core does not
	// implement.
	SystemEncryptionKey []byte
	// BookkeepingPath is the on-disk path of the SQLite bookkeeping
	// database.
	BookkeepingPath string
	// NATSURL selects internal/bus's transport: NATSBus when set,
	// ChannelBus otherwise.
	NATSURL string
	// ResultQueueCapacity bounds the in-process result queue
	// internal/queue.ResultQueue buffers before Emit blocks.
	ResultQueueCapacity int
	// LogLevel and LogPretty configure internal/logging.
	LogLevel  string
	LogPretty bool
}

// FromEnv loads Config from environment variables. Every option has a
// sensible default; none is required to start the daemon.
func FromEnv() *Config {
	return &Config{
		AutotestMode:        getEnv("SECRETSD_AUTOTEST_MODE", "false") == "true",
		PluginDir:           getEnv("SECRETSD_PLUGIN_DIR", "./plugins"),
		PluginManifestPath:  getEnv("SECRETSD_PLUGIN_MANIFEST", ""),
		DeviceLockKey:       []byte(os.Getenv("SECRETSD_DEVICE_LOCK_KEY")),
		SystemEncryptionKey: []byte(os.Getenv("SECRETSD_SYSTEM_ENCRYPTION_KEY")),
		BookkeepingPath:     getEnv("SECRETSD_BOOKKEEPING_PATH", "./secretsd.db"),
		NATSURL:             os.Getenv("SECRETSD_NATS_URL"),
		ResultQueueCapacity: getEnvInt("SECRETSD_RESULT_QUEUE_CAPACITY", 64),
		LogLevel:            getEnv("SECRETSD_LOG_LEVEL", "info"),
		LogPretty:           getEnv("SECRETSD_LOG_PRETTY", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// PluginManifestEntry is one entry of a YAML plugin manifest: a name,
// the capability class it is expected to provide, and a free-form
// settings map. This package only parses entries; cmd/secretsd logs
// them, and nothing instantiates plugins from them, compares
// ExpectedClass with internal/registry's classification, or reads
// Settings.
type PluginManifestEntry struct {
	Name          string         `yaml:"name"`
	ExpectedClass string         `yaml:"class"`
	Settings      map[string]any `yaml:"settings"`
}

// PluginManifest is the top-level shape of SECRETSD_PLUGIN_MANIFEST.
type PluginManifest struct {
	Plugins []PluginManifestEntry `yaml:"plugins"`
}

// LoadPluginManifest parses a YAML plugin manifest from path.
func LoadPluginManifest(path string) (*PluginManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin manifest %s: %w", path, err)
	}
	var m PluginManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse plugin manifest %s: %w", path, err)
	}
	return &m, nil
}
