package host

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/portflow/bridge"
	"github.com/wippyai/portflow/errors"
)

// Config holds configuration for host creation
type Config struct {
	// HostModule is the import module name guests link against.
	HostModule string `yaml:"host_module"`

	// LogLevel is a zap level name used by the CLI.
	LogLevel string `yaml:"log_level"`

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`

	// WASI instantiates wasi_snapshot_preview1 so guests built for wasip1
	// can link.
	WASI bool `yaml:"wasi"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		HostModule: bridge.HostModule,
		LogLevel:   "info",
		WASI:       true,
	}
}

// LoadConfig reads a YAML config file. Fields absent from the file keep
// their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Load(fmt.Sprintf("read config %s", path), err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.ParseFailed("config", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.HostModule == "" {
		return errors.InvalidInput(errors.PhaseHost, "host_module must not be empty")
	}
	if c.MemoryLimitPages > 65536 {
		return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("memory_limit_pages %d exceeds 65536", c.MemoryLimitPages))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("log_level: %v", err))
	}
	return nil
}

// Level returns the configured log level, info when unset.
func (c Config) Level() zapcore.Level {
	l, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
