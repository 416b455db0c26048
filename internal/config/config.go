// Package config loads netimpaird's static configuration: logging, the HTTP
// query API's listen address, namespace/container discovery tuning, and the
// scenario preset directory. Precedence mirrors the teacher's convention:
// environment variables (NETIMPAIRD_*) override the config file, which
// overrides built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LoggingConfig controls logger.Init.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// APIConfig controls the chi-routed query handler HTTP listener (C11).
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`
}

// DiscoveryConfig holds the discovery intervals (C3/C5). The fields are
// loaded and validated, but the container watcher and the event aggregator
// do not read them: they use their own built-in 5s poll and 30s
// reconciliation intervals.
type DiscoveryConfig struct {
	ContainerPollInterval time.Duration `mapstructure:"container_poll_interval" validate:"required,gt=0" yaml:"container_poll_interval"`
	ReconcileInterval     time.Duration `mapstructure:"reconcile_interval" validate:"required,gt=0" yaml:"reconcile_interval"`
}

// ScenariosConfig points at the preset directory loaded at startup (C8).
type ScenariosConfig struct {
	PresetDir string `mapstructure:"preset_dir" yaml:"preset_dir"`
}

// MetricsConfig holds metrics listener settings. They are loaded but not
// read by any other package; no metrics listener is started.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Config is netimpaird's complete static configuration.
type Config struct {
	Backend         string          `mapstructure:"backend" validate:"required" yaml:"backend"`
	Logging         LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	API             APIConfig       `mapstructure:"api" yaml:"api"`
	Discovery       DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Scenarios       ScenariosConfig `mapstructure:"scenarios" yaml:"scenarios"`
	Metrics         MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

var validate = validator.New()

// Load loads configuration from defaults, file, and environment, in that
// order of increasing precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if found {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	applyEnvOverrides(v, cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// defaultConfig returns the built-in default configuration, used both as
// Load's base (before file/env overrides) and when no config file exists.
func defaultConfig() *Config {
	return &Config{
		Backend: defaultBackendName(),
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:9800",
		},
		Discovery: DiscoveryConfig{
			ContainerPollInterval: 5 * time.Second,
			ReconcileInterval:     30 * time.Second,
		},
		Scenarios: ScenariosConfig{
			PresetDir: defaultPresetDir(),
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:9801",
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

func defaultBackendName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "netimpaird"
}

func defaultPresetDir() string {
	configDir := getConfigDir()
	return filepath.Join(configDir, "scenarios")
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "netimpaird")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/netimpaird"
	}
	return filepath.Join(home, ".config", "netimpaird")
}

// setupViper configures viper's environment and config-file search
// behavior: NETIMPAIRD_* environment variables, and the default location
// $XDG_CONFIG_HOME/netimpaird/config.yaml when configPath is empty.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NETIMPAIRD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists. A missing file
// is not an error: netimpaird runs on built-in defaults until one is
// supplied, matching the teacher's Load contract.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// applyEnvOverrides copies the values viper may have picked up from the
// environment onto cfg, since Unmarshal above is only invoked when a config
// file was found. It covers logging.level, logging.format, logging.output,
// api.listen_addr, backend and scenarios.preset_dir; the discovery, metrics
// and shutdown_timeout fields are not read from the environment here.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if val := v.GetString("logging.level"); val != "" {
		cfg.Logging.Level = strings.ToUpper(val)
	}
	if val := v.GetString("logging.format"); val != "" {
		cfg.Logging.Format = val
	}
	if val := v.GetString("logging.output"); val != "" {
		cfg.Logging.Output = val
	}
	if val := v.GetString("api.listen_addr"); val != "" {
		cfg.API.ListenAddr = val
	}
	if val := v.GetString("backend"); val != "" {
		cfg.Backend = val
	}
	if val := v.GetString("scenarios.preset_dir"); val != "" {
		cfg.Scenarios.PresetDir = val
	}
}
