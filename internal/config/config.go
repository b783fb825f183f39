package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/trendradar-webui/internal/restart"
)

const (
	defaultPort           = "5000"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultLogLevel       = "info"

	containerRoot = "/app"
)

var validate = validator.New()

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > YAML settings file > Defaults
type Config struct {
	Port                 string        `validate:"required"`
	ConfigPath           string        `validate:"required"`
	KeywordsPath         string        `validate:"required"`
	RestartCommand       string        `validate:"-"`
	RestartTimeout       time.Duration `validate:"gt=0"`
	LogLevel             string        `validate:"oneof=debug info warn error"`
	LogFile              string        `validate:"-"`
	ShutdownGracePeriod  time.Duration `validate:"gt=0"`
	ReadHeaderTimeout    time.Duration `validate:"gte=0"`
	WriteTimeout         time.Duration `validate:"gte=0"`
	IdleTimeout          time.Duration `validate:"gte=0"`
	EnableRequestLogging bool
	RateLimitRPS         float64 `validate:"gte=0"`
	RateLimitBurst       int     `validate:"gte=0"`
}

// yamlConfig represents the YAML settings file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	ConfigFile           string        `yaml:"config_file"`
	KeywordsFile         string        `yaml:"keywords_file"`
	RestartCommand       string        `yaml:"restart_command"`
	RestartTimeout       string        `yaml:"restart_timeout"`
	LogLevel             string        `yaml:"log_level"`
	LogFile              string        `yaml:"log_file"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	SettingsFile   string
	Port           *string
	ConfigFile     *string
	KeywordsFile   *string
	RestartCommand *string
	LogLevel       *string
	LogFile        *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML settings file > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig(ProjectRoot())

	if overrides != nil && overrides.SettingsFile != "" {
		yamlCfg, err := loadFromFile(overrides.SettingsFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML settings: %w", err)
		}
		applyYAMLConfig(&cfg, yamlCfg)
	}

	applyEnvConfig(&cfg)

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ProjectRoot resolves the deployment root: /app inside the container image,
// the working directory otherwise.
func ProjectRoot() string {
	return detectRoot(os.Stat, os.Getwd)
}

func detectRoot(stat func(string) (os.FileInfo, error), getwd func() (string, error)) string {
	if info, err := stat(filepath.Join(containerRoot, "config")); err == nil && info.IsDir() {
		return containerRoot
	}
	wd, err := getwd()
	if err != nil {
		return "."
	}
	return wd
}

// DefaultEnvFile is the .env file read when no other location is given.
func DefaultEnvFile() string {
	return filepath.Join(ProjectRoot(), ".env")
}

// LoadEnvFile exports the variables of a .env file into the process
// environment. Variables that are already set keep their value. A missing
// file is not an error and reports false.
func LoadEnvFile(path string) (bool, error) {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load env file %s: %w", path, err)
	}
	return true, nil
}

// defaultConfig returns a Config with default values rooted at root.
func defaultConfig(root string) Config {
	return Config{
		Port:                 defaultPort,
		ConfigPath:           filepath.Join(root, "config", "config.yaml"),
		KeywordsPath:         filepath.Join(root, "config", "frequency_words.txt"),
		RestartCommand:       restart.DefaultCommand,
		RestartTimeout:       30 * time.Second,
		LogLevel:             defaultLogLevel,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         45 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile loads settings from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML settings to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) {
	setString(&cfg.Port, yamlCfg.Port)
	setString(&cfg.ConfigPath, yamlCfg.ConfigFile)
	setString(&cfg.KeywordsPath, yamlCfg.KeywordsFile)
	setString(&cfg.RestartCommand, yamlCfg.RestartCommand)
	setString(&cfg.LogLevel, yamlCfg.LogLevel)
	setString(&cfg.LogFile, yamlCfg.LogFile)

	setDuration(&cfg.RestartTimeout, yamlCfg.RestartTimeout)
	setDuration(&cfg.ShutdownGracePeriod, yamlCfg.ShutdownGracePeriod)
	setDuration(&cfg.ReadHeaderTimeout, yamlCfg.ReadHeaderTimeout)
	setDuration(&cfg.WriteTimeout, yamlCfg.WriteTimeout)
	setDuration(&cfg.IdleTimeout, yamlCfg.IdleTimeout)

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil && *yamlCfg.RateLimit.RPS >= 0 {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil && *yamlCfg.RateLimit.Burst >= 0 {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	setString(&cfg.Port, os.Getenv("WEBUI_PORT"))
	setString(&cfg.ConfigPath, os.Getenv("WEBUI_CONFIG_FILE"))
	setString(&cfg.KeywordsPath, os.Getenv("WEBUI_KEYWORDS_FILE"))
	setString(&cfg.RestartCommand, os.Getenv("WEBUI_RESTART_COMMAND"))
	setString(&cfg.LogLevel, os.Getenv("WEBUI_LOG_LEVEL"))
	setString(&cfg.LogFile, os.Getenv("WEBUI_LOG_FILE"))

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	for _, o := range []struct {
		dst *string
		src *string
	}{
		{&cfg.Port, overrides.Port},
		{&cfg.ConfigPath, overrides.ConfigFile},
		{&cfg.KeywordsPath, overrides.KeywordsFile},
		{&cfg.RestartCommand, overrides.RestartCommand},
		{&cfg.LogLevel, overrides.LogLevel},
		{&cfg.LogFile, overrides.LogFile},
	} {
		if o.src != nil {
			setString(o.dst, *o.src)
		}
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value string) {
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err == nil {
		*dst = d
	}
}
