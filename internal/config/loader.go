package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "modelmux.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "MODELMUX_PORT")
	setString(&cfg.Server.CORSOrigin, "MODELMUX_CORS_ORIGIN")
	setString(&cfg.Backend.Endpoint, "MODELMUX_BACKEND_ENDPOINT")
	setString(&cfg.Backend.Token, "MODELMUX_BACKEND_TOKEN")
	setDuration(&cfg.Backend.RequestTimeout, "MODELMUX_BACKEND_TIMEOUT")
	setInt(&cfg.Backend.MaxRetries, "MODELMUX_BACKEND_MAX_RETRIES")
	setDuration(&cfg.Backend.RetryBaseDelay, "MODELMUX_BACKEND_RETRY_DELAY")
	setString(&cfg.Models.Orchestrator, "MODELMUX_MODEL_ORCHESTRATOR")
	setString(&cfg.Models.Coding, "MODELMUX_MODEL_CODING")
	setString(&cfg.Models.Math, "MODELMUX_MODEL_MATH")
	setString(&cfg.Models.Explanation, "MODELMUX_MODEL_EXPLANATION")
	setString(&cfg.Models.Critique, "MODELMUX_MODEL_CRITIQUE")
	setString(&cfg.Models.Optimization, "MODELMUX_MODEL_OPTIMIZATION")
	setString(&cfg.Models.Creative, "MODELMUX_MODEL_CREATIVE")
	setString(&cfg.Models.Default, "MODELMUX_MODEL_DEFAULT")
	setDuration(&cfg.Session.PollInterval, "MODELMUX_SESSION_POLL_INTERVAL")
	setDuration(&cfg.Session.IdleTTL, "MODELMUX_SESSION_IDLE_TTL")
	setInt(&cfg.Breaker.MaxFailures, "MODELMUX_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "MODELMUX_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "MODELMUX_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MODELMUX_LOG_SERVICE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Backend.Endpoint == "" {
		return errors.New("backend.endpoint is required")
	}
	if cfg.Backend.MaxRetries < 1 {
		return errors.New("backend.max_retries must be >= 1")
	}
	if cfg.Models.Orchestrator == "" || cfg.Models.Default == "" {
		return errors.New("models.orchestrator and models.default are required")
	}
	if cfg.Session.PollInterval <= 0 {
		return errors.New("session.poll_interval must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
