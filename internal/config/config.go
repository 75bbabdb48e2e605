// Package config provides hierarchical configuration loading for modelmux.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the modelmux service.
type Config struct {
	Server  Server  `yaml:"server"`
	Backend Backend `yaml:"backend"`
	Models  Models  `yaml:"models"`
	Session Session `yaml:"session"`
	Breaker Breaker `yaml:"breaker"`
	Logging Logging `yaml:"logging"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Backend holds backend model endpoint configuration.
type Backend struct {
	Endpoint       string        `yaml:"endpoint"`         // chat-completions URL
	Token          string        `yaml:"token"`            // bearer token
	RequestTimeout time.Duration `yaml:"request_timeout"`  // per-attempt timeout
	MaxRetries     int           `yaml:"max_retries"`      // attempts per call
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"` // linear backoff unit
}

// Models maps task types to backend model identifiers.
// Orchestrator is the model used for decomposition, routing and synthesis.
type Models struct {
	Orchestrator string `yaml:"orchestrator"`
	Coding       string `yaml:"coding"`
	Math         string `yaml:"math"`
	Explanation  string `yaml:"explanation"`
	Critique     string `yaml:"critique"`
	Optimization string `yaml:"optimization"`
	Creative     string `yaml:"creative"`
	Default      string `yaml:"default"`
}

// Resolve returns the model for a task type, falling back to Default
// for unknown types.
func (m Models) Resolve(taskType string) string {
	switch taskType {
	case "coding":
		return m.Coding
	case "math":
		return m.Math
	case "explanation":
		return m.Explanation
	case "critique":
		return m.Critique
	case "optimization":
		return m.Optimization
	case "creative":
		return m.Creative
	case "orchestrator":
		return m.Orchestrator
	default:
		return m.Default
	}
}

// Session holds live-session stream configuration.
type Session struct {
	PollInterval time.Duration `yaml:"poll_interval"` // drain interval for the SSE loop
	IdleTTL      time.Duration `yaml:"idle_ttl"`      // expiry for abandoned sessions
}

// Breaker holds circuit breaker configuration for the backend endpoint.
// MaxFailures of 0 disables the breaker.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8000",
			CORSOrigin: "*",
		},
		Backend: Backend{
			Endpoint:       "https://anura-testnet.lilypad.tech/api/v1/chat/completions",
			RequestTimeout: 60 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: 2 * time.Second,
		},
		Models: Models{
			Orchestrator: "llama3.1:8b",
			Coding:       "qwen2.5-coder:7b",
			Math:         "mistral:7b",
			Explanation:  "deepseek-r1:7b",
			Critique:     "phi4:14b",
			Optimization: "mistral:7b",
			Creative:     "openthinker:7b",
			Default:      "llama3.1:8b",
		},
		Session: Session{
			PollInterval: 500 * time.Millisecond,
			IdleTTL:      5 * time.Minute,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "modelmux",
		},
	}
}
