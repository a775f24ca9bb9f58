// Package config handles loading and validating the islandgreet configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the islandgreet daemon.
type Config struct {
	Environment string            `mapstructure:"environment"` // "development" exposes error details
	Server      ServerConfig      `mapstructure:"server"`
	Transports  TransportsConfig  `mapstructure:"transports"`
	PromptLayer PromptLayerConfig `mapstructure:"promptlayer"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	ElevenLabs  ElevenLabsConfig  `mapstructure:"elevenlabs"`
	Names       NamesConfig       `mapstructure:"names"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Development reports whether diagnostic details may be returned to clients.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort     int `mapstructure:"health_port"`
	GRPCHealthPort int `mapstructure:"grpc_health_port"` // 0 disables the gRPC health service
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
	NATS NATSConfig `mapstructure:"nats"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// NATSConfig configures the NATS request/reply transport.
type NATSConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Embedded      bool     `mapstructure:"embedded"` // run an in-process nats-server
	EmbeddedPort  int      `mapstructure:"embedded_port"`
	Servers       []string `mapstructure:"servers"`
	Token         string   `mapstructure:"token"`
	SubjectPrefix string   `mapstructure:"subject_prefix"`
	QueueGroup    string   `mapstructure:"queue_group"`
}

// PromptLayerConfig holds prompt template service settings.
type PromptLayerConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Label      string        `mapstructure:"label"`
	Timeout    time.Duration `mapstructure:"timeout"`
	LogTimeout time.Duration `mapstructure:"log_timeout"`
}

// OpenAIConfig holds completion API settings.
type OpenAIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	DefaultModel string        `mapstructure:"default_model"` // used when the template names no model
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ElevenLabsConfig holds text-to-speech settings.
type ElevenLabsConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	VoiceID string        `mapstructure:"voice_id"`
	BaseURL string        `mapstructure:"base_url"`
	ModelID string        `mapstructure:"model_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NamesConfig configures the name-save store.
type NamesConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // SQLite database file
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	Metrics      bool   `mapstructure:"metrics"`       // expose /metrics on the HTTP transport
	OTLPEndpoint string `mapstructure:"otlp_endpoint"` // empty disables OTLP export
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	TraceStdout  bool   `mapstructure:"trace_stdout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// envAliases binds the plain variable names used by existing deployments
// to their config keys. ISLANDGREET_* variables take precedence.
var envAliases = map[string][]string{
	"elevenlabs.api_key":  {"ISLANDGREET_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY"},
	"elevenlabs.voice_id": {"ISLANDGREET_ELEVENLABS_VOICE_ID", "ELEVENLABS_VOICE_ID"},
	"promptlayer.api_key": {"ISLANDGREET_PROMPTLAYER_API_KEY", "PROMPTLAYER_API_KEY"},
	"openai.api_key":      {"ISLANDGREET_OPENAI_API_KEY", "OPENAI_API_KEY"},
	"environment":         {"ISLANDGREET_ENVIRONMENT", "APP_ENV", "NODE_ENV"},
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./islandgreet.yaml, ./configs/islandgreet.yaml, /etc/islandgreet/islandgreet.yaml.
//
// A .env file in the working directory is loaded first when present; it never
// overrides variables already set in the process environment.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("environment", "production")
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.grpc_health_port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.http.write_timeout", 120*time.Second)
	v.SetDefault("transports.nats.enabled", false)
	v.SetDefault("transports.nats.embedded", false)
	v.SetDefault("transports.nats.embedded_port", 4222)
	v.SetDefault("transports.nats.servers", []string{"nats://localhost:4222"})
	v.SetDefault("transports.nats.subject_prefix", "islandgreet.greet")
	v.SetDefault("transports.nats.queue_group", "islandgreet")
	v.SetDefault("promptlayer.base_url", "https://api.promptlayer.com")
	v.SetDefault("promptlayer.label", "prod")
	v.SetDefault("promptlayer.timeout", 15*time.Second)
	v.SetDefault("promptlayer.log_timeout", 10*time.Second)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.default_model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 60*time.Second)
	v.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	v.SetDefault("elevenlabs.model_id", "eleven_multilingual_v2")
	v.SetDefault("elevenlabs.timeout", 60*time.Second)
	v.SetDefault("names.enabled", true)
	v.SetDefault("names.path", "./data/names.db")
	v.SetDefault("telemetry.service_name", "islandgreet")
	v.SetDefault("telemetry.metrics", true)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.trace_stdout", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("islandgreet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/islandgreet")
	}

	// Environment variables: ISLANDGREET_SERVER_HEALTH_PORT, ISLANDGREET_OPENAI_TIMEOUT, etc.
	v.SetEnvPrefix("ISLANDGREET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	// Read config file (optional; env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}")
	cfg.PromptLayer.APIKey = resolveEnvRef(cfg.PromptLayer.APIKey)
	cfg.OpenAI.APIKey = resolveEnvRef(cfg.OpenAI.APIKey)
	cfg.ElevenLabs.APIKey = resolveEnvRef(cfg.ElevenLabs.APIKey)
	cfg.ElevenLabs.VoiceID = resolveEnvRef(cfg.ElevenLabs.VoiceID)
	cfg.Transports.NATS.Token = resolveEnvRef(cfg.Transports.NATS.Token)

	return &cfg, nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
// A reference to an unset variable resolves to "" so the value reads as not configured.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
