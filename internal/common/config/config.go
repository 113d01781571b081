// Package config loads control-plane configuration from environment
// variables (and an optional .env file) via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	ShutdownTimeout time.Duration
}

// LoggingConfig mirrors logger.LoggingConfig so config stays decoupled from
// the logger package.
type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// MongoConfig points at the coordination-plane database.
type MongoConfig struct {
	URI      string
	Database string
}

// NATSConfig configures the optional event-bus mirror.
type NATSConfig struct {
	URL     string
	Enabled bool
}

// DockerConfig configures the Docker SDK client used by the sandbox
// orchestrator.
type DockerConfig struct {
	Host       string
	APIVersion string
}

// SandboxConfig controls the shared sandbox container.
type SandboxConfig struct {
	Image           string
	WorkspaceMount  string
	IdleGracePeriod time.Duration
	ExecTimeout     time.Duration
	MemoryMB        int64
}

// AnthropicConfig configures the LLM client.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	MaxTurn int
}

// RuntimeConfig tunes the director orchestration loop.
type RuntimeConfig struct {
	DirectorWaitTimeout time.Duration
}

// Config is the fully resolved control-plane configuration.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Mongo     MongoConfig
	NATS      NATSConfig
	Docker    DockerConfig
	Sandbox   SandboxConfig
	Anthropic AnthropicConfig
	Runtime   RuntimeConfig
}

// Load reads configuration from environment variables, optionally seeded by
// a .env file in the working directory. Unset values fall back to the
// defaults below.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "squad-lite")
	v.SetDefault("nats.url", "")
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.api_version", "1.44")
	v.SetDefault("sandbox.image", "squadlite/sandbox:latest")
	v.SetDefault("sandbox.workspace_mount", "/workspace")
	v.SetDefault("sandbox.idle_grace_period", 10*time.Minute)
	v.SetDefault("sandbox.exec_timeout", 30*time.Minute)
	v.SetDefault("sandbox.memory_mb", 2048)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.max_turns", 50)
	v.SetDefault("runtime.director_wait_timeout", 120*time.Second)

	bindEnv(v, "server.host", "HOST")
	bindEnv(v, "server.port", "PORT")
	bindEnv(v, "server.environment", "NODE_ENV")
	bindEnv(v, "logging.level", "LOG_LEVEL")
	bindEnv(v, "logging.format", "LOG_FORMAT")
	bindEnv(v, "mongodb.uri", "MONGODB_URI")
	bindEnv(v, "mongodb.database", "MONGODB_DB_NAME")
	bindEnv(v, "nats.url", "NATS_URL")
	bindEnv(v, "docker.host", "DOCKER_HOST")
	bindEnv(v, "sandbox.image", "SANDBOX_IMAGE")
	bindEnv(v, "anthropic.api_key", "ANTHROPIC_API_KEY")
	bindEnv(v, "anthropic.model", "ANTHROPIC_MODEL")
	bindEnv(v, "anthropic.max_turns", "AGENT_MAX_TURNS")
	bindEnv(v, "runtime.director_wait_timeout", "DIRECTOR_WAIT_TIMEOUT")

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			Environment:     v.GetString("server.environment"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Logging: LoggingConfig{
			Level:      v.GetString("logging.level"),
			Format:     v.GetString("logging.format"),
			OutputPath: v.GetString("logging.output_path"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongodb.uri"),
			Database: v.GetString("mongodb.database"),
		},
		NATS: NATSConfig{
			URL:     v.GetString("nats.url"),
			Enabled: v.GetString("nats.url") != "",
		},
		Docker: DockerConfig{
			Host:       v.GetString("docker.host"),
			APIVersion: v.GetString("docker.api_version"),
		},
		Sandbox: SandboxConfig{
			Image:           v.GetString("sandbox.image"),
			WorkspaceMount:  v.GetString("sandbox.workspace_mount"),
			IdleGracePeriod: v.GetDuration("sandbox.idle_grace_period"),
			ExecTimeout:     v.GetDuration("sandbox.exec_timeout"),
			MemoryMB:        v.GetInt64("sandbox.memory_mb"),
		},
		Anthropic: AnthropicConfig{
			APIKey:  v.GetString("anthropic.api_key"),
			Model:   v.GetString("anthropic.model"),
			MaxTurn: v.GetInt("anthropic.max_turns"),
		},
		Runtime: RuntimeConfig{
			DirectorWaitTimeout: v.GetDuration("runtime.director_wait_timeout"),
		},
	}

	if cfg.Anthropic.APIKey == "" {
		return nil, fmt.Errorf("config: ANTHROPIC_API_KEY is required")
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}
