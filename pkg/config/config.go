package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.coach/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8090
// voice:
//   base_url: https://api.elevenlabs.io
//   default_agent_id: agent_abc123
// model:
//   provider: openai
//   name: gpt-4o-mini
// embedding:
//   provider: openai
//   model: text-embedding-3-small
// limits:
//   voice_coach_sessions_per_day: 20
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - API keys are never read from the file; they come from the environment
//   (COACH_VOICE_API_KEY, OPENAI_API_KEY).

type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Voice     VoiceConfig     `yaml:"voice"`
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Limits    LimitsConfig    `yaml:"limits"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

// VoiceConfig configures the conversational voice platform client.
// DefaultAgentID is the last-resort agent when personality resolution fails.
type VoiceConfig struct {
	BaseURL        string `yaml:"base_url"`
	DefaultAgentID string `yaml:"default_agent_id"`
}

// ModelConfig configures the chat model used for text coaching.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
}

// EmbeddingConfig configures the embedding provider behind the retrieval
// store. Provider is one of: openai, ollama.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	OllamaURL string `yaml:"ollama_url"`
}

type LimitsConfig struct {
	VoiceCoachSessionsPerDay *int `yaml:"voice_coach_sessions_per_day"`
}

type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorStorePath string `yaml:"vector_store_path"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8090

	DefaultVoiceBaseURL   = "https://api.elevenlabs.io"
	DefaultModelProvider  = "openai"
	DefaultModelName      = "gpt-4o-mini"
	DefaultEmbedProvider  = "openai"
	DefaultEmbedModel     = "text-embedding-3-small"
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultSessionsPerDay = 20
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".coach")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.coach/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	if n := cfg.SessionsPerDay(); n < 1 {
		return nil, "", fmt.Errorf("invalid limits.voice_coach_sessions_per_day %d in %s", n, configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)}}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

func (c *AppConfig) VoiceBaseURL() string {
	if c == nil || strings.TrimSpace(c.Voice.BaseURL) == "" {
		return DefaultVoiceBaseURL
	}
	return strings.TrimRight(c.Voice.BaseURL, "/")
}

// VoiceAPIKey comes from the environment only; the config file never holds
// credentials.
func (c *AppConfig) VoiceAPIKey() string {
	return os.Getenv("COACH_VOICE_API_KEY")
}

func (c *AppConfig) DefaultAgentID() string {
	if v := os.Getenv("COACH_VOICE_AGENT_ID"); v != "" {
		return v
	}
	if c == nil {
		return ""
	}
	return c.Voice.DefaultAgentID
}

func (c *AppConfig) ModelProvider() string {
	if c == nil || c.Model.Provider == "" {
		return DefaultModelProvider
	}
	return c.Model.Provider
}

func (c *AppConfig) ModelName() string {
	if c == nil || c.Model.Name == "" {
		return DefaultModelName
	}
	return c.Model.Name
}

func (c *AppConfig) ModelBaseURL() string {
	if c == nil {
		return ""
	}
	return c.Model.BaseURL
}

func (c *AppConfig) ModelAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func (c *AppConfig) EmbeddingProvider() string {
	if c == nil || c.Embedding.Provider == "" {
		return DefaultEmbedProvider
	}
	return c.Embedding.Provider
}

func (c *AppConfig) EmbeddingModel() string {
	if c == nil || c.Embedding.Model == "" {
		return DefaultEmbedModel
	}
	return c.Embedding.Model
}

func (c *AppConfig) OllamaURL() string {
	if c == nil || c.Embedding.OllamaURL == "" {
		return DefaultOllamaURL
	}
	return c.Embedding.OllamaURL
}

func (c *AppConfig) SessionsPerDay() int {
	if c == nil || c.Limits.VoiceCoachSessionsPerDay == nil {
		return DefaultSessionsPerDay
	}
	return *c.Limits.VoiceCoachSessionsPerDay
}

// DatabasePath defaults to ~/.coach/coach.db next to the config file.
func (c *AppConfig) DatabasePath() (string, error) {
	if c != nil && c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath, nil
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "coach.db"), nil
}

// VectorStorePath defaults to ~/.coach/vectors.
func (c *AppConfig) VectorStorePath() (string, error) {
	if c != nil && c.Storage.VectorStorePath != "" {
		return c.Storage.VectorStorePath, nil
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "vectors"), nil
}

func (c *AppConfig) JWTSecret() string {
	if v := os.Getenv("COACH_JWT_SECRET"); v != "" {
		return v
	}
	if c == nil {
		return ""
	}
	return c.Auth.JWTSecret
}

func ptr[T any](v T) *T { return &v }
