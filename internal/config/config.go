// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.lumen/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Knowledge: local quota, store path, capacity sweep interval
//   - Embedder: deterministic (offline) or gemini
//   - Backends: generation backend descriptors for the orchestrator
//   - Search: web search adapter settings
//   - Cloud: optional PostgreSQL tier for offloaded nodes
//
// Sensitive data (the PostgreSQL password) is masked in String() and
// MarshalJSON(). Validation happens once at Load with sentinel errors
// usable via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidEmbedder indicates an unknown embedder kind.
	ErrInvalidEmbedder = errors.New("invalid embedder")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidQuota indicates the local quota is out of range.
	ErrInvalidQuota = errors.New("invalid local quota")

	// ErrNoBackends indicates no generation backend is configured.
	ErrNoBackends = errors.New("no backends configured")

	// ErrInvalidBackend indicates a malformed backend entry.
	ErrInvalidBackend = errors.New("invalid backend")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
)

// Embedder kinds used in Config.Embedder.
const (
	EmbedderDeterministic = "deterministic"
	EmbedderGemini        = "gemini"
)

const (
	// DefaultLocalQuota caps the local knowledge tier at 64 MiB before
	// the capacity monitor starts offloading.
	DefaultLocalQuota int64 = 64 << 20

	defaultStoreFile = "knowledge.db"
)

// BackendConfig describes one generation backend for the orchestrator.
type BackendConfig struct {
	Name              string  `mapstructure:"name" json:"name"`
	Model             string  `mapstructure:"model" json:"model"`
	Priority          int     `mapstructure:"priority" json:"priority"`
	MaxTokens         int     `mapstructure:"max_tokens" json:"max_tokens"`
	CostPerToken      float64 `mapstructure:"cost_per_token" json:"cost_per_token"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" json:"requests_per_minute"`
	TokensPerMinute   int     `mapstructure:"tokens_per_minute" json:"tokens_per_minute"`
}

// CloudConfig is the optional PostgreSQL tier for offloaded nodes. An
// empty host disables the cloud tier.
type CloudConfig struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password"` // SENSITIVE: masked in MarshalJSON
	DBName   string `mapstructure:"db_name" json:"db_name"`
	SSLMode  string `mapstructure:"ssl_mode" json:"ssl_mode"`
}

// Enabled reports whether a cloud tier should be wired at all.
func (c CloudConfig) Enabled() bool { return c.Host != "" }

// DSN renders the connection string for pgx.
func (c CloudConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// SearchConfig holds web search adapter settings.
type SearchConfig struct {
	WebEnabled  bool   `mapstructure:"web_enabled" json:"web_enabled"`
	WebEndpoint string `mapstructure:"web_endpoint" json:"web_endpoint"`
}

// Config stores application configuration.
type Config struct {
	// Knowledge store
	StorePath         string `mapstructure:"store_path" json:"store_path"`
	LocalQuota        int64  `mapstructure:"local_quota" json:"local_quota"`
	SweepIntervalSecs int    `mapstructure:"sweep_interval_secs" json:"sweep_interval_secs"`

	// Embedding
	Embedder      string `mapstructure:"embedder" json:"embedder"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Generation
	Backends []BackendConfig `mapstructure:"backends" json:"backends"`

	Search SearchConfig `mapstructure:"search" json:"search"`
	Cloud  CloudConfig  `mapstructure:"cloud" json:"cloud"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".lumen")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("store_path", filepath.Join(configDir, defaultStoreFile))
	v.SetDefault("local_quota", DefaultLocalQuota)
	v.SetDefault("sweep_interval_secs", 60)

	v.SetDefault("embedder", EmbedderDeterministic)
	v.SetDefault("embedder_model", "gemini-embedding-001")

	v.SetDefault("backends", []map[string]any{{
		"name":                "gemini-flash",
		"model":               "gemini-2.5-flash",
		"priority":            1,
		"max_tokens":          2048,
		"requests_per_minute": 10,
	}})

	v.SetDefault("search.web_enabled", false)
	v.SetDefault("search.web_endpoint", "")

	v.SetDefault("cloud.port", 5432)
	v.SetDefault("cloud.ssl_mode", "disable")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly. GEMINI_API_KEY
// is read by the genai client itself, not through viper; Validate only
// checks its presence when a Gemini component is enabled.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}
	mustBind("store_path", "LUMEN_STORE_PATH")
	mustBind("local_quota", "LUMEN_LOCAL_QUOTA")
	mustBind("embedder", "LUMEN_EMBEDDER")
	mustBind("log_level", "LUMEN_LOG_LEVEL")
	mustBind("cloud.host", "LUMEN_CLOUD_HOST")
	mustBind("cloud.password", "LUMEN_CLOUD_PASSWORD")
}

// Validate applies range and consistency checks, fail-fast at startup.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Embedder {
	case EmbedderDeterministic:
	case EmbedderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY required for gemini embedder", ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEmbedder, c.Embedder)
	}

	if c.LocalQuota <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuota, c.LocalQuota)
	}

	if len(c.Backends) == 0 {
		return ErrNoBackends
	}
	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("%w: entry %d has no name", ErrInvalidBackend, i)
		}
		if b.Model == "" {
			return fmt.Errorf("%w: %q has no model", ErrInvalidBackend, b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidBackend, b.Name)
		}
		seen[b.Name] = true
		if b.RequestsPerMinute < 0 || b.TokensPerMinute < 0 {
			return fmt.Errorf("%w: %q has negative rate limit", ErrInvalidBackend, b.Name)
		}
		if b.CostPerToken < 0 {
			return fmt.Errorf("%w: %q has negative cost", ErrInvalidBackend, b.Name)
		}
	}

	if c.Cloud.Enabled() && (c.Cloud.Port < 1 || c.Cloud.Port > 65535) {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.Cloud.Port)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return maskedValue
}

// MarshalJSON masks the cloud password before serialization.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.Cloud.Password = maskSecret(a.Cloud.Password)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
