// Package config provides application configuration management.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (KNOWBASE_ prefix, runtime override)
//  2. Config file (config.yaml in the working directory or --config path)
//  3. Default values
//
// Error handling uses sentinel errors so callers can check with errors.Is()
// and wrap with fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidHistoryWindow indicates the history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidMaxTurns indicates the max turns value is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model. The
	// knowledge store pins its output to the 768 dimensions the chunks
	// table schema declares.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultRetrievalTopK is the number of chunks returned per search.
	DefaultRetrievalTopK = 3

	// DefaultHistoryWindow is the number of prior messages loaded per turn.
	DefaultHistoryWindow = 10

	// MaxRetrievalTopK bounds top-k to keep tool results readable.
	MaxRetrievalTopK = 20

	// MaxHistoryWindow bounds the history window to keep prompts bounded.
	MaxHistoryWindow = 200
)

// Config stores application configuration.
type Config struct {
	// HTTP server
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	MaxTurns      int    `mapstructure:"max_turns" json:"max_turns"`

	// Retrieval and conversation configuration
	RetrievalTopK int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	HistoryWindow int `mapstructure:"history_window" json:"history_window"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Load loads configuration. path may be empty, in which case config.yaml
// is searched in the current directory.
// Priority: environment variables > configuration file > defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("KNOWBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env apply.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", "127.0.0.1:8000")

	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("max_turns", 5)

	v.SetDefault("retrieval_top_k", DefaultRetrievalTopK)
	v.SetDefault("history_window", DefaultHistoryWindow)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "knowbase")
	v.SetDefault("postgres_password", "knowbase_dev_password")
	v.SetDefault("postgres_db_name", "knowbase")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("log_json", true)
	v.SetDefault("log_level", "info")
}

// Validate performs fail-fast validation of the configuration.
func (c *Config) Validate() error {
	if c.Provider != ProviderGoogleAI {
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEmbedderModel)
	}
	if c.MaxTurns < 1 || c.MaxTurns > 25 {
		return fmt.Errorf("%w: %d (must be 1-25)", ErrInvalidMaxTurns, c.MaxTurns)
	}
	if c.RetrievalTopK < 1 || c.RetrievalTopK > MaxRetrievalTopK {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidTopK, c.RetrievalTopK, MaxRetrievalTopK)
	}
	if c.HistoryWindow < 1 || c.HistoryWindow > MaxHistoryWindow {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidHistoryWindow, c.HistoryWindow, MaxHistoryWindow)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresDBName)
	}
	return nil
}

// DatabaseURL assembles a postgres:// connection URL from the storage fields.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   c.PostgresHost + ":" + strconv.Itoa(c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash". Names already containing "/" are
// returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return c.Provider + "/" + c.ModelName
}
