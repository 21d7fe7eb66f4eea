package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Whisper   WhisperConfig   `yaml:"whisper" mapstructure:"whisper"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DirectoryConfig configures the provider directory source.
type DirectoryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// WhisperConfig holds transcription sidecar settings.
type WhisperConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Model       string `yaml:"model" mapstructure:"model"`
	Language    string `yaml:"language" mapstructure:"language"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MatchConfig configures the ranking engine.
type MatchConfig struct {
	WeightsFile     string `yaml:"weights_file" mapstructure:"weights_file"`
	MaxResults      int    `yaml:"max_results" mapstructure:"max_results"`
	StrictInsurance bool   `yaml:"strict_insurance" mapstructure:"strict_insurance"`
	CacheTTLHours   int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// BatchConfig configures batch matching.
type BatchConfig struct {
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PATHWAYS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/pathways.db")
	// Empty defaults register env-only keys with viper so AutomaticEnv
	// can fill them during Unmarshal.
	v.SetDefault("store.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("match.weights_file", "")
	v.SetDefault("directory.path", "data/providers.json")
	v.SetDefault("anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("whisper.url", "http://localhost:8387")
	v.SetDefault("whisper.model", "base")
	v.SetDefault("whisper.language", "en")
	v.SetDefault("whisper.timeout_secs", 120)
	v.SetDefault("match.max_results", 3)
	v.SetDefault("match.strict_insurance", false)
	v.SetDefault("match.cache_ttl_hours", 24)
	v.SetDefault("batch.max_concurrent_requests", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
