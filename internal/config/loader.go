package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is loaded when present and no other env file is given
const DefaultEnvFile = ".env"

// envBindings maps config keys to the plain environment names they also accept.
// Every key is additionally reachable as RAGENT_<KEY>.
var envBindings = map[string][]string{
	"openai.api_key":     {"OPENAI_API_KEY"},
	"openai.base_url":    {"OPENAI_BASE_URL"},
	"embedding.api_key":  {"EMBEDDING_KEY"},
	"embedding.base_url": {"EMBEDDING_BASE_URL"},
	"anthropic.api_key":  {"ANTHROPIC_API_KEY"},
	"anthropic.base_url": {"ANTHROPIC_BASE_URL"},
}

// overridableKeys are scalar keys exposed through RAGENT_* variables
var overridableKeys = []string{
	"models.embedding",
	"models.llm",
	"models.provider",
	"fs.output_dir",
	"fs.knowledge_dir",
	"task.description",
	"prompt",
	"retrieval.top_k",
	"retrieval.concurrency",
	"retry.max_attempts",
	"retry.base_delay",
	"conversation.max_history",
	"logging.level",
	"logging.file",
	"metrics_file",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a new config loader. An empty configPath searches for
// ragent.{json,yaml,toml} in the working directory.
func NewLoader(configPath, envFile string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    envFile,
	}
}

// Load reads the env file, the config file and the environment, then resolves
// derived values. Validation is left to the caller.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("RAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range envBindings {
		args := append([]string{key, "RAGENT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	for _, key := range overridableKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", l.configPath, err)
		}
		v.SetConfigFile(l.configPath)
	} else {
		v.SetConfigName("ragent")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	// A configured provider list replaces the defaults instead of merging element-wise
	if v.IsSet("tool_providers") {
		cfg.ToolProviders = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) loadEnvFile() error {
	path := l.envFile
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		return nil
	}

	// godotenv never overrides variables already set in the process
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath, envFile string) (*Config, error) {
	return NewLoader(configPath, envFile).Load()
}
