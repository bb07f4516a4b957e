package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfiguration wraps every error returned by LoadConfig.
var ErrConfiguration = errors.New("configuration error")

// LoadConfig reads the YAML file at path over the built-in defaults, applies BOT_*
// environment overrides (BOT_TELEGRAM_TOKEN, BOT_GEMINI_API_KEY, ...) and validates
// the result. A missing file is not an error; defaults and environment still apply.
func LoadConfig(path string) (*Config, error) {
	startTime := time.Now()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: failed to read %s: %w", ErrConfiguration, path, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		} else {
			slog.Debug("Configuration file loaded", "path", v.ConfigFileUsed())
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse configuration: %w", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	slog.Info("Configuration loaded",
		"path", path,
		"ai_provider", cfg.AI.Provider,
		"db_path", cfg.Database.Path,
		"vector_store", cfg.VectorStore.Enabled,
		"channels", len(cfg.Channels),
		"duration", time.Since(startTime))
	return cfg, nil
}
