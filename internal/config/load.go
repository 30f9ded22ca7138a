package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables use the
// GRIMOIRE_ prefix with underscores for nesting (GRIMOIRE_SERVER_PORT,
// GRIMOIRE_BACKLOG_LEASE_DURATION, ...) and take precedence over file
// values. Returns a populated Config or an error if loading or validation
// fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GRIMOIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars carry the config.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults establishes the default values applied before file and
// environment overrides.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Keys without meaningful defaults still need registering so
	// AutomaticEnv surfaces them to Unmarshal.
	v.SetDefault("database.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime", 24*time.Hour)
	v.SetDefault("auth.worker_secret_hash", "")
	v.SetDefault("auth.admin_secret_hash", "")

	v.SetDefault("backlog.lease_duration", 10*time.Minute)
	v.SetDefault("backlog.max_lease_duration", 30*time.Minute)
	v.SetDefault("backlog.max_attempts", 5)
	v.SetDefault("backlog.min_guide_length", 1000)

	v.SetDefault("generation.provider", "gemini")
	v.SetDefault("generation.gemini_api_key", "")
	v.SetDefault("generation.openai_api_key", "")
	v.SetDefault("generation.openai_base_url", "")
	v.SetDefault("generation.model_name", "gemini-2.0-flash")
	v.SetDefault("generation.language", "en")
	v.SetDefault("generation.min_words", 1500)
	v.SetDefault("generation.min_draft_chars", 1000)
	v.SetDefault("generation.max_retries", 3)
	v.SetDefault("generation.retry_base_delay", 2*time.Second)

	v.SetDefault("worker.server_url", "")
	v.SetDefault("worker.secret", "")
	v.SetDefault("worker.poll_min_interval", 2*time.Second)
	v.SetDefault("worker.poll_max_interval", 2*time.Minute)
	v.SetDefault("worker.generation_rate", 0)
	v.SetDefault("worker.metrics_port", 0)
}
