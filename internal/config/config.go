package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Backlog    BacklogConfig    `mapstructure:"backlog" validate:"required"`
	Generation GenerationConfig `mapstructure:"generation"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains authentication settings for the worker and admin
// surfaces. The secret hashes are bcrypt hashes produced by
// cmd/hash-generator; the plaintext secrets are only ever held by workers
// and operators.
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetime    time.Duration `mapstructure:"token_lifetime" validate:"required"`
	WorkerSecretHash string        `mapstructure:"worker_secret_hash"`
	AdminSecretHash  string        `mapstructure:"admin_secret_hash"`
}

// BacklogConfig tunes the claim protocol.
type BacklogConfig struct {
	// LeaseDuration is the default exclusive claim duration. It must
	// exceed the generation backend's worst-case latency plus margin for
	// heartbeat renewal.
	LeaseDuration time.Duration `mapstructure:"lease_duration" validate:"required"`

	// MaxLeaseDuration caps worker-requested lease overrides.
	MaxLeaseDuration time.Duration `mapstructure:"max_lease_duration" validate:"required"`

	// MaxAttempts is the attempt ceiling after which a job becomes failed.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// MinGuideLength rejects implausibly short drafts at submit time.
	MinGuideLength int `mapstructure:"min_guide_length" validate:"gte=0"`
}

// GenerationConfig selects and tunes the generation backend.
type GenerationConfig struct {
	// Provider is the backend implementation: "gemini" or "openai".
	Provider string `mapstructure:"provider" validate:"omitempty,oneof=gemini openai"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	OpenAIAPIKey string `mapstructure:"openai_api_key"`

	// OpenAIBaseURL overrides the OpenAI endpoint, enabling
	// OpenAI-compatible local backends.
	OpenAIBaseURL string `mapstructure:"openai_base_url" validate:"omitempty,url"`

	ModelName string `mapstructure:"model_name"`

	// Language is the target language of generated guides.
	Language string `mapstructure:"language"`

	// MinWords is the requested minimum guide length passed to the prompt.
	MinWords int `mapstructure:"min_words" validate:"gte=0"`

	// MinDraftChars discards implausibly short backend outputs as
	// permanently invalid instead of submitting them.
	MinDraftChars int `mapstructure:"min_draft_chars" validate:"gte=0"`

	// MaxRetries bounds transient-error retries inside the generator.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`

	// RetryBaseDelay is the base of the exponential backoff between
	// generator retries.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

// WorkerConfig tunes the worker loop.
type WorkerConfig struct {
	// ServerURL is the base URL of the dispatcher API.
	ServerURL string `mapstructure:"server_url" validate:"omitempty,url"`

	// Secret is the shared registration secret exchanged for a token.
	Secret string `mapstructure:"secret"`

	// PollMinInterval and PollMaxInterval bound the exponential backoff
	// between claim attempts when the backlog is empty.
	PollMinInterval time.Duration `mapstructure:"poll_min_interval"`
	PollMaxInterval time.Duration `mapstructure:"poll_max_interval"`

	// GenerationRate limits generation calls per second; zero disables
	// the limiter.
	GenerationRate float64 `mapstructure:"generation_rate" validate:"gte=0"`

	// MetricsPort exposes the worker's Prometheus metrics when non-zero.
	MetricsPort int `mapstructure:"metrics_port" validate:"gte=0,lt=65536"`
}
