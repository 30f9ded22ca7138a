// Package config loads and validates application configuration from
// environment variables (GRIMOIRE_ prefix) and an optional config.yaml.
// Operational tuning parameters of the analysis pipeline (lease duration,
// attempt ceiling, backoff bounds, rate limits, model names) are
// configuration, never hard-coded constants.
package config
