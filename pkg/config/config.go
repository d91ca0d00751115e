// Package config holds the engine's closed taxonomies, the call lifecycle
// transition table, and the tunable settings loaded from YAML over
// built-in defaults.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	Server     *ServerConfig     `yaml:"server"`
	Sweeper    *SweeperConfig    `yaml:"sweeper"`
	Calendar   *CalendarConfig   `yaml:"calendar"`
	Transcript *TranscriptConfig `yaml:"transcript"`
	AI         *AIConfig         `yaml:"ai"`
	Push       *PushConfig       `yaml:"push"`
	Slack      *SlackConfig      `yaml:"slack"`
}

// ServerConfig holds HTTP ingress settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// PublicBaseURL is the externally reachable base used when handing
	// webhook URLs to a freshly provisioned tenant.
	PublicBaseURL string `yaml:"public_base_url"`
	// AdminKeyEnv names the environment variable carrying the admin API
	// key. The key itself never appears in YAML.
	AdminKeyEnv string `yaml:"admin_key_env"`
}

// SweeperConfig controls the periodic timeout sweep.
type SweeperConfig struct {
	// Enabled defaults to true when unset. A pointer so an explicit
	// "enabled: false" survives the defaults merge.
	Enabled  *bool         `yaml:"enabled,omitempty"`
	Interval time.Duration `yaml:"interval"`
	// GhostTimeout is how long past its end a waiting call may sit before
	// it is marked ghosted.
	GhostTimeout time.Duration `yaml:"ghost_timeout"`
	// PullLookback bounds the per-closer listing window of the pull-based
	// transcript catch-up.
	PullLookback time.Duration `yaml:"pull_lookback"`
}

// CalendarConfig controls calendar ingest.
type CalendarConfig struct {
	// RecencyWindow is how long a notification fingerprint suppresses
	// duplicates.
	RecencyWindow time.Duration `yaml:"recency_window"`
	// FetchWindow is how far back changed events are listed after a push
	// notification.
	FetchWindow time.Duration `yaml:"fetch_window"`
}

// TranscriptConfig controls transcript ingest and evaluation.
type TranscriptConfig struct {
	// MatchWindow is the scheduled-start tolerance when matching a
	// transcript to a call.
	MatchWindow time.Duration `yaml:"match_window"`
	// MinLength and MinSpeakers decide Show versus Ghosted. A transcript
	// at exactly MinLength with MinSpeakers speakers is a Show.
	MinLength   int `yaml:"min_length"`
	MinSpeakers int `yaml:"min_speakers"`
	// ProcessTimeout bounds the detached continuation that runs after the
	// webhook has already been acknowledged.
	ProcessTimeout time.Duration `yaml:"process_timeout"`
}

// AIConfig controls the analysis pipeline.
type AIConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
	// APIKeyEnv names the environment variable carrying the provider key.
	APIKeyEnv string `yaml:"api_key_env"`
	// Per-million-token rates used for the cost ledger.
	InputRatePerMTok  float64 `yaml:"input_rate_per_mtok"`
	OutputRatePerMTok float64 `yaml:"output_rate_per_mtok"`
	// Score clamp range and the neutral default for missing numerics.
	ScoreMin     float64 `yaml:"score_min"`
	ScoreMax     float64 `yaml:"score_max"`
	NeutralScore float64 `yaml:"neutral_score"`
}

// PushConfig controls calendar push-channel subscriptions.
type PushConfig struct {
	// RenewLookahead renews any subscription expiring within this window.
	RenewLookahead time.Duration `yaml:"renew_lookahead"`
	// RenewInterval is how often the renewal job runs.
	RenewInterval time.Duration `yaml:"renew_interval"`
	// CallbackURL receives provider push notifications.
	CallbackURL string `yaml:"callback_url"`
}

// SlackConfig holds alert sink settings. The token comes from the
// environment, never from YAML.
type SlackConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
	// DigestInterval is how often batched medium-severity alerts flush.
	DigestInterval time.Duration `yaml:"digest_interval"`
}

// DefaultConfig returns the built-in defaults. YAML overrides merge on
// top.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			AdminKeyEnv:     "ADMIN_API_KEY",
		},
		Sweeper: &SweeperConfig{
			Interval:     5 * time.Minute,
			GhostTimeout: 120 * time.Minute,
			PullLookback: 6 * time.Hour,
		},
		Calendar: &CalendarConfig{
			RecencyWindow: 60 * time.Second,
			FetchWindow:   5 * time.Minute,
		},
		Transcript: &TranscriptConfig{
			MatchWindow:    30 * time.Minute,
			MinLength:      50,
			MinSpeakers:    2,
			ProcessTimeout: 2 * time.Minute,
		},
		AI: &AIConfig{
			Model:             "claude-sonnet-4-20250514",
			MaxTokens:         4096,
			APIKeyEnv:         "ANTHROPIC_API_KEY",
			InputRatePerMTok:  3.0,
			OutputRatePerMTok: 15.0,
			ScoreMin:          1,
			ScoreMax:          10,
			NeutralScore:      5,
		},
		Push: &PushConfig{
			RenewLookahead: 24 * time.Hour,
			RenewInterval:  1 * time.Hour,
		},
		Slack: &SlackConfig{
			TokenEnv:       "SLACK_BOT_TOKEN",
			DigestInterval: 24 * time.Hour,
		},
	}
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Read the YAML file named by path, if present
//  3. Expand {{.VAR}} environment references
//  4. Merge YAML values over the defaults
//  5. Validate the result
func Initialize(_ context.Context, path string) (*Config, error) {
	log := slog.With("config_path", path)

	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"sweeper_interval", cfg.Sweeper.Interval,
		"ghost_timeout", cfg.Sweeper.GhostTimeout,
		"ai_model", cfg.AI.Model)

	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Running on defaults plus environment is a supported setup.
			slog.Info("No configuration file found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	// Non-zero YAML values override the defaults section by section.
	if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d", ErrInvalidValue, c.Server.Port)
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("%w: sweeper.interval must be positive", ErrInvalidValue)
	}
	if c.Sweeper.GhostTimeout <= 0 {
		return fmt.Errorf("%w: sweeper.ghost_timeout must be positive", ErrInvalidValue)
	}
	if c.Calendar.RecencyWindow <= 0 {
		return fmt.Errorf("%w: calendar.recency_window must be positive", ErrInvalidValue)
	}
	if c.Transcript.MinLength < 0 || c.Transcript.MinSpeakers < 0 {
		return fmt.Errorf("%w: transcript thresholds must be non-negative", ErrInvalidValue)
	}
	if c.AI.Model == "" {
		return fmt.Errorf("%w: ai.model", ErrMissingRequiredField)
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("%w: ai.max_tokens must be positive", ErrInvalidValue)
	}
	if c.AI.InputRatePerMTok < 0 || c.AI.OutputRatePerMTok < 0 {
		return fmt.Errorf("%w: ai rates must be non-negative", ErrInvalidValue)
	}
	if c.AI.ScoreMin >= c.AI.ScoreMax {
		return fmt.Errorf("%w: ai score range", ErrInvalidValue)
	}
	return nil
}

// IsEnabled reports whether the sweep loop should run. Unset means
// enabled. Nil-safe so services built without a config run with
// defaults.
func (s *SweeperConfig) IsEnabled() bool {
	return s == nil || s.Enabled == nil || *s.Enabled
}

// AdminKey reads the admin API key from the configured environment
// variable.
func (c *Config) AdminKey() string {
	return os.Getenv(c.Server.AdminKeyEnv)
}

// SlackEnabled reports whether the alert sink should be constructed.
// Explicit YAML wins; otherwise enabled means a token is present.
func (c *Config) SlackEnabled() bool {
	if c.Slack.Enabled != nil {
		return *c.Slack.Enabled
	}
	return os.Getenv(c.Slack.TokenEnv) != ""
}
