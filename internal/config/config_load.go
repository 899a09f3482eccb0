package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults. The numeric moderation
// defaults match the values the bot shipped with: 50-message ring, 10 dirty
// messages to force a check, 60s quiet period, 25-group window.
func Default() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				PingResponse: "Hello! I'm a moderation bot helping find unconstructive criticism.",
			},
		},
		Moderation: ModerationConfig{
			BufferCapacity:  50,
			CheckThreshold:  10,
			QuietPeriodSecs: 60,
			WindowGroups:    25,
			MinNewGroups:    3,
			Confidence:      "medium",
			RespondMode:     RespondLogOnly,
			ReactionEmoji:   "👁️",
			WaiverRole:      "Waiver",
		},
		Classifier: ClassifierConfig{
			BaseURL:       "https://api.cerebras.ai/v1",
			Model:         "llama3.3-70b",
			FeedbackModel: "llama3.1-8b",
			Temperature:   0.2,
			RPM:           30,
		},
		Store: StoreConfig{
			Path: "~/.sentinel/flagged.db",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 0,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults + env are enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if envErr := env.Parse(cfg); envErr != nil {
				return nil, fmt.Errorf("parse env overrides: %w", envErr)
			}
			return cfg, cfg.validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	m := &c.Moderation
	if m.BufferCapacity <= 0 {
		return fmt.Errorf("moderation.buffer_capacity must be positive, got %d", m.BufferCapacity)
	}
	if m.WindowGroups <= 0 {
		return fmt.Errorf("moderation.window_groups must be positive, got %d", m.WindowGroups)
	}
	if m.MinNewGroups < 0 {
		return fmt.Errorf("moderation.min_new_groups must not be negative, got %d", m.MinNewGroups)
	}
	switch m.Confidence {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("moderation.confidence must be low, medium or high, got %q", m.Confidence)
	}
	switch m.RespondMode {
	case RespondReply, RespondReact, RespondLogOnly:
	default:
		return fmt.Errorf("moderation.respond_mode must be reply, react or log_only, got %q", m.RespondMode)
	}
	return nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
