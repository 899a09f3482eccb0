// Package config holds the sentinel gateway configuration: a JSON5 file with
// env var overrides. Secrets (Discord token, classifier API key) are read
// from env only by default and never written back to disk.
package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON, so channel
// allowlists can mix quoted and bare snowflake IDs.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the sentinel gateway.
type Config struct {
	Channels   ChannelsConfig   `json:"channels"`
	Moderation ModerationConfig `json:"moderation"`
	Classifier ClassifierConfig `json:"classifier"`
	Store      StoreConfig      `json:"store"`
	Gateway    GatewayConfig    `json:"gateway"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
	mu         sync.RWMutex
}

// ChannelsConfig contains per-platform channel settings.
type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

// DiscordConfig configures the Discord connection and which channels are watched.
type DiscordConfig struct {
	Token         string              `json:"-" env:"SENTINEL_DISCORD_TOKEN"`
	AllowChannels FlexibleStringSlice `json:"allow_channels" env:"SENTINEL_DISCORD_ALLOW_CHANNELS"`
	LogChannel    string              `json:"log_channel" env:"SENTINEL_DISCORD_LOG_CHANNEL"`
	PingResponse  string              `json:"ping_response,omitempty"`
}

// RespondMode controls what happens when a span is flagged.
type RespondMode string

const (
	RespondReply   RespondMode = "reply"    // generate feedback and reply to the flagged span
	RespondReact   RespondMode = "react"    // add the configured emoji reaction
	RespondLogOnly RespondMode = "log_only" // log channel announcement only
)

// ModerationConfig holds the aggregation and scheduling tunables.
type ModerationConfig struct {
	BufferCapacity  int         `json:"buffer_capacity" env:"SENTINEL_BUFFER_CAPACITY"`
	CheckThreshold  int         `json:"check_threshold" env:"SENTINEL_CHECK_THRESHOLD"`
	QuietPeriodSecs int         `json:"quiet_period_secs" env:"SENTINEL_QUIET_PERIOD_SECS"`
	WindowGroups    int         `json:"window_groups" env:"SENTINEL_WINDOW_GROUPS"`
	MinNewGroups    int         `json:"min_new_groups" env:"SENTINEL_MIN_NEW_GROUPS"`
	Confidence      string      `json:"confidence" env:"SENTINEL_CONFIDENCE"` // low|medium|high
	RespondMode     RespondMode `json:"respond_mode" env:"SENTINEL_RESPOND_MODE"`
	ReactionEmoji   string      `json:"reaction_emoji"`
	WaiverRole      string      `json:"waiver_role"`
	Guidelines      string      `json:"guidelines"`
}

// QuietPeriod returns the debounce window as a duration.
func (m ModerationConfig) QuietPeriod() int { return m.QuietPeriodSecs }

// ClassifierConfig configures the external LLM classifier.
// The endpoint is OpenAI-compatible (the upstream provider is Cerebras-class:
// rate-limited and stateless per call).
type ClassifierConfig struct {
	APIKey        string  `json:"-" env:"SENTINEL_CLASSIFIER_API_KEY"`
	BaseURL       string  `json:"base_url" env:"SENTINEL_CLASSIFIER_BASE_URL"`
	Model         string  `json:"model" env:"SENTINEL_CLASSIFIER_MODEL"`
	FeedbackModel string  `json:"feedback_model" env:"SENTINEL_CLASSIFIER_FEEDBACK_MODEL"`
	Temperature   float64 `json:"temperature"`
	RPM           int     `json:"rpm" env:"SENTINEL_CLASSIFIER_RPM"`
}

// StoreConfig configures flag persistence.
type StoreConfig struct {
	Path string `json:"path" env:"SENTINEL_STORE_PATH"`
}

// GatewayConfig configures the optional WebSocket event feed.
// Port 0 disables the server.
type GatewayConfig struct {
	Host string `json:"host" env:"SENTINEL_GATEWAY_HOST"`
	Port int    `json:"port" env:"SENTINEL_GATEWAY_PORT"`
}

// TelemetryConfig configures optional OTLP trace export.
// An empty endpoint disables tracing.
type TelemetryConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint" env:"SENTINEL_OTLP_ENDPOINT"`
}

// ChannelAllowed reports whether a Discord channel ID is on the allowlist.
// An empty allowlist watches nothing (the original bot was allowlist-only).
func (c *Config) ChannelAllowed(channelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.Channels.Discord.AllowChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// Moderation returns a copy of the moderation tunables, safe to use while a
// watcher reloads the config concurrently.
func (c *Config) ModerationSettings() ModerationConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Moderation
}

// DiscordSettings returns a copy of the Discord channel settings.
func (c *Config) DiscordSettings() DiscordConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Channels.Discord
}

// Replace swaps in newly loaded values under the config lock.
// Used by the fsnotify watcher; secrets from env are preserved by Load.
func (c *Config) Replace(fresh *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Channels = fresh.Channels
	c.Moderation = fresh.Moderation
	c.Classifier = fresh.Classifier
	c.Store = fresh.Store
	c.Gateway = fresh.Gateway
	c.Telemetry = fresh.Telemetry
}
