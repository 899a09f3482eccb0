package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Moderation.BufferCapacity)
	assert.Equal(t, 10, cfg.Moderation.CheckThreshold)
	assert.Equal(t, 60, cfg.Moderation.QuietPeriodSecs)
	assert.Equal(t, 25, cfg.Moderation.WindowGroups)
	assert.Equal(t, 3, cfg.Moderation.MinNewGroups)
	assert.Equal(t, RespondLogOnly, cfg.Moderation.RespondMode)
}

func TestLoadJSON5WithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// channels under watch
		channels: {
			discord: {
				allow_channels: [123456789, "987654321"],
			},
		},
		moderation: {
			check_threshold: 5,
			respond_mode: "react",
		},
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"123456789", "987654321"}, []string(cfg.Channels.Discord.AllowChannels))
	assert.Equal(t, 5, cfg.Moderation.CheckThreshold)
	assert.Equal(t, RespondReact, cfg.Moderation.RespondMode)
	// untouched values keep defaults
	assert.Equal(t, 50, cfg.Moderation.BufferCapacity)
}

func TestEnvOverridesFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{moderation: {check_threshold: 5}}`), 0o644))

	t.Setenv("SENTINEL_CHECK_THRESHOLD", "20")
	t.Setenv("SENTINEL_DISCORD_TOKEN", "tok-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Moderation.CheckThreshold)
	assert.Equal(t, "tok-from-env", cfg.Channels.Discord.Token)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero capacity", `{moderation: {buffer_capacity: 0}}`},
		{"bad confidence", `{moderation: {confidence: "certain"}}`},
		{"bad respond mode", `{moderation: {respond_mode: "dm"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestChannelAllowed(t *testing.T) {
	cfg := Default()
	cfg.Channels.Discord.AllowChannels = FlexibleStringSlice{"111", "222"}

	assert.True(t, cfg.ChannelAllowed("111"))
	assert.False(t, cfg.ChannelAllowed("333"))

	// empty allowlist watches nothing
	cfg.Channels.Discord.AllowChannels = nil
	assert.False(t, cfg.ChannelAllowed("111"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x.db"), ExpandHome("~/x.db"))
	assert.Equal(t, "/abs/x.db", ExpandHome("/abs/x.db"))
}
