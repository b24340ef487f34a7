package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anpr-watch/internal/domain/anpr"
	"anpr-watch/internal/tracker"
)

func TestLoadDefaultsPerMode(t *testing.T) {
	t.Run("alert mode uses five repeats", func(t *testing.T) {
		cfg, err := Load([]string{"--replay", "frames.jsonl"})
		require.NoError(t, err)
		assert.Equal(t, anpr.ModeAlert, cfg.Mode)
		assert.Equal(t, DefaultAlertRepeats, cfg.Tracker.RequiredRepeats)
		assert.Equal(t, tracker.DefaultRefreshPeriod, cfg.Tracker.RefreshPeriod)
		assert.Equal(t, tracker.DefaultResidual, cfg.Tracker.Residual)
		assert.Equal(t, []int{6, 7}, cfg.Plate.Lengths)
		assert.Equal(t, "../registered.txt", cfg.Registry.Path)
		assert.Equal(t, ":8080", cfg.HTTP.Addr)
	})

	t.Run("register mode uses seven repeats", func(t *testing.T) {
		cfg, err := Load([]string{"--mode", "register", "--replay", "frames.jsonl"})
		require.NoError(t, err)
		assert.Equal(t, anpr.ModeRegister, cfg.Mode)
		assert.Equal(t, DefaultRegisterRepeats, cfg.Tracker.RequiredRepeats)
	})
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anpr.yaml")
	yaml := `
mode: register
tracker:
  required_repeats: 3
  refresh_period: 500
  residual: 20
  policy: once
registry:
  path: /var/lib/anpr/registered.txt
source:
  kind: http
  interval: 33ms
mqtt:
  broker: tcp://localhost:1883
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("ANPR_DB_DSN", "postgres://anpr@localhost/anpr")
	t.Setenv("ANPR_TRACKER_RESIDUAL", "50")

	cfg, err := Load([]string{"--config", path, "--workers", "2"})
	require.NoError(t, err)

	assert.Equal(t, anpr.ModeRegister, cfg.Mode)
	assert.Equal(t, 3, cfg.Tracker.RequiredRepeats)
	assert.Equal(t, 500, cfg.Tracker.RefreshPeriod)
	assert.Equal(t, 50, cfg.Tracker.Residual, "environment overrides file")
	assert.Equal(t, tracker.PolicyOnce, cfg.Tracker.Policy)
	assert.Equal(t, "/var/lib/anpr/registered.txt", cfg.Registry.Path)
	assert.Equal(t, "http", cfg.Source.Kind)
	assert.Equal(t, 33*time.Millisecond, cfg.Source.Interval)
	assert.Equal(t, "postgres://anpr@localhost/anpr", cfg.DB.DSN)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, 2, cfg.Pipeline.Workers)

	tc := cfg.TrackerConfig()
	assert.Equal(t, 3, tc.RequiredRepeats)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown mode", args: []string{"--mode", "watch", "--replay", "x.jsonl"}},
		{name: "replay without path", args: []string{}},
		{name: "unknown source", args: []string{"--source", "camera"}},
		{name: "negative workers", args: []string{"--replay", "x.jsonl", "--workers", "-1"}},
		{name: "unknown flag", args: []string{"--frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestNormalizerFromConfig(t *testing.T) {
	cfg := &Config{Plate: PlateConfig{Lengths: []int{5}, Substitutions: "Q:0"}}
	n := cfg.Normalizer()

	got, ok := n.Normalize("AQ123")
	require.True(t, ok)
	assert.Equal(t, "A0123", got)

	_, ok = n.Normalize("ABC123")
	assert.False(t, ok)
}
