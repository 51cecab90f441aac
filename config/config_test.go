package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GroundLink/internal/models"
	"GroundLink/internal/store"
)

func TestLoadSample(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, uint8(255), cfg.Mavlink.SystemID)
	assert.Equal(t, 2*time.Second, cfg.Mavlink.CommandResendInterval.Std())
	assert.Equal(t, 5*time.Millisecond, cfg.Mavlink.PollInterval.Std())
	require.Len(t, cfg.Links, 2)
	assert.Equal(t, "serial:/dev/ttyUSB0:57600", cfg.Links[1].URI)
	assert.False(t, cfg.MQTT.Enabled)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("links:\n  - id: l1\n    uri: tcpout:10.0.0.2:5760\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Log.StatsInterval)
	assert.Equal(t, uint8(190), cfg.Mavlink.ComponentID)
	require.NotNil(t, cfg.Mavlink.AutoAddVehicles)
	assert.True(t, *cfg.Mavlink.AutoAddVehicles)
	assert.Equal(t, "v2", cfg.Links[0].Version)
	assert.Equal(t, "l1", cfg.Links[0].Name)

	h := cfg.HandlerConfig()
	assert.True(t, h.AutoAddVehicles)
	assert.Equal(t, uint8(5), h.MaxCommandSendAttempts)
	assert.Equal(t, 2*time.Second, h.MissionResendInterval)
	assert.Equal(t, 100*time.Millisecond, h.TickInterval)

	l := cfg.ConnectionConfig()
	assert.Equal(t, time.Second, l.ResetStatsInterval)
	assert.Equal(t, 2*time.Second, l.OnlineInterval)

	s := cfg.SupervisorSettings()
	assert.Equal(t, 100*time.Millisecond, s.TickInterval)
	assert.Equal(t, 30, s.StatsInterval)
}

func TestAutoAddCanBeDisabled(t *testing.T) {
	cfg, err := Parse([]byte("mavlink:\n  auto_add_vehicles: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.HandlerConfig().AutoAddVehicles)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"bad duration", "mavlink:\n  command_resend_interval: soon\n"},
		{"missing link id", "links:\n  - uri: udpout:127.0.0.1:14550\n"},
		{"duplicate link", "links:\n  - id: a\n    uri: udpout:127.0.0.1:1\n  - id: a\n    uri: udpout:127.0.0.1:2\n"},
		{"bad uri", "links:\n  - id: a\n    uri: udpin:0.0.0.0:14550\n"},
		{"bad version", "links:\n  - id: a\n    uri: udpout:127.0.0.1:1\n    version: v3\n"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "command_resend_interval: 2s")

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestSeedLinks(t *testing.T) {
	ctx := context.Background()
	tables := store.NewTables(store.NewMemoryBackend())
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	added, err := cfg.SeedLinks(ctx, tables)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	radio, err := tables.LinkDescriptions.SelectOne(ctx, "telemetry-radio")
	require.NoError(t, err)
	assert.Equal(t, models.LinkProtocol{Kind: models.LinkSerial, Device: "/dev/ttyUSB0", Baud: 57600, Version: models.MavlinkV1}, radio.Protocol)
	assert.False(t, radio.Autoconnect)

	added, err = cfg.SeedLinks(ctx, tables)
	require.NoError(t, err)
	assert.Zero(t, added)
}
