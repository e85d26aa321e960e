package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.toml")
	contents := `
[serial]
port = "/dev/ttyUSB0"
write_timeout_ms = 50

[safety]
min_throttle_to_arm = 1100
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 50, cfg.Serial.WriteTimeoutMs)
	assert.Equal(t, uint16(1100), cfg.Safety.MinThrottleToArm)
	// Fields untouched by the file keep their defaults.
	assert.Equal(t, 420000, cfg.Serial.BaudRate)
	assert.Equal(t, 250, cfg.CRSF.PacketRateHz)
}

func TestLoadRejectsMalformedToml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRangeDeadzone(t *testing.T) {
	cfg := Default()
	cfg.Controller.DeadzoneStick = 0.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadExpo(t *testing.T) {
	cfg := Default()
	cfg.Controller.ExpoYaw = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsThrottleMinAboveMax(t *testing.T) {
	cfg := Default()
	cfg.Channels.ThrottleMin = 1900
	cfg.Channels.ThrottleMax = 1800
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsCenterOutsideThrottleRange(t *testing.T) {
	cfg := Default()
	cfg.Channels.Center = 900
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfBoundsReverseIndex(t *testing.T) {
	cfg := Default()
	cfg.Channels.ChannelReverse = []int{3, 16}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMqttEnabledWithoutBroker(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Enabled = true
	assert.Error(t, cfg.Validate())
}

func TestReverseSet(t *testing.T) {
	cfg := Default()
	cfg.Channels.ChannelReverse = []int{0, 3}
	set := cfg.ReverseSet()
	assert.True(t, set[0])
	assert.True(t, set[3])
	assert.False(t, set[1])
}
