// Package config loads and validates the bridge's TOML configuration file.
// The result is treated as a read-only record shared by reference with every
// component; nothing in the core mutates it after startup.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration record, grouped the way the fields
// are grouped on disk.
type Config struct {
	Serial     SerialConfig     `toml:"serial"`
	Controller ControllerConfig `toml:"controller"`
	Channels   ChannelConfig    `toml:"channels"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Safety     SafetyConfig     `toml:"safety"`
	CRSF       CRSFConfig       `toml:"crsf"`
	MQTT       MQTTConfig       `toml:"mqtt"`
}

// SerialConfig describes the transport to the ExpressLRS module.
type SerialConfig struct {
	Port                 string `toml:"port"`
	BaudRate             int    `toml:"baud_rate"`
	WriteTimeoutMs       int    `toml:"write_timeout_ms"`
	ReadChunkBytes       int    `toml:"read_chunk_bytes"`
	ReconnectIntervalMs  int    `toml:"reconnect_interval_ms"`
}

// ControllerConfig describes input shaping: deadzones and per-axis expo.
type ControllerConfig struct {
	DevicePath      string  `toml:"device_path"`
	DeadzoneStick   float64 `toml:"deadzone_stick"`
	DeadzoneTrigger float64 `toml:"deadzone_trigger"`
	ExpoRoll        float64 `toml:"expo_roll"`
	ExpoPitch       float64 `toml:"expo_pitch"`
	ExpoYaw         float64 `toml:"expo_yaw"`
	ExpoThrottle    float64 `toml:"expo_throttle"`
}

// ChannelConfig describes the throttle range and which channel indices
// (0-15) are mirrored about center before bit-packing.
type ChannelConfig struct {
	ThrottleMin     uint16 `toml:"throttle_min"`
	ThrottleMax     uint16 `toml:"throttle_max"`
	Center          uint16 `toml:"center"`
	ChannelReverse  []int  `toml:"channel_reverse"`
}

// TelemetryConfig controls the rotating JSONL log sink.
type TelemetryConfig struct {
	Enabled            bool   `toml:"enabled"`
	LogDir             string `toml:"log_dir"`
	MaxRecordsPerFile  int    `toml:"max_records_per_file"`
	MaxFilesToKeep     int    `toml:"max_files_to_keep"`
	LogIntervalMs      int    `toml:"log_interval_ms"`
	Format             string `toml:"format"`
}

// SafetyConfig governs the arming state machine and failsafe thresholds.
type SafetyConfig struct {
	ArmButtonHoldMs      int    `toml:"arm_button_hold_ms"`
	AutoDisarmTimeoutS   int    `toml:"auto_disarm_timeout_s"`
	FailsafeTimeoutMs    int    `toml:"failsafe_timeout_ms"`
	MinThrottleToArm     uint16 `toml:"min_throttle_to_arm"`
}

// CRSFConfig governs the wire-level send cadence. LinkStatsIntervalMs is
// an optional periodic link-stats re-request, for module firmware that
// only answers when polled; 0 disables it, which is the default since
// most ELRS builds push LinkStats unsolicited.
type CRSFConfig struct {
	PacketRateHz        int `toml:"packet_rate_hz"`
	LinkStatsIntervalMs int `toml:"link_stats_interval_ms"`
}

// MQTTConfig is the optional telemetry/lifecycle mirror. Disabled by default;
// nothing in the control path depends on it.
type MQTTConfig struct {
	Enabled  bool   `toml:"enabled"`
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
}

// Default returns a Config populated with the same defaults as the source
// this design was distilled from.
func Default() Config {
	return Config{
		Serial: SerialConfig{
			Port:                "/dev/ttyACM0",
			BaudRate:            420000,
			WriteTimeoutMs:      100,
			ReadChunkBytes:      64,
			ReconnectIntervalMs: 1000,
		},
		Controller: ControllerConfig{
			DeadzoneStick:   0.05,
			DeadzoneTrigger: 0.10,
			ExpoRoll:        0.3,
			ExpoPitch:       0.3,
			ExpoYaw:         0.2,
			ExpoThrottle:    0.0,
		},
		Channels: ChannelConfig{
			ThrottleMin: 1000,
			ThrottleMax: 2000,
			Center:      1500,
		},
		Telemetry: TelemetryConfig{
			Enabled:           true,
			LogDir:            "./logs",
			MaxRecordsPerFile: 10000,
			MaxFilesToKeep:    10,
			LogIntervalMs:     100,
			Format:            "jsonl",
		},
		Safety: SafetyConfig{
			ArmButtonHoldMs:    1000,
			AutoDisarmTimeoutS: 300,
			FailsafeTimeoutMs:  500,
			MinThrottleToArm:   1050,
		},
		CRSF: CRSFConfig{
			PacketRateHz:        250,
			LinkStatsIntervalMs: 0,
		},
	}
}

// Load reads and parses path, filling unset fields from Default, then
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field spec §7 treats as a fatal "configuration
// invalid" error at startup. It returns the first violation found.
func (c Config) Validate() error {
	if c.Serial.WriteTimeoutMs <= 0 || c.Serial.WriteTimeoutMs > 10000 {
		return fmt.Errorf("config: serial.write_timeout_ms must be between 1 and 10000")
	}
	if c.Serial.ReconnectIntervalMs <= 0 || c.Serial.ReconnectIntervalMs > 60000 {
		return fmt.Errorf("config: serial.reconnect_interval_ms must be between 1 and 60000")
	}
	if c.Telemetry.LogIntervalMs <= 0 || c.Telemetry.LogIntervalMs > 60000 {
		return fmt.Errorf("config: telemetry.log_interval_ms must be between 1 and 60000")
	}
	if c.Safety.FailsafeTimeoutMs <= 0 || c.Safety.FailsafeTimeoutMs > 60000 {
		return fmt.Errorf("config: safety.failsafe_timeout_ms must be between 1 and 60000")
	}
	if c.Safety.ArmButtonHoldMs <= 0 || c.Safety.ArmButtonHoldMs > 10000 {
		return fmt.Errorf("config: safety.arm_button_hold_ms must be between 1 and 10000")
	}
	if c.Safety.AutoDisarmTimeoutS <= 0 {
		return fmt.Errorf("config: safety.auto_disarm_timeout_s must be greater than 0")
	}
	if c.CRSF.LinkStatsIntervalMs < 0 || c.CRSF.LinkStatsIntervalMs > 60000 {
		return fmt.Errorf("config: crsf.link_stats_interval_ms must be between 0 (disabled) and 60000")
	}
	if c.Telemetry.Enabled && c.Telemetry.MaxRecordsPerFile <= 0 {
		return fmt.Errorf("config: telemetry.max_records_per_file must be greater than 0")
	}
	if c.Telemetry.Enabled && c.Telemetry.MaxFilesToKeep <= 0 {
		return fmt.Errorf("config: telemetry.max_files_to_keep must be greater than 0")
	}
	if c.Controller.DeadzoneStick < 0 || c.Controller.DeadzoneStick > 0.25 {
		return fmt.Errorf("config: controller.deadzone_stick must be between 0.0 and 0.25")
	}
	if c.Controller.DeadzoneTrigger < 0 || c.Controller.DeadzoneTrigger > 0.25 {
		return fmt.Errorf("config: controller.deadzone_trigger must be between 0.0 and 0.25")
	}
	for _, expo := range []struct {
		name  string
		value float64
	}{
		{"expo_roll", c.Controller.ExpoRoll},
		{"expo_pitch", c.Controller.ExpoPitch},
		{"expo_yaw", c.Controller.ExpoYaw},
		{"expo_throttle", c.Controller.ExpoThrottle},
	} {
		if expo.value < 0 || expo.value > 1 {
			return fmt.Errorf("config: controller.%s must be between 0.0 and 1.0", expo.name)
		}
	}
	if c.Channels.ThrottleMin < 988 || c.Channels.ThrottleMin > 1500 {
		return fmt.Errorf("config: channels.throttle_min must be between 988 and 1500")
	}
	if c.Channels.ThrottleMax < 1500 || c.Channels.ThrottleMax > 2012 {
		return fmt.Errorf("config: channels.throttle_max must be between 1500 and 2012")
	}
	if c.Channels.ThrottleMin >= c.Channels.ThrottleMax {
		return fmt.Errorf("config: channels.throttle_min must be less than throttle_max")
	}
	if c.Channels.Center < c.Channels.ThrottleMin || c.Channels.Center > c.Channels.ThrottleMax {
		return fmt.Errorf("config: channels.center must be within throttle_min..throttle_max")
	}
	for _, idx := range c.Channels.ChannelReverse {
		if idx < 0 || idx > 15 {
			return fmt.Errorf("config: channels.channel_reverse index %d is out of bounds (must be 0-15)", idx)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker is required when mqtt.enabled is true")
	}
	return nil
}

// ReverseSet returns ChannelReverse as a lookup set for the mapper/encoder.
func (c Config) ReverseSet() map[int]bool {
	set := make(map[int]bool, len(c.Channels.ChannelReverse))
	for _, idx := range c.Channels.ChannelReverse {
		set[idx] = true
	}
	return set
}
