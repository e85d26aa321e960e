// Package mapper implements the channel mapper (C3): deadzone, expo,
// reverse, the button pipeline, and the arming state machine that together
// turn a controller snapshot into a 16-channel set.
package mapper

import (
	"math"
	"time"

	"github.com/TArch64/fpv-bridge/internal/channels"
	"github.com/TArch64/fpv-bridge/internal/config"
	"github.com/TArch64/fpv-bridge/internal/input"
)

// Calibration holds the per-axis center offset applied before deadzone/expo.
// A rising edge on the calibrate button overwrites the roll, pitch and yaw
// offsets with the current stick sample.
type Calibration struct {
	CenterOffset [input.AxisCount]float64
}

// Mapper owns the arm state machine, the mode-cycle counter, and the
// current calibration. It is called from a single activity (spec §5's
// Input/Supervisor path) so its fields need no internal locking.
type Mapper struct {
	cfg  config.ControllerConfig
	safe config.SafetyConfig
	rev  map[int]bool

	arm            ArmState
	cal            Calibration
	modeCycle      int
	prevCalPressed bool
	prevModePressed bool
}

// New builds a Mapper from configuration. rev is the set of channel
// indices (0-15) to mirror about 1500us.
func New(controller config.ControllerConfig, safety config.SafetyConfig, rev map[int]bool) *Mapper {
	return &Mapper{cfg: controller, safe: safety, rev: rev}
}

// expoFor returns the configured expo coefficient for one of the four
// tracked axes.
func (m *Mapper) expoFor(axis int) float64 {
	switch axis {
	case input.AxisRoll:
		return m.cfg.ExpoRoll
	case input.AxisPitch:
		return m.cfg.ExpoPitch
	case input.AxisYaw:
		return m.cfg.ExpoYaw
	case input.AxisThrottle:
		return m.cfg.ExpoThrottle
	default:
		return 0
	}
}

// applyDeadzone implements the scaled deadzone from spec §4.3: inside
// |x| < d output is 0; outside, the remaining range is rescaled to fill
// [0,1] so the transition at the boundary is continuous.
func applyDeadzone(x, d float64) float64 {
	ax := math.Abs(x)
	if ax < d {
		return 0
	}
	if d >= 1 {
		return 0
	}
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	return sign * (ax - d) / (1 - d)
}

// applyTriggerDeadzone implements the one-sided trigger deadzone: a
// trigger at rest reads 0, so unlike applyDeadzone there's no sign to
// preserve -- below d the output is 0, above it the remaining [d,1]
// range is rescaled to fill [0,1].
func applyTriggerDeadzone(x, d float64) float64 {
	if x <= d || d >= 1 {
		return 0
	}
	return (x - d) / (1 - d)
}

// applyExpo implements spec §4.3's expo curve: y = sign(x) * |x|^(1+k).
func applyExpo(x, k float64) float64 {
	if x == 0 {
		return 0
	}
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	return sign * math.Pow(math.Abs(x), 1+k)
}

func clampUs(us float64) uint16 {
	if us < channels.MinUs {
		return channels.MinUs
	}
	if us > channels.MaxUs {
		return channels.MaxUs
	}
	return uint16(us)
}

func clampUnit01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func clampUnit(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}

// mirror reflects a microsecond value about the 1500us center.
func mirror(us uint16) uint16 {
	return clampUs(float64(2*channels.CenterUs - int(us)))
}

// mapAxis runs one stick axis through the full §4.3 axis pipeline:
// center, deadzone, expo, linear map to [1000,2000] (throttle from [0,1],
// the other sticks from [-1,1]), optional reverse.
func (m *Mapper) mapAxis(axis int, raw float64, chIdx int) uint16 {
	centered := clampUnit(raw - m.cal.CenterOffset[axis])

	deadzone := m.cfg.DeadzoneStick
	deadzoned := clampUnit(applyDeadzone(centered, deadzone))

	expoed := clampUnit(applyExpo(deadzoned, m.expoFor(axis)))

	us := channels.CenterUs + expoed*500 // [-1,1] -> [1000,2000]
	if axis == input.AxisThrottle {
		us = channels.DisarmedUs + clampUnit01(expoed)*1000 // [0,1] -> [1000,2000]
	}
	val := clampUs(us)

	if m.rev[chIdx] {
		val = mirror(val)
	}
	return val
}

// mapTrigger maps one analog trigger (raw normalized [0,1]) through the
// trigger deadzone and linearly onto the full channel range, for the
// Beeper/Turtle auxiliary channels.
func (m *Mapper) mapTrigger(raw float64, chIdx int) uint16 {
	deadzoned := applyTriggerDeadzone(clampUnit01(raw), m.cfg.DeadzoneTrigger)
	us := channels.MinUs + deadzoned*(channels.MaxUs-channels.MinUs)
	val := clampUs(us)
	if m.rev[chIdx] {
		val = mirror(val)
	}
	return val
}

// mapButtonSwitch is the default, non-special button mapping: pressed ->
// 2000, released -> 1000, then optional reverse.
func (m *Mapper) mapButtonSwitch(pressed bool, chIdx int) uint16 {
	val := uint16(channels.DisarmedUs)
	if pressed {
		val = channels.ArmedUs
	}
	if m.rev[chIdx] {
		val = mirror(val)
	}
	return val
}

var modeCycleValues = [3]uint16{1000, 1500, 2000}

// Step advances the mapper by one tick: it consumes the current
// controller snapshot and now, updates the arm state machine, mode-cycle
// counter, and calibration, and returns the resulting channel set.
func (m *Mapper) Step(snap input.Snapshot, now time.Time) channels.Set {
	armPressed := snap.Buttons[input.ButtonArm]
	emergencyPressed := snap.Buttons[input.ButtonEmergency]
	modePressed := snap.Buttons[input.ButtonModeCycle]
	calPressed := snap.Buttons[input.ButtonCalibrate]

	// Calibrate: rising edge replaces the center offset with the current
	// stick sample (throttle excluded -- it has no rest center).
	if calPressed && !m.prevCalPressed {
		m.cal.CenterOffset[input.AxisRoll] = snap.Axes[input.AxisRoll]
		m.cal.CenterOffset[input.AxisPitch] = snap.Axes[input.AxisPitch]
		m.cal.CenterOffset[input.AxisYaw] = snap.Axes[input.AxisYaw]
	}
	m.prevCalPressed = calPressed

	// Mode-cycle: rising edge advances the counter.
	if modePressed && !m.prevModePressed {
		m.modeCycle = (m.modeCycle + 1) % len(modeCycleValues)
	}
	m.prevModePressed = modePressed

	throttleUs := m.mapAxis(input.AxisThrottle, snap.Axes[input.AxisThrottle], channels.Throttle)

	armThrottleMax := m.safe.MinThrottleToArm
	m.arm = m.arm.step(armPressed, emergencyPressed, throttleUs, m.safe.ArmButtonHoldMs, armThrottleMax, now)

	// Auto-disarm on inactivity, per spec §4.3's "any -> inactivity -> Disarmed".
	if m.arm.Phase != PhaseDisarmed {
		inactiveFor := now.Sub(snap.At)
		if inactiveFor >= time.Duration(m.safe.AutoDisarmTimeoutS)*time.Second {
			m.arm = ArmState{Phase: PhaseDisarmed}
		}
	}

	var set channels.Set
	set[channels.Roll] = m.mapAxis(input.AxisRoll, snap.Axes[input.AxisRoll], channels.Roll)
	set[channels.Pitch] = m.mapAxis(input.AxisPitch, snap.Axes[input.AxisPitch], channels.Pitch)
	set[channels.Throttle] = throttleUs
	set[channels.Yaw] = m.mapAxis(input.AxisYaw, snap.Axes[input.AxisYaw], channels.Yaw)
	set[channels.Arm] = m.arm.ArmChannelUs()
	set[channels.FlightMode] = modeCycleValues[m.modeCycle]
	set[channels.Beeper] = m.mapTrigger(snap.Axes[input.AxisTriggerL], channels.Beeper)
	set[channels.Turtle] = m.mapTrigger(snap.Axes[input.AxisTriggerR], channels.Turtle)
	for ch := channels.Turtle + 1; ch < channels.Count; ch++ {
		set[ch] = channels.CenterUs
	}
	return set
}

// Phase exposes the current arm phase for the supervisor/lifecycle events.
func (m *Mapper) Phase() ArmPhase {
	return m.arm.Phase
}
