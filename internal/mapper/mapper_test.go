package mapper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TArch64/fpv-bridge/internal/channels"
	"github.com/TArch64/fpv-bridge/internal/config"
	"github.com/TArch64/fpv-bridge/internal/input"
)

func testMapper() *Mapper {
	cfg := config.Default()
	return New(cfg.Controller, cfg.Safety, cfg.ReverseSet())
}

func TestDeadzoneBoundaryYieldsZero(t *testing.T) {
	d := config.Default().Controller.DeadzoneStick
	assert.Equal(t, 0.0, applyDeadzone(d, d))
	assert.NotEqual(t, 0.0, applyDeadzone(d+0.01, d))
}

func TestExpoIsIdentityAtZeroCoefficient(t *testing.T) {
	assert.InDelta(t, 0.6, applyExpo(0.6, 0), 1e-9)
}

func TestExpoCompressesMidRangeWithPositiveCoefficient(t *testing.T) {
	assert.Less(t, applyExpo(0.5, 0.5), 0.5)
	assert.InDelta(t, 1.0, applyExpo(1.0, 0.5), 1e-9)
	assert.InDelta(t, -1.0, applyExpo(-1.0, 0.5), 1e-9)
}

func TestTriggerDeadzoneBoundaryYieldsZero(t *testing.T) {
	d := config.Default().Controller.DeadzoneTrigger
	assert.Equal(t, 0.0, applyTriggerDeadzone(d, d))
	assert.NotEqual(t, 0.0, applyTriggerDeadzone(d+0.01, d))
	assert.Equal(t, 0.0, applyTriggerDeadzone(0, d))
}

func TestTriggerMapsFullyPressedToMax(t *testing.T) {
	m := testMapper()
	snap := input.Neutral().
		Apply(input.Event{IsAxis: true, AxisIdx: input.AxisTriggerL, AxisVal: 1.0}).
		Apply(input.Event{IsAxis: true, AxisIdx: input.AxisTriggerR, AxisVal: 1.0})

	set := m.Step(snap, time.Now())
	assert.Equal(t, uint16(channels.MaxUs), set[channels.Beeper])
	assert.Equal(t, uint16(channels.MaxUs), set[channels.Turtle])
}

func TestTriggerAtRestMapsToMin(t *testing.T) {
	m := testMapper()
	set := m.Step(input.Neutral(), time.Now())
	assert.Equal(t, uint16(channels.MinUs), set[channels.Beeper])
	assert.Equal(t, uint16(channels.MinUs), set[channels.Turtle])
}

func TestStepAllCenteredDisarmed(t *testing.T) {
	m := testMapper()
	snap := input.Neutral()
	set := m.Step(snap, time.Now())

	assert.Equal(t, uint16(1500), set[channels.Roll])
	assert.Equal(t, uint16(1500), set[channels.Pitch])
	assert.Equal(t, uint16(1500), set[channels.Yaw])
	assert.Equal(t, uint16(1000), set[channels.Throttle]) // throttle maps [0,1] -> [1000,2000], so an axis at 0 is the 1000 minimum
	assert.Equal(t, uint16(1000), set[channels.Arm])
}

func TestStepFullRollRightSaturates(t *testing.T) {
	m := testMapper()
	snap := input.Neutral().Apply(input.Event{IsAxis: true, AxisIdx: input.AxisRoll, AxisVal: 1.0})
	set := m.Step(snap, time.Now())
	assert.Equal(t, uint16(2000), set[channels.Roll])
}

func TestScenarioS2ArmedAfterHoldWithFullRoll(t *testing.T) {
	m := testMapper()
	t0 := time.Now()
	snap := input.Neutral().
		Apply(input.Event{At: t0, IsAxis: true, AxisIdx: input.AxisRoll, AxisVal: 1.0}).
		Apply(input.Event{At: t0, IsButton: true, ButtonIdx: input.ButtonArm, Pressed: true})

	set := m.Step(snap, t0)
	assert.Equal(t, uint16(1000), set[channels.Arm]) // not armed yet

	holdMs := time.Duration(config.Default().Safety.ArmButtonHoldMs) * time.Millisecond
	set = m.Step(snap, t0.Add(holdMs))
	require.Equal(t, uint16(2000), set[channels.Arm])
	assert.Equal(t, uint16(2000), set[channels.Roll])

	// Same inputs, next tick: byte-for-byte identical channel set.
	set2 := m.Step(snap, t0.Add(holdMs+4*time.Millisecond))
	assert.Equal(t, set, set2)
}

func TestScenarioS3RejectArmWithHighThrottle(t *testing.T) {
	m := testMapper()
	t0 := time.Now()
	// Throttle axis well above the arm threshold once mapped to microseconds.
	snap := input.Neutral().
		Apply(input.Event{At: t0, IsAxis: true, AxisIdx: input.AxisThrottle, AxisVal: 1.0}).
		Apply(input.Event{At: t0, IsButton: true, ButtonIdx: input.ButtonArm, Pressed: true})

	for i := 0; i < 5; i++ {
		set := m.Step(snap, t0.Add(time.Duration(i)*time.Second))
		assert.Equal(t, uint16(1000), set[channels.Arm])
	}
	assert.Equal(t, PhaseDisarmed, m.Phase())
}

func TestEmergencyPressReachesArmChannel1000Immediately(t *testing.T) {
	m := testMapper()
	t0 := time.Now()
	armSnap := input.Neutral().Apply(input.Event{At: t0, IsButton: true, ButtonIdx: input.ButtonArm, Pressed: true})
	m.Step(armSnap, t0)
	m.Step(armSnap, t0.Add(2*time.Second))
	require.Equal(t, PhaseArmed, m.Phase())

	emergencySnap := armSnap.Apply(input.Event{At: t0.Add(3 * time.Second), IsButton: true, ButtonIdx: input.ButtonEmergency, Pressed: true})
	set := m.Step(emergencySnap, t0.Add(3*time.Second))
	assert.Equal(t, uint16(1000), set[channels.Arm])
	assert.Equal(t, PhaseEmergencyDisarmed, m.Phase())
}

func TestEmergencyLatchClearsAfterArmReleasedOneSecond(t *testing.T) {
	m := testMapper()
	t0 := time.Now()
	emergencySnap := input.Neutral().Apply(input.Event{At: t0, IsButton: true, ButtonIdx: input.ButtonEmergency, Pressed: true})
	m.Step(emergencySnap, t0)
	require.Equal(t, PhaseEmergencyDisarmed, m.Phase())

	released := emergencySnap.
		Apply(input.Event{At: t0.Add(time.Millisecond), IsButton: true, ButtonIdx: input.ButtonEmergency, Pressed: false})

	m.Step(released, t0.Add(100*time.Millisecond))
	assert.Equal(t, PhaseEmergencyDisarmed, m.Phase())

	m.Step(released, t0.Add(1100*time.Millisecond))
	assert.Equal(t, PhaseDisarmed, m.Phase())
}

func TestModeCycleAdvancesOnRisingEdgeOnly(t *testing.T) {
	m := testMapper()
	t0 := time.Now()
	pressed := input.Neutral().Apply(input.Event{At: t0, IsButton: true, ButtonIdx: input.ButtonModeCycle, Pressed: true})

	set := m.Step(pressed, t0)
	assert.Equal(t, uint16(1500), set[channels.FlightMode])

	// Holding across ticks must not re-advance the cycle.
	set2 := m.Step(pressed, t0.Add(4*time.Millisecond))
	assert.Equal(t, set[channels.FlightMode], set2[channels.FlightMode])

	released := pressed.Apply(input.Event{At: t0.Add(8 * time.Millisecond), IsButton: true, ButtonIdx: input.ButtonModeCycle, Pressed: false})
	m.Step(released, t0.Add(8*time.Millisecond))

	pressedAgain := released.Apply(input.Event{At: t0.Add(12 * time.Millisecond), IsButton: true, ButtonIdx: input.ButtonModeCycle, Pressed: true})
	set3 := m.Step(pressedAgain, t0.Add(12*time.Millisecond))
	assert.Equal(t, uint16(2000), set3[channels.FlightMode])
}

func TestCalibrateReplacesCenterOnRisingEdge(t *testing.T) {
	m := testMapper()
	t0 := time.Now()
	offCenter := input.Neutral().
		Apply(input.Event{At: t0, IsAxis: true, AxisIdx: input.AxisRoll, AxisVal: 0.4}).
		Apply(input.Event{At: t0, IsButton: true, ButtonIdx: input.ButtonCalibrate, Pressed: true})

	m.Step(offCenter, t0)
	assert.InDelta(t, 0.4, m.cal.CenterOffset[input.AxisRoll], 1e-9)

	afterCal := offCenter.Apply(input.Event{At: t0.Add(time.Millisecond), IsButton: true, ButtonIdx: input.ButtonCalibrate, Pressed: false})
	set := m.Step(afterCal, t0.Add(time.Millisecond))
	assert.Equal(t, uint16(1500), set[channels.Roll]) // now reads as centered
}

func TestAutoDisarmOnInactivity(t *testing.T) {
	m := testMapper()
	t0 := time.Now()
	armed := input.Neutral().Apply(input.Event{At: t0, IsButton: true, ButtonIdx: input.ButtonArm, Pressed: true})
	m.Step(armed, t0)
	m.Step(armed, t0.Add(2*time.Second))
	require.Equal(t, PhaseArmed, m.Phase())

	timeout := time.Duration(config.Default().Safety.AutoDisarmTimeoutS) * time.Second
	m.Step(armed, t0.Add(2*time.Second+timeout+time.Second))
	assert.Equal(t, PhaseDisarmed, m.Phase())
}

func TestChannelReverseMirrorsAboutCenter(t *testing.T) {
	cfg := config.Default()
	rev := cfg.ReverseSet()
	rev[channels.Roll] = true
	m := New(cfg.Controller, cfg.Safety, rev)

	right := input.Neutral().Apply(input.Event{IsAxis: true, AxisIdx: input.AxisRoll, AxisVal: 1.0})
	set := m.Step(right, time.Now())
	assert.Equal(t, uint16(1000), set[channels.Roll])
}
