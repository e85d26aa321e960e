package mapper

import "time"

// ArmPhase is one of the four states in spec §4.3's arming state machine.
type ArmPhase int

const (
	PhaseDisarmed ArmPhase = iota
	PhaseArming
	PhaseArmed
	PhaseEmergencyDisarmed
)

func (p ArmPhase) String() string {
	switch p {
	case PhaseDisarmed:
		return "disarmed"
	case PhaseArming:
		return "arming"
	case PhaseArmed:
		return "armed"
	case PhaseEmergencyDisarmed:
		return "emergency-disarmed"
	default:
		return "unknown"
	}
}

// ArmState is the mapper's sole mutable piece of memory across ticks: the
// current phase, when an in-progress arm press started, and (while
// latched) when the arm button was last seen released, to time the 1s
// clear-latch window.
type ArmState struct {
	Phase              ArmPhase
	HeldSince          time.Time
	ReleasedSince       time.Time
}

// emergencyClearHold is how long the arm button must be continuously
// released while latched EmergencyDisarmed before the latch clears.
const emergencyClearHold = time.Second

// step advances the arm state machine by one tick per spec §4.3's table.
// armPressed/emergencyPressed are the current button levels; throttleUs is
// the channel-2 value at this tick (used only to guard a fresh arm press);
// now is the tick's monotonic timestamp.
func (a ArmState) step(armPressed, emergencyPressed bool, throttleUs uint16, armHoldMs int, armThrottleMaxUs uint16, now time.Time) ArmState {
	if emergencyPressed {
		return ArmState{Phase: PhaseEmergencyDisarmed}
	}

	switch a.Phase {
	case PhaseDisarmed:
		if armPressed {
			if throttleUs < armThrottleMaxUs {
				return ArmState{Phase: PhaseArming, HeldSince: now}
			}
			return ArmState{Phase: PhaseDisarmed}
		}
		return a

	case PhaseArming:
		if !armPressed {
			return ArmState{Phase: PhaseDisarmed}
		}
		if now.Sub(a.HeldSince) >= time.Duration(armHoldMs)*time.Millisecond {
			return ArmState{Phase: PhaseArmed}
		}
		return a

	case PhaseArmed:
		if !armPressed {
			return ArmState{Phase: PhaseDisarmed}
		}
		return a

	case PhaseEmergencyDisarmed:
		if armPressed {
			next := a
			next.ReleasedSince = time.Time{}
			return next
		}
		released := a.ReleasedSince
		if released.IsZero() {
			released = now
		}
		if now.Sub(released) >= emergencyClearHold {
			return ArmState{Phase: PhaseDisarmed}
		}
		return ArmState{Phase: PhaseEmergencyDisarmed, ReleasedSince: released}

	default:
		return ArmState{Phase: PhaseDisarmed}
	}
}

// ArmChannelUs returns the arm channel's wire value for the current phase:
// 2000 iff Armed, 1000 otherwise.
func (a ArmState) ArmChannelUs() uint16 {
	if a.Phase == PhaseArmed {
		return 2000
	}
	return 1000
}
