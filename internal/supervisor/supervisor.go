// Package supervisor implements C5: the single authority that decides,
// every tick, which channel set the serial driver is permitted to
// transmit. It integrates C3's mapped output, input-liveness signals, and
// the serial driver's health into the failsafe decision.
package supervisor

import (
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/TArch64/fpv-bridge/internal/channels"
	"github.com/TArch64/fpv-bridge/internal/config"
	"github.com/TArch64/fpv-bridge/internal/input"
	"github.com/TArch64/fpv-bridge/internal/lifecycle"
	"github.com/TArch64/fpv-bridge/internal/mapper"
	"github.com/TArch64/fpv-bridge/internal/telemetry"
)

// DriverHealth is the minimal view the supervisor needs of the serial
// driver: whether it currently considers itself open. Satisfied by
// serialio.Driver without supervisor importing serialio, so the two
// packages depend on each other only through this seam.
type DriverHealth interface {
	IsOpen() bool
}

// cell is the single-writer-single-reader channel-set slot spec §5 calls
// for: the supervisor writes, the TX activity reads, no locking beyond an
// atomic pointer swap.
type cell struct {
	v atomic.Pointer[channels.Set]
}

func (c *cell) store(s channels.Set) { c.v.Store(&s) }

func (c *cell) Current() channels.Set {
	if p := c.v.Load(); p != nil {
		return *p
	}
	return channels.Neutral()
}

// Supervisor holds the authoritative channel set and runs the C3 mapper
// against controller snapshots, falling back to the failsafe set whenever
// input is stale, the driver is offline, or the mapper has latched
// EmergencyDisarmed.
type Supervisor struct {
	cfg    config.SafetyConfig
	mapper *mapper.Mapper
	health DriverHealth
	sink   telemetry.Sink
	events chan lifecycle.Event

	cell cell

	lastSnapshotAt atomic.Pointer[time.Time]
	wasStale       bool
	wasArmed       bool
	wasEmergency   bool
}

// New builds a Supervisor. health may be nil before the driver is wired
// up; a nil health is treated as offline (conservative default).
func New(cfg config.SafetyConfig, m *mapper.Mapper, health DriverHealth, sink telemetry.Sink, events chan lifecycle.Event) *Supervisor {
	s := &Supervisor{cfg: cfg, mapper: m, health: health, sink: sink, events: events}
	s.cell.store(channels.Failsafe())
	return s
}

// Current returns the currently authoritative channel set; satisfies
// serialio.ChannelSetSource.
func (s *Supervisor) Current() channels.Set {
	return s.cell.Current()
}

// Phase returns the mapper's current arm phase, for status surfaces like
// the debug console.
func (s *Supervisor) Phase() mapper.ArmPhase {
	return s.mapper.Phase()
}

// ForceFailsafe immediately publishes the failsafe set, bypassing Step.
// Callers use this on shutdown: spec §5's Cancellation requirement is
// that TX sends at most one final failsafe frame before the driver
// closes, and that frame has to be forced here since the caller is about
// to stop feeding Step ticks at all.
func (s *Supervisor) ForceFailsafe(now time.Time) {
	s.cell.store(channels.Failsafe())
	s.emit(lifecycle.Shutdown, now)
}

func (s *Supervisor) emit(kind lifecycle.Kind, at time.Time) {
	ev := lifecycle.New(kind, at)
	glog.Infof("supervisor: %s", kind)
	if s.sink != nil {
		if !s.sink.Offer(telemetry.Entry{At: at, Lifecycle: &ev}) {
			// Dropped; the supervisor does not count its own dropped
			// lifecycle entries, and a full sink is never fatal here.
		}
	}
	if s.events != nil {
		select {
		case s.events <- ev:
		default:
		}
	}
}

// Step recomputes and publishes the authoritative channel set for one
// tick, per spec §4.5's four-step algorithm. snap is the latest
// controller snapshot (possibly unchanged since the last tick); now is
// the tick's monotonic timestamp.
func (s *Supervisor) Step(snap input.Snapshot, now time.Time) channels.Set {
	stale := now.Sub(snap.At) >= time.Duration(s.cfg.FailsafeTimeoutMs)*time.Millisecond
	offline := s.health == nil || !s.health.IsOpen()

	mapped := s.mapper.Step(snap, now)
	emergency := s.mapper.Phase() == mapper.PhaseEmergencyDisarmed

	if stale && !s.wasStale {
		s.emit(lifecycle.InputStale, now)
	} else if !stale && s.wasStale {
		s.emit(lifecycle.InputRestored, now)
	}
	s.wasStale = stale

	armed := s.mapper.Phase() == mapper.PhaseArmed
	if armed && !s.wasArmed {
		s.emit(lifecycle.Armed, now)
	} else if !armed && s.wasArmed {
		s.emit(lifecycle.Disarmed, now)
	}
	s.wasArmed = armed

	if emergency && !s.wasEmergency {
		s.emit(lifecycle.EmergencyDisarmed, now)
	}
	s.wasEmergency = emergency

	var set channels.Set
	if stale || offline || emergency {
		set = channels.Failsafe()
	} else {
		set = mapped
	}

	s.cell.store(set)
	return set
}
