// Package lifecycle defines the domain events the supervisor and serial
// driver publish to observers (the log sink, the MQTT mirror, the debug
// console) without ever blocking the control path.
package lifecycle

import "time"

// Kind enumerates the lifecycle events named in spec §7.
type Kind string

const (
	Online            Kind = "online"
	Offline           Kind = "offline"
	Armed             Kind = "armed"
	Disarmed          Kind = "disarmed"
	EmergencyDisarmed Kind = "emergency_disarmed"
	InputStale        Kind = "input_stale"
	InputRestored     Kind = "input_restored"
	Shutdown          Kind = "shutdown"
)

// Event is one lifecycle occurrence. Reason is populated for Offline and
// is otherwise empty.
type Event struct {
	Kind   Kind
	Reason string
	At     time.Time
}

func New(kind Kind, at time.Time) Event {
	return Event{Kind: kind, At: at}
}

func Offlined(reason string, at time.Time) Event {
	return Event{Kind: Offline, Reason: reason, At: at}
}
