// Package bridgeid derives a stable per-machine identity plus a
// per-process session tag, so logs and MQTT messages from more than one
// bridge instance (or more than one run of the same instance) can be told
// apart once aggregated.
package bridgeid

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

// ID identifies one running bridge: a machine ID stable across restarts
// on the same host, plus a session ID unique to this process.
type ID struct {
	Machine string
	Session string
}

// New derives the machine ID via denisbrodbeck/machineid and mints a
// fresh session UUID. A machine ID failure (no platform-specific source
// available) sets Machine to "unknown", leaving the session ID as the only
// distinguishing part, rather than failing startup -- instance identity is
// an observability aid, not part of the control path.
func New() ID {
	m, err := machineid.ID()
	if err != nil {
		m = "unknown"
	}
	return ID{Machine: m, Session: uuid.NewString()}
}

func (id ID) String() string {
	return id.Machine + "/" + id.Session
}
