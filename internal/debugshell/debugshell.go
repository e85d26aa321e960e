// Package debugshell provides an interactive console for inspecting a
// running bridge: current channel set, arm phase, driver health, and
// counters, colored by state the way a cockpit status light would be.
package debugshell

import (
	"fmt"

	"github.com/abiosoft/ishell"
	"github.com/fatih/color"
	"github.com/google/shlex"

	"github.com/TArch64/fpv-bridge/internal/channels"
	"github.com/TArch64/fpv-bridge/internal/mapper"
	"github.com/TArch64/fpv-bridge/internal/metrics"
)

const shellKey = "$bridge"

// Status is the minimal live view debugshell needs of the running bridge.
// The run command wires this to the actual supervisor/driver/mapper/metrics
// at startup; tests wire a fixedStatus instead.
type Status interface {
	Current() channels.Set
	Phase() mapper.ArmPhase
	DriverOpen() bool
	Counters() metrics.Snapshot
}

// Shell wraps an ishell.Shell bound to a Status, following the same
// context-value pattern the teacher's own debug shell uses to reach the
// enclosing state from inside an ishell.Context handler.
type Shell struct {
	Shell  *ishell.Shell
	Status Status
}

// New builds a Shell with the status/channels/counters commands registered.
func New(status Status) *Shell {
	s := &Shell{Shell: ishell.New(), Status: status}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("fpv-bridge> ")
	s.Shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "show arm phase and driver health",
		Func: cmdStatus,
	})
	s.Shell.AddCmd(&ishell.Cmd{
		Name: "channels",
		Help: "show the current channel set in microseconds",
		Func: cmdChannels,
	})
	s.Shell.AddCmd(&ishell.Cmd{
		Name: "counters",
		Help: "show TX/RX/telemetry counters",
		Func: cmdCounters,
	})
	return s
}

// Run starts the interactive loop; it blocks until the user exits the
// shell (e.g. via "exit" or ctrl-d).
func (s *Shell) Run() {
	s.Shell.Run()
}

// Close stops the shell loop from outside, e.g. on SIGINT.
func (s *Shell) Close() {
	s.Shell.Close()
}

func shellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func cmdStatus(c *ishell.Context) {
	s := shellFrom(c)
	phase := s.Status.Phase()
	open := s.Status.DriverOpen()

	phaseColor := color.New(color.FgGreen)
	switch phase {
	case mapper.PhaseDisarmed:
		phaseColor = color.New(color.FgYellow)
	case mapper.PhaseEmergencyDisarmed:
		phaseColor = color.New(color.FgRed)
	case mapper.PhaseArming:
		phaseColor = color.New(color.FgCyan)
	}

	driverColor := color.New(color.FgGreen)
	driverText := "open"
	if !open {
		driverColor = color.New(color.FgRed)
		driverText = "closed"
	}

	c.Println(fmt.Sprintf("arm phase: %s", phaseColor.Sprint(phase)))
	c.Println(fmt.Sprintf("serial port: %s", driverColor.Sprint(driverText)))
}

func cmdChannels(c *ishell.Context) {
	s := shellFrom(c)
	set := s.Status.Current()
	for i, us := range set {
		c.Println(fmt.Sprintf("ch%-2d %dus", i+1, us))
	}
}

func cmdCounters(c *ishell.Context) {
	s := shellFrom(c)
	snap := s.Status.Counters()
	c.Println(fmt.Sprintf("tx frames:        %d", snap.TxFrames))
	c.Println(fmt.Sprintf("tx errors:        %d", snap.TxErrors))
	c.Println(fmt.Sprintf("tx coalesced:     %d", snap.TxCoalesced))
	c.Println(fmt.Sprintf("rx frames:        %d", snap.RxFrames))
	c.Println(fmt.Sprintf("rx crc errors:    %d", snap.RxCRCErrors))
	c.Println(fmt.Sprintf("rx resyncs:       %d", snap.RxResyncs))
	c.Println(fmt.Sprintf("telemetry dropped: %d", snap.TelemetryDropped))
}

// SplitArgs tokenizes a raw command line with shell-style quoting rules,
// for callers that accept a single pasted command string (e.g. a scripted
// debug session) rather than ishell's own interactive tokenizer.
func SplitArgs(line string) ([]string, error) {
	return shlex.Split(line)
}
