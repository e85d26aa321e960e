package cmd

import (
	"github.com/spf13/cobra"

	"github.com/TArch64/fpv-bridge/internal/channels"
	"github.com/TArch64/fpv-bridge/internal/debugshell"
	"github.com/TArch64/fpv-bridge/internal/mapper"
	"github.com/TArch64/fpv-bridge/internal/metrics"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Open a standalone console against a neutral channel set",
	Long: `debug opens the same interactive console "run" attaches in-process, but
against a static neutral channel set rather than a live bridge. It's for
practicing console commands and checking the console itself on a bench
with no serial module connected.`,
	RunE: runDebug,
}

func init() {
	rootCmd.AddCommand(debugCmd)
}

type sandboxStatus struct {
	m metrics.Counters
}

func (*sandboxStatus) Current() channels.Set        { return channels.Neutral() }
func (*sandboxStatus) Phase() mapper.ArmPhase       { return mapper.PhaseDisarmed }
func (*sandboxStatus) DriverOpen() bool             { return false }
func (s *sandboxStatus) Counters() metrics.Snapshot { return s.m.Snapshot() }

func runDebug(cmd *cobra.Command, args []string) error {
	shell := debugshell.New(&sandboxStatus{})
	shell.Run()
	return nil
}
