package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/TArch64/fpv-bridge/internal/bridgeid"
	"github.com/TArch64/fpv-bridge/internal/channels"
	"github.com/TArch64/fpv-bridge/internal/config"
	"github.com/TArch64/fpv-bridge/internal/debugshell"
	"github.com/TArch64/fpv-bridge/internal/input"
	"github.com/TArch64/fpv-bridge/internal/lifecycle"
	"github.com/TArch64/fpv-bridge/internal/mapper"
	"github.com/TArch64/fpv-bridge/internal/metrics"
	"github.com/TArch64/fpv-bridge/internal/mqttmirror"
	"github.com/TArch64/fpv-bridge/internal/serialio"
	"github.com/TArch64/fpv-bridge/internal/supervisor"
	"github.com/TArch64/fpv-bridge/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bridge: read the controller, drive the CRSF link",
	RunE:  runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// status adapts the live components into debugshell.Status without
// either package depending on the other's concrete type.
type status struct {
	sup *supervisor.Supervisor
	drv *serialio.Driver
	m   *metrics.Counters
}

func (s status) Current() channels.Set      { return s.sup.Current() }
func (s status) Phase() mapper.ArmPhase     { return s.sup.Phase() }
func (s status) DriverOpen() bool           { return s.drv.IsOpen() }
func (s status) Counters() metrics.Snapshot { return s.m.Snapshot() }

func runBridge(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	id := bridgeid.New()
	glog.Infof("fpv-bridge: starting, instance %s", id)

	var sink telemetry.Sink = telemetry.Null{}
	if cfg.Telemetry.Enabled {
		jsonl, err := telemetry.NewJSONLSink(cfg.Telemetry)
		if err != nil {
			return err
		}
		defer jsonl.Close()
		sink = jsonl
	}

	var mirror *mqttmirror.Mirror
	if cfg.MQTT.Enabled {
		var err error
		mirror, err = mqttmirror.New(cfg.MQTT, id)
		if err != nil {
			glog.Warningf("fpv-bridge: mqtt mirror disabled: %v", err)
			mirror = nil
		} else {
			defer mirror.Close()
		}
	}
	sinkForCore := telemetry.Sink(sink)
	if mirror != nil {
		sinkForCore = dualSink{primary: sink, mirror: mirror}
	}

	m := &metrics.Counters{}
	events := make(chan lifecycle.Event, 64)

	mp := mapper.New(cfg.Controller, cfg.Safety, cfg.ReverseSet())

	var drv *serialio.Driver
	sup := supervisor.New(cfg.Safety, mp, driverHealthFunc(func() bool {
		return drv != nil && drv.IsOpen()
	}), sinkForCore, events)

	drv = serialio.New(cfg.Serial, cfg.CRSF.PacketRateHz, cfg.CRSF.LinkStatsIntervalMs, serialio.OpenSystemPort, sup, sinkForCore, m, events)
	drv.Run()
	defer drv.Stop()

	source := input.NewFake()
	defer source.Close()

	shell := debugshell.New(status{sup: sup, drv: drv, m: m})
	go shell.Run()
	defer shell.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	snap := input.Neutral()
	ticker := time.NewTicker(time.Second / time.Duration(max(cfg.CRSF.PacketRateHz, 1)))
	defer ticker.Stop()

	go drainLifecycleEvents(events)

	inputCh := relayInput(source)

	for {
		select {
		case <-sigCh:
			glog.Infof("fpv-bridge: shutting down")
			sup.ForceFailsafe(time.Now())
			return nil
		case ev, ok := <-inputCh:
			if ok {
				snap = snap.Apply(ev)
			}
		case t := <-ticker.C:
			sup.Step(snap, t)
		}
	}
}

// relayInput adapts input.Source's blocking Next into a channel, so the
// main loop can select across it alongside the ticker and the signal
// channel. It exits once the source is permanently exhausted.
func relayInput(source input.Source) <-chan input.Event {
	ch := make(chan input.Event, 16)
	go func() {
		defer close(ch)
		for {
			ev, ok := source.Next()
			if !ok {
				return
			}
			ch <- ev
		}
	}()
	return ch
}

func drainLifecycleEvents(events <-chan lifecycle.Event) {
	for ev := range events {
		glog.Infof("fpv-bridge: lifecycle %s", ev.Kind)
	}
}

type driverHealthFunc func() bool

func (f driverHealthFunc) IsOpen() bool { return f() }

// dualSink fans an Entry out to both the JSONL sink and the MQTT mirror;
// Offer reports false only if the primary (authoritative) sink dropped it,
// matching the JSONL sink's own backpressure contract -- the mirror's
// drops are a broker-availability concern, not logged-telemetry loss.
type dualSink struct {
	primary telemetry.Sink
	mirror  telemetry.Sink
}

func (d dualSink) Offer(e telemetry.Entry) bool {
	ok := d.primary.Offer(e)
	d.mirror.Offer(e)
	return ok
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
