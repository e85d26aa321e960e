// Package serialio owns the serial handle: 420000-baud 8N1 transport to
// the ExpressLRS module, the 250Hz send cadence, the resynchronizing
// receive loop, and reconnect-with-backoff. This is the serial driver
// (C4).
package serialio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/TArch64/fpv-bridge/internal/channels"
	"github.com/TArch64/fpv-bridge/internal/config"
	"github.com/TArch64/fpv-bridge/internal/crsf"
	"github.com/TArch64/fpv-bridge/internal/lifecycle"
	"github.com/TArch64/fpv-bridge/internal/metrics"
	"github.com/TArch64/fpv-bridge/internal/telemetry"
)

// Port is the capability set spec §9 calls the other polymorphism boundary
// in the core: a serial handle dependency-injected at construction so
// tests may substitute an in-memory fake instead of a real device node.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(time.Duration) error
}

// Opener opens a Port at path with the given baud rate. The production
// implementation is OpenSystemPort; tests inject a fake.
type Opener func(path string, baud int) (Port, error)

// OpenSystemPort opens a real go.bug.st/serial device at 8N1, no flow
// control.
func OpenSystemPort(path string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return systemPort{p}, nil
}

type systemPort struct {
	serial.Port
}

func (p systemPort) SetReadTimeout(d time.Duration) error {
	return p.Port.SetReadTimeout(d)
}

// State is the driver's lifecycle state; it is always in exactly one of
// these per spec §4.4.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateReconnecting
)

// ChannelSetSource is read each TX tick for the currently authoritative
// channel set; satisfied by the supervisor's single-writer-single-reader
// cell.
type ChannelSetSource interface {
	Current() channels.Set
}

// Driver owns the open/closed state and drives TX/RX as two independent
// concurrent activities over the same handle, per spec §4.4/§5.
type Driver struct {
	cfg                 config.SerialConfig
	packetRateHz        int
	linkStatsIntervalMs int
	open                Opener
	source              ChannelSetSource
	sink                telemetry.Sink
	m                   *metrics.Counters
	events              chan lifecycle.Event

	state atomic.Int32 // State

	mu   sync.Mutex
	port Port

	writing atomic.Bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Driver. events, if non-nil, receives lifecycle events as
// they're published; it must never block (buffer it generously or drain
// it promptly). The channel set read from source is expected to already
// reflect any reverse-channel mirroring -- that's the mapper's job, done
// once in microsecond space before the set is published; encoding it a
// second time here would cancel the mapper's mirror out. linkStatsIntervalMs
// is the cadence at which txLoop re-requests link stats; 0 disables the
// ping (most ELRS firmware pushes LinkStats unsolicited and never needs it).
func New(cfg config.SerialConfig, packetRateHz int, linkStatsIntervalMs int, open Opener, source ChannelSetSource, sink telemetry.Sink, m *metrics.Counters, events chan lifecycle.Event) *Driver {
	return &Driver{
		cfg:                 cfg,
		packetRateHz:        packetRateHz,
		linkStatsIntervalMs: linkStatsIntervalMs,
		open:                open,
		source:              source,
		sink:                sink,
		m:                   m,
		events:              events,
		stop:                make(chan struct{}),
	}
}

func (d *Driver) State() State {
	return State(d.state.Load())
}

// IsOpen satisfies supervisor.DriverHealth.
func (d *Driver) IsOpen() bool {
	return d.State() == StateOpen
}

func (d *Driver) setState(s State) {
	d.state.Store(int32(s))
}

func (d *Driver) emit(ev lifecycle.Event) {
	if d.sink != nil {
		if !d.sink.Offer(telemetry.Entry{At: ev.At, Lifecycle: &ev}) {
			d.m.IncTelemetryDropped()
		}
	}
	if d.events != nil {
		select {
		case d.events <- ev:
		default:
		}
	}
}

// Run starts the connect loop, which opens the port and runs the TX and RX
// activities, in the background and returns immediately; the loop runs
// until Stop is called. Transient serial failures never surface as errors
// -- they become offline/reconnect cycles, per spec §7's propagation policy.
func (d *Driver) Run() {
	d.wg.Add(1)
	go d.connectLoop()
}

// Stop performs the graceful shutdown spec §5 requires: it stops the TX
// and RX activities and closes the port. It does not itself send a final
// failsafe frame -- that is the supervisor's responsibility, observed
// through ChannelSetSource before Stop is called.
func (d *Driver) Stop() {
	close(d.stop)
	d.wg.Wait()
	d.mu.Lock()
	if d.port != nil {
		d.port.Close()
		d.port = nil
	}
	d.mu.Unlock()
	d.setState(StateClosed)
}

func (d *Driver) connectLoop() {
	defer d.wg.Done()
	backoff := time.Duration(d.cfg.ReconnectIntervalMs) * time.Millisecond

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		port, err := d.open(d.cfg.Port, d.cfg.BaudRate)
		if err != nil {
			glog.Warningf("serialio: open %s: %v", d.cfg.Port, err)
			d.setState(StateReconnecting)
			d.emit(lifecycle.Offlined(err.Error(), now()))
			if !sleepOrStop(backoff, d.stop) {
				return
			}
			continue
		}

		glog.Infof("serialio: %s online", d.cfg.Port)
		d.mu.Lock()
		d.port = port
		d.mu.Unlock()
		d.setState(StateOpen)
		d.emit(lifecycle.New(lifecycle.Online, now()))

		reason := d.serveUntilError(port)

		d.mu.Lock()
		port.Close()
		d.port = nil
		d.mu.Unlock()

		select {
		case <-d.stop:
			return
		default:
		}

		glog.Warningf("serialio: %s offline: %s", d.cfg.Port, reason)
		d.setState(StateReconnecting)
		d.emit(lifecycle.Offlined(reason, now()))
		if !sleepOrStop(backoff, d.stop) {
			return
		}
	}
}

// serveUntilError runs TX and RX concurrently over port until either
// fails or Stop is requested, returning the error reason (empty string on
// a clean stop).
func (d *Driver) serveUntilError(port Port) string {
	errCh := make(chan string, 2)
	done := make(chan struct{})

	var inner sync.WaitGroup
	inner.Add(2)

	go func() {
		defer inner.Done()
		if reason := d.txLoop(port, done); reason != "" {
			errCh <- reason
		}
	}()
	go func() {
		defer inner.Done()
		if reason := d.rxLoop(port, done); reason != "" {
			errCh <- reason
		}
	}()

	var reason string
	select {
	case reason = <-errCh:
		close(done)
	case <-d.stop:
		close(done)
	}
	inner.Wait()
	return reason
}

func (d *Driver) txLoop(port Port, done <-chan struct{}) string {
	period := time.Second / time.Duration(max(d.packetRateHz, 1))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var pingC <-chan time.Time
	if d.linkStatsIntervalMs > 0 {
		pingTicker := time.NewTicker(time.Duration(d.linkStatsIntervalMs) * time.Millisecond)
		defer pingTicker.Stop()
		pingC = pingTicker.C
	}

	writeTimeout := time.Duration(d.cfg.WriteTimeoutMs) * time.Millisecond
	maxGap := 10 * time.Millisecond
	lastFrame := now()

	for {
		select {
		case <-done:
			return ""
		case <-pingC:
			if !d.writing.CompareAndSwap(false, true) {
				d.m.IncTxCoalesced()
				continue
			}
			ping := crsf.EncodeLinkStatsPing()
			ok := writeWithTimeout(port, ping[:], writeTimeout)
			d.writing.Store(false)
			if !ok {
				d.m.IncTxErrors()
				return "write timeout"
			}
			d.m.IncLinkStatsPings()
		case t := <-ticker.C:
			if !d.writing.CompareAndSwap(false, true) {
				d.m.IncTxCoalesced()
				continue
			}

			set := d.source.Current()
			frame := crsf.EncodeRCChannels(set, nil)

			ok := writeWithTimeout(port, frame[:], writeTimeout)
			d.writing.Store(false)

			// Ticks that fired while this write was in flight are dropped by
			// the ticker rather than queued; count them as coalesced.
			for missed := int(now().Sub(t) / period); missed > 0; missed-- {
				d.m.IncTxCoalesced()
			}

			if !ok {
				d.m.IncTxErrors()
				return "write timeout"
			}
			d.m.IncTxFrames()

			if t.Sub(lastFrame) > maxGap {
				return "tx cadence exceeded 10ms window"
			}
			lastFrame = t
		}
	}
}

func writeWithTimeout(port Port, data []byte, timeout time.Duration) bool {
	res := make(chan bool, 1)
	go func() {
		_, err := port.Write(data)
		res <- err == nil
	}()
	select {
	case ok := <-res:
		return ok
	case <-time.After(timeout):
		return false
	}
}

func (d *Driver) rxLoop(port Port, done <-chan struct{}) string {
	chunk := make([]byte, 64)
	dec := crsf.NewDecoder()
	port.SetReadTimeout(200 * time.Millisecond)

	for {
		select {
		case <-done:
			return ""
		default:
		}

		n, err := port.Read(chunk)
		if err != nil {
			return err.Error()
		}
		if n == 0 {
			continue
		}
		d.m.AddRxBytes(n)

		frames, stats := dec.Push(chunk[:n])
		d.m.AddRxFrames(stats.FramesDecoded)
		d.m.AddRxCRCErrors(stats.CRCErrors)
		d.m.AddRxResyncs(stats.Resyncs)

		for _, f := range frames {
			rec := crsf.DecodeTelemetry(f)
			entry := telemetry.Entry{At: now(), Telemetry: &rec}
			if d.sink != nil && !d.sink.Offer(entry) {
				d.m.IncTelemetryDropped()
			}
		}
	}
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	select {
	case <-time.After(d):
		return true
	case <-stop:
		return false
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// now is a seam for tests; production always uses the monotonic wall
// clock spec §9 requires.
var now = time.Now
