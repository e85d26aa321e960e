// Package metrics centralizes the global counters spec §7 calls for,
// replacing the "global mutable counters" pattern with a single record
// readers observe as a snapshot (spec §9's source-pattern re-architecture).
package metrics

import "sync/atomic"

// Counters holds every observability counter the core exposes. The zero
// value is ready to use; every field is safe for concurrent increment.
type Counters struct {
	txFrames         atomic.Int64
	txCoalesced      atomic.Int64
	txErrors         atomic.Int64
	rxBytes          atomic.Int64
	rxFrames         atomic.Int64
	rxCRCErrors      atomic.Int64
	rxResyncs        atomic.Int64
	telemetryDropped atomic.Int64
	linkStatsPings   atomic.Int64
}

func (c *Counters) IncTxFrames()         { c.txFrames.Add(1) }
func (c *Counters) IncTxCoalesced()      { c.txCoalesced.Add(1) }
func (c *Counters) IncTxErrors()         { c.txErrors.Add(1) }
func (c *Counters) AddRxBytes(n int)     { c.rxBytes.Add(int64(n)) }
func (c *Counters) AddRxFrames(n int)    { c.rxFrames.Add(int64(n)) }
func (c *Counters) AddRxCRCErrors(n int) { c.rxCRCErrors.Add(int64(n)) }
func (c *Counters) AddRxResyncs(n int)   { c.rxResyncs.Add(int64(n)) }
func (c *Counters) IncTelemetryDropped() { c.telemetryDropped.Add(1) }
func (c *Counters) IncLinkStatsPings()   { c.linkStatsPings.Add(1) }

// Snapshot is a point-in-time, non-atomic-as-a-whole copy for logging and
// the debug console.
type Snapshot struct {
	TxFrames         int64
	TxCoalesced      int64
	TxErrors         int64
	RxBytes          int64
	RxFrames         int64
	RxCRCErrors      int64
	RxResyncs        int64
	TelemetryDropped int64
	LinkStatsPings   int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		TxFrames:         c.txFrames.Load(),
		TxCoalesced:      c.txCoalesced.Load(),
		TxErrors:         c.txErrors.Load(),
		RxBytes:          c.rxBytes.Load(),
		RxFrames:         c.rxFrames.Load(),
		RxCRCErrors:      c.rxCRCErrors.Load(),
		RxResyncs:        c.rxResyncs.Load(),
		TelemetryDropped: c.telemetryDropped.Load(),
		LinkStatsPings:   c.linkStatsPings.Load(),
	}
}
