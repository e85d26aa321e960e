// Package telemetry implements the external log sink spec §6 describes as
// an out-of-scope collaborator: a non-blocking, lossy accept of
// TelemetryRecord and LifecycleEvent values, backed by a rotating JSONL
// writer on disk.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/TArch64/fpv-bridge/internal/config"
	"github.com/TArch64/fpv-bridge/internal/crsf"
	"github.com/TArch64/fpv-bridge/internal/lifecycle"
)

// Entry is the tagged union the sink accepts: exactly one of Telemetry or
// Lifecycle is set.
type Entry struct {
	At        time.Time
	Telemetry *crsf.Record
	Lifecycle *lifecycle.Event
}

// Sink is the non-blocking accept interface spec §6 requires of the log
// sink. Offer returns false if the entry was dropped.
type Sink interface {
	Offer(Entry) bool
}

// Null is a Sink that accepts and discards everything; used when
// telemetry logging is disabled in configuration.
type Null struct{}

func (Null) Offer(Entry) bool { return true }

// record is the on-disk JSONL shape.
type record struct {
	Time      time.Time     `json:"time"`
	Kind      string        `json:"kind"`
	Telemetry *crsf.Record  `json:"telemetry,omitempty"`
	Lifecycle *lifecycle.Event `json:"lifecycle,omitempty"`
}

// JSONLSink writes entries to rotating JSONL files under cfg.LogDir: a new
// file every MaxRecordsPerFile records, pruning the oldest files beyond
// MaxFilesToKeep. Offer is a non-blocking channel send; a background
// goroutine owns the actual file I/O, so a slow disk never stalls RX.
type JSONLSink struct {
	entries chan Entry
	done    chan struct{}
}

// NewJSONLSink creates the log directory and starts the writer goroutine.
// The channel depth is fixed; once full, Offer drops entries per spec §7's
// "telemetry is lossy by contract."
func NewJSONLSink(cfg config.TelemetryConfig) (*JSONLSink, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: creating log dir %s: %w", cfg.LogDir, err)
	}

	s := &JSONLSink{
		entries: make(chan Entry, 256),
		done:    make(chan struct{}),
	}
	go s.run(cfg)
	return s, nil
}

func (s *JSONLSink) Offer(e Entry) bool {
	select {
	case s.entries <- e:
		return true
	default:
		return false
	}
}

// Close stops accepting new entries and waits for the writer goroutine to
// flush and close its current file.
func (s *JSONLSink) Close() error {
	close(s.entries)
	<-s.done
	return nil
}

func (s *JSONLSink) run(cfg config.TelemetryConfig) {
	defer close(s.done)

	var (
		file           *os.File
		recordsInFile  int
		fileIndex      int
	)

	rotate := func() {
		if file != nil {
			file.Close()
		}
		fileIndex++
		name := filepath.Join(cfg.LogDir, fmt.Sprintf("telemetry-%020d.jsonl", fileIndex))
		f, err := os.Create(name)
		if err != nil {
			glog.Errorf("telemetry: rotate: %v", err)
			file = nil
			return
		}
		file = f
		recordsInFile = 0
		pruneOldFiles(cfg.LogDir, cfg.MaxFilesToKeep)
	}

	rotate()

	for e := range s.entries {
		if file == nil {
			rotate()
			if file == nil {
				continue
			}
		}

		rec := record{Time: e.At, Telemetry: e.Telemetry, Lifecycle: e.Lifecycle}
		switch {
		case e.Telemetry != nil:
			rec.Kind = "telemetry"
		case e.Lifecycle != nil:
			rec.Kind = "lifecycle"
		}

		line, err := json.Marshal(rec)
		if err != nil {
			glog.Errorf("telemetry: marshal: %v", err)
			continue
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			glog.Errorf("telemetry: write: %v", err)
			continue
		}

		recordsInFile++
		if recordsInFile >= cfg.MaxRecordsPerFile {
			rotate()
		}
	}

	if file != nil {
		file.Close()
	}
}

// pruneOldFiles deletes the oldest telemetry-*.jsonl files in dir beyond
// keep, by lexical (== chronological, given the zero-padded index) order.
func pruneOldFiles(dir string, keep int) {
	if keep <= 0 {
		return
	}
	matches, err := filepath.Glob(filepath.Join(dir, "telemetry-*.jsonl"))
	if err != nil {
		return
	}
	sort.Strings(matches)
	if len(matches) <= keep {
		return
	}
	for _, stale := range matches[:len(matches)-keep] {
		if err := os.Remove(stale); err != nil {
			glog.Warningf("telemetry: prune %s: %v", stale, err)
		}
	}
}
