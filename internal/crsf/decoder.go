package crsf

import "github.com/TArch64/fpv-bridge/internal/crc8"

// DecodeStats accumulates counters for one Decoder.Push call, mirroring the
// rx_frames/rx_crc_errors/rx_resyncs counters in spec §7.
type DecodeStats struct {
	FramesDecoded int
	CRCErrors     int
	Resyncs       int
}

// Decoder is a resynchronizing CRSF frame decoder fed from a live byte
// stream. It never blocks and never discards more than necessary to recover
// from a malformed candidate frame: on a bad length or CRC mismatch it
// advances exactly one byte past the previous sync rather than the whole
// candidate frame, so a spurious 0xC8 inside a payload does not cascade into
// losing every subsequent frame.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty resynchronizing decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Push appends newly-read bytes and returns every complete frame that can be
// decoded from the accumulated buffer, plus stats for this call. Any
// trailing partial frame is retained internally for the next Push.
func (d *Decoder) Push(data []byte) ([]Frame, DecodeStats) {
	d.buf = append(d.buf, data...)

	var frames []Frame
	var stats DecodeStats

	for {
		syncAt := indexOf(d.buf, SyncByte)
		if syncAt < 0 {
			d.buf = d.buf[:0]
			return frames, stats
		}
		if syncAt > 0 {
			d.buf = d.buf[syncAt:]
		}

		if len(d.buf) < 2 {
			return frames, stats // need the length byte
		}
		length := int(d.buf[1])
		if length < MinLength || length > MaxLength {
			stats.Resyncs++
			d.buf = d.buf[1:] // advance one byte past the rejected sync
			continue
		}

		frameLen := 2 + length // sync + length + (type+payload+crc)
		if len(d.buf) < frameLen {
			return frames, stats // wait for the rest of the frame
		}

		body := d.buf[2 : 2+length] // type + payload + crc
		received := body[length-1]
		calculated := crc8.Compute(d.buf[1 : 1+length])
		if calculated != received {
			stats.CRCErrors++
			stats.Resyncs++
			d.buf = d.buf[1:] // advance one byte past the previous sync, not a whole frame
			continue
		}

		frames = append(frames, Frame{
			Type:    body[0],
			Payload: append([]byte(nil), body[1:length-1]...),
		})
		stats.FramesDecoded++
		d.buf = d.buf[frameLen:]
	}
}

func indexOf(buf []byte, b byte) int {
	for i, v := range buf {
		if v == b {
			return i
		}
	}
	return -1
}
