package crsf

import (
	"github.com/TArch64/fpv-bridge/internal/channels"
	"github.com/TArch64/fpv-bridge/internal/crc8"
)

// channelToBits maps a microsecond channel value in [channels.MinUs,
// channels.MaxUs] to an 11-bit value in [0, 2047], saturating at the
// endpoints. A reverse flag mirrors the value around the 1500us center
// before mapping, so reversal is exact at center regardless of rounding.
func channelToBits(us uint16, reverse bool) uint16 {
	if reverse {
		mirrored := 2*channels.CenterUs - int(us)
		us = channels.Clamp(mirrored)
	}

	span := channels.MaxUs - channels.MinUs
	frac := (int(us) - channels.MinUs) * bits11Max
	bits := (frac + span/2) / span // round to nearest
	if bits < 0 {
		bits = 0
	}
	if bits > bits11Max {
		bits = bits11Max
	}
	return uint16(bits)
}

// packRCChannels packs 16 11-bit values into a 22-byte little-endian
// continuous bitstream: bit 0 of channel 0 is bit 0 of byte 0, and
// higher-order bits of one channel spill unaligned into the next byte.
func packRCChannels(bits [channels.Count]uint16) [RCChannelsPayloadSize]byte {
	var payload [RCChannelsPayloadSize]byte
	bitIndex := 0
	for _, v := range bits {
		for b := 0; b < 11; b++ {
			if (v>>b)&1 == 1 {
				payload[bitIndex/8] |= 1 << uint(bitIndex%8)
			}
			bitIndex++
		}
	}
	return payload
}

// EncodeRCChannels encodes a channel set into a complete 26-byte CRSF
// RC-channels frame: [0xC8, 24, 0x16, <22 payload bytes>, CRC].
// reverse, if non-nil, selects which channel indices are mirrored about the
// 1500us center before bit-packing.
func EncodeRCChannels(set channels.Set, reverse map[int]bool) [26]byte {
	var bits [channels.Count]uint16
	for i, us := range set {
		bits[i] = channelToBits(us, reverse[i])
	}
	payload := packRCChannels(bits)

	var frame [26]byte
	frame[0] = SyncByte
	frame[1] = RCChannelsFrameLength
	frame[2] = FrameTypeRCChannels
	copy(frame[3:], payload[:])
	frame[25] = crc8.Compute(frame[1:25])
	return frame
}

// EncodeLinkStatsPing encodes a zero-payload extended frame of type
// FrameTypeLinkStats: [0xC8, 2, 0x14, CRC]. The module already pushes
// LinkStats unsolicited on most firmware; this ping is for builds that
// only answer when polled (see crsf.link_stats_interval_ms).
func EncodeLinkStatsPing() [4]byte {
	var frame [4]byte
	frame[0] = SyncByte
	frame[1] = 2 // type + crc, no payload
	frame[2] = FrameTypeLinkStats
	frame[3] = crc8.Compute(frame[1:3])
	return frame
}
