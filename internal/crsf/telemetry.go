package crsf

// RecordKind tags which variant of Record is populated.
type RecordKind int

const (
	KindLinkStats RecordKind = iota
	KindBattery
	KindGPS
	KindAttitude
	KindUnknown
)

// LinkStats is the decoded payload of a 0x14 frame.
type LinkStats struct {
	UplinkRSSIDbm   *int8 // negated magnitude; nil if the wire byte was 0xFF (invalid)
	UplinkRSSI2Dbm  *int8
	UplinkLQPct     uint8
	UplinkSNRDb     int8
	ActiveAntenna   uint8
	RFMode          uint8
	TXPowerCode     uint8
	DownlinkRSSIDbm *int8
	DownlinkLQPct   uint8
	DownlinkSNRDb   int8
}

// Battery is the decoded payload of a 0x08 frame.
type Battery struct {
	VoltageCv    uint16
	CurrentDa    uint16
	CapacityMah  uint32
	RemainingPct uint8
}

// GPS is the decoded payload of a 0x02 frame.
type GPS struct {
	LatE7          int32
	LonE7          int32
	SpeedKmhX10    uint16
	HeadingDegX100 uint16
	AltitudeM      int16
	Satellites     uint8
}

// Attitude is the decoded payload of a 0x1E frame, angles in 1/10000 radian.
type Attitude struct {
	PitchRad1e4 int16
	RollRad1e4  int16
	YawRad1e4   int16
}

// Unknown holds a frame whose type has no defined decoder.
type Unknown struct {
	Type    byte
	Payload []byte
}

// Record is a tagged union over the telemetry variants CRSF can carry.
// Exactly one of the pointer fields matching Kind is non-nil.
type Record struct {
	Kind      RecordKind
	LinkStats *LinkStats
	Battery   *Battery
	GPS       *GPS
	Attitude  *Attitude
	Unknown   *Unknown
}

// rssiOrInvalid negates a positive-magnitude RSSI byte into dBm, returning
// nil when the wire signals an invalid reading (0xFF).
func rssiOrInvalid(b byte) *int8 {
	if b == 0xFF {
		return nil
	}
	v := -int8(b)
	return &v
}

func decodeLinkStats(p []byte) *LinkStats {
	return &LinkStats{
		UplinkRSSIDbm:   rssiOrInvalid(p[0]),
		UplinkRSSI2Dbm:  rssiOrInvalid(p[1]),
		UplinkLQPct:     p[2],
		UplinkSNRDb:     int8(p[3]),
		ActiveAntenna:   p[4],
		RFMode:          p[5],
		TXPowerCode:     p[6],
		DownlinkRSSIDbm: rssiOrInvalid(p[7]),
		DownlinkLQPct:   p[8],
		DownlinkSNRDb:   int8(p[9]),
	}
}

func decodeBattery(p []byte) *Battery {
	return &Battery{
		VoltageCv:    be16(p[0], p[1]),
		CurrentDa:    be16(p[2], p[3]),
		CapacityMah:  be24(p[4], p[5], p[6]),
		RemainingPct: p[7],
	}
}

func decodeGPS(p []byte) *GPS {
	return &GPS{
		LatE7:          int32(be32(p[0], p[1], p[2], p[3])),
		LonE7:          int32(be32(p[4], p[5], p[6], p[7])),
		SpeedKmhX10:    be16(p[8], p[9]),
		HeadingDegX100: be16(p[10], p[11]),
		AltitudeM:      int16(be16(p[12], p[13])) - 1000,
		Satellites:     p[14],
	}
}

func decodeAttitude(p []byte) *Attitude {
	return &Attitude{
		PitchRad1e4: int16(be16(p[0], p[1])),
		RollRad1e4:  int16(be16(p[2], p[3])),
		YawRad1e4:   int16(be16(p[4], p[5])),
	}
}

// DecodeTelemetry classifies a decoded frame into a structured Record.
// Unknown types decode to Kind=KindUnknown rather than failing; payloads
// shorter than the wire table's fixed length for a known type also decode
// as Unknown, since the frame already passed CRC but doesn't match the
// type's contract.
func DecodeTelemetry(f Frame) Record {
	switch {
	case f.Type == FrameTypeLinkStats && len(f.Payload) >= LinkStatsPayloadSize:
		return Record{Kind: KindLinkStats, LinkStats: decodeLinkStats(f.Payload)}
	case f.Type == FrameTypeBattery && len(f.Payload) >= BatteryPayloadSize:
		return Record{Kind: KindBattery, Battery: decodeBattery(f.Payload)}
	case f.Type == FrameTypeGPS && len(f.Payload) >= GPSPayloadSize:
		return Record{Kind: KindGPS, GPS: decodeGPS(f.Payload)}
	case f.Type == FrameTypeAttitude && len(f.Payload) >= AttitudePayloadSize:
		return Record{Kind: KindAttitude, Attitude: decodeAttitude(f.Payload)}
	default:
		return Record{Kind: KindUnknown, Unknown: &Unknown{Type: f.Type, Payload: f.Payload}}
	}
}

func be16(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

func be24(b0, b1, b2 byte) uint32 {
	return uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
}

func be32(b0, b1, b2, b3 byte) uint32 {
	return uint32(b0)<<24 | uint32(b1)<<16 | uint32(b2)<<8 | uint32(b3)
}
