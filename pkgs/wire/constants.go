// Package wire implements the trailer-first, length-prefixed byte format
// used by RedStone oracle payloads: a bounded reader that drains a byte
// slice from the tail, plus the fixed field widths the wire format pins.
package wire

// Field widths, bit-exact with the RedStone wire format.
const (
	DataFeedIDBytes          = 32
	DataPointValueSizeBytes  = 4
	TimestampBytes           = 6
	DataPointsCountBytes     = 3
	SignatureBytes           = 65
	DataPackagesCountBytes   = 2
	UnsignedMetadataSizeBytes = 3
	RedstoneMarkerBytes      = 9
	MaxValueSize             = 32
)

// RedstoneMarker anchors the trailer of a payload. Its presence is a
// necessary, not sufficient, framing check.
var RedstoneMarker = [RedstoneMarkerBytes]byte{0x00, 0x00, 0x02, 0xED, 0x57, 0x01, 0x1E, 0x00, 0x00}
