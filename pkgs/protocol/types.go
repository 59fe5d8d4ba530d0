// Package protocol decodes one RedStone payload into its ordered data
// packages, built on pkgs/wire's trailer-first reader.
package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/powerloom/redstone-processor/pkgs/wire"
)

// FeedID is an opaque 32-byte tag naming a logical data series. Equality
// is byte-wise.
type FeedID [wire.DataFeedIDBytes]byte

// Hex returns the lowercase hex encoding of the feed ID, for use as a map
// key or metric label.
func (f FeedID) Hex() string {
	return hex.EncodeToString(f[:])
}

// FeedIDFromHex decodes a hex-encoded feed ID, with or without a "0x"
// prefix, into a FeedID.
func FeedIDFromHex(s string) (FeedID, error) {
	var f FeedID
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return f, fmt.Errorf("invalid feed id %q: %w", s, err)
	}
	if len(b) != len(f) {
		return f, fmt.Errorf("feed id %q must decode to %d bytes, got %d", s, len(f), len(b))
	}
	copy(f[:], b)
	return f, nil
}

// SignerAddress is the 20-byte Ethereum-style address derived from a
// package's recovered public key. go-ethereum's common.Address is already
// exactly this shape, so we reuse it rather than define our own.
type SignerAddress = common.Address

// DataPoint is a single (feed_id, value) pair carried by a data package.
type DataPoint struct {
	FeedID FeedID
	Value  *uint256.Int
}

// DataPackage is one signed unit inside a payload: a timestamp and a set
// of data points, plus the signer address recovered from its signature.
type DataPackage struct {
	Points    []DataPoint
	Timestamp uint64 // milliseconds since Unix epoch
	Signer    SignerAddress
}
