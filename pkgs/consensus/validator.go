// Package consensus filters decoded data packages down to trusted,
// deduplicated per-feed contributions and reduces those to a single
// value per feed, requiring a quorum of distinct trusted signers per
// feed before accepting a result.
package consensus

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/powerloom/redstone-processor/pkgs/identity"
	"github.com/powerloom/redstone-processor/pkgs/protocol"
)

// Config bounds how fresh a package's timestamp must be relative to the
// caller-supplied block timestamp, how many distinct trusted signers a
// feed must have before its value is accepted, and which feeds the
// caller actually wants back.
type Config struct {
	Feeds               []protocol.FeedID
	MaxTimestampDelayMs uint64
	MaxTimestampAheadMs uint64
	MinSignersPerFeed   int
}

// ErrTimestampOutOfRange is returned when a package's timestamp falls
// outside [blockTimestampMs-MaxTimestampDelayMs, blockTimestampMs+MaxTimestampAheadMs].
type ErrTimestampOutOfRange struct {
	Timestamp        uint64
	BlockTimestampMs uint64
}

func (e ErrTimestampOutOfRange) Error() string {
	return fmt.Sprintf("timestamp %d out of range of block timestamp %d", e.Timestamp, e.BlockTimestampMs)
}

// ErrInsufficientSignerCount is returned when a feed's trusted, deduped
// signer count falls short of the configured quorum.
type ErrInsufficientSignerCount struct {
	FeedID   string
	Got      int
	Required int
}

func (e ErrInsufficientSignerCount) Error() string {
	return fmt.Sprintf("feed %s has %d trusted signers, need %d", e.FeedID, e.Got, e.Required)
}

// FeedValues holds, per feed, the surviving (signer -> value) contributions
// after trust filtering and first-occurrence dedup.
type FeedValues map[protocol.FeedID]map[protocol.SignerAddress]*uint256.Int

// TrustedPackages returns the subset of packages, in original wire order,
// that carry at least one point whose (feed, signer) is trusted. A
// package with no trusted point is noise the validator was never meant
// to see: it is dropped silently here, before the timestamp check, so an
// untrusted signer can never abort the call with a stale or future-dated
// timestamp.
func TrustedPackages(packages []protocol.DataPackage, trust *identity.TrustSet) []protocol.DataPackage {
	trusted := make([]protocol.DataPackage, 0, len(packages))
	for _, pkg := range packages {
		for _, point := range pkg.Points {
			if trust.IsTrusted(point.FeedID.Hex(), pkg.Signer) {
				trusted = append(trusted, pkg)
				break
			}
		}
	}
	return trusted
}

// MinTimestamp returns the minimum timestamp across packages, and false
// if packages is empty.
func MinTimestamp(packages []protocol.DataPackage) (uint64, bool) {
	if len(packages) == 0 {
		return 0, false
	}
	min := packages[0].Timestamp
	for _, pkg := range packages[1:] {
		if pkg.Timestamp < min {
			min = pkg.Timestamp
		}
	}
	return min, true
}

// ValidateTimestamps rejects the call if any trusted package's timestamp
// falls outside the configured freshness window around blockTimestampMs.
// packages must already be trust-filtered (see TrustedPackages): an
// untrusted package's timestamp is never examined, per the rule that an
// untrusted contribution is dropped, not errored.
func ValidateTimestamps(packages []protocol.DataPackage, blockTimestampMs uint64, cfg Config) error {
	for _, pkg := range packages {
		if pkg.Timestamp+cfg.MaxTimestampDelayMs < blockTimestampMs {
			return ErrTimestampOutOfRange{Timestamp: pkg.Timestamp, BlockTimestampMs: blockTimestampMs}
		}
		if pkg.Timestamp > blockTimestampMs+cfg.MaxTimestampAheadMs {
			return ErrTimestampOutOfRange{Timestamp: pkg.Timestamp, BlockTimestampMs: blockTimestampMs}
		}
	}
	return nil
}

// BuildFeedValues walks packages in original wire order and keeps, for
// each (feed, signer) pair, the first trusted value seen. Points from
// untrusted signers are dropped silently, not treated as an error: an
// untrusted contribution is noise the aggregator was never meant to see,
// not a protocol fault. packages is typically the output of
// TrustedPackages, but points are re-checked per feed here since a
// package can carry points for several feeds with different per-feed
// trust.
func BuildFeedValues(packages []protocol.DataPackage, trust *identity.TrustSet) FeedValues {
	values := make(FeedValues)
	for _, pkg := range packages {
		for _, point := range pkg.Points {
			if !trust.IsTrusted(point.FeedID.Hex(), pkg.Signer) {
				continue
			}
			signers, ok := values[point.FeedID]
			if !ok {
				signers = make(map[protocol.SignerAddress]*uint256.Int)
				values[point.FeedID] = signers
			}
			if _, seen := signers[pkg.Signer]; seen {
				continue
			}
			signers[pkg.Signer] = point.Value
		}
	}
	return values
}

// CheckQuorum rejects the call if any feed in cfg.Feeds has a trusted,
// deduped signer count short of cfg.MinSignersPerFeed — including a
// requested feed entirely absent from values, which counts as zero
// signers. A feed present in values but not in cfg.Feeds (i.e. not
// requested by the caller) is never examined and can never fail the
// call.
func CheckQuorum(values FeedValues, cfg Config) error {
	for _, feed := range cfg.Feeds {
		got := len(values[feed])
		if got < cfg.MinSignersPerFeed {
			return ErrInsufficientSignerCount{
				FeedID:   feed.Hex(),
				Got:      got,
				Required: cfg.MinSignersPerFeed,
			}
		}
	}
	return nil
}
