package processor

import (
	"encoding/binary"
	"testing"

	gocrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/powerloom/redstone-processor/pkgs/consensus"
	"github.com/powerloom/redstone-processor/pkgs/crypto"
	"github.com/powerloom/redstone-processor/pkgs/identity"
	"github.com/powerloom/redstone-processor/pkgs/protocol"
	"github.com/powerloom/redstone-processor/pkgs/wire"
)

type testRecoverer struct{}

func (testRecoverer) RecoverSignerAddress(signableBytes, signature []byte) (protocol.SignerAddress, error) {
	return crypto.RecoverSignerAddress(signableBytes, signature)
}

func beUint(n, width int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf[8-width:]
}

func feedIDFromString(s string) protocol.FeedID {
	var f protocol.FeedID
	copy(f[:], s)
	return f
}

// buildPayload signs a single package carrying one (feed, value) point with
// a freshly generated key, and wraps it in a full trailer-first payload.
// It returns the payload bytes and the signer address it was signed with.
func buildPayload(t *testing.T, feed protocol.FeedID, value uint64, timestamp uint64) ([]byte, protocol.SignerAddress) {
	t.Helper()

	priv, err := gocrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := gocrypto.PubkeyToAddress(priv.PublicKey)

	valueSize := 4
	v := make([]byte, valueSize)
	binary.BigEndian.PutUint32(v, uint32(value))

	signable := append([]byte{}, feed[:]...)
	signable = append(signable, v...)
	signable = append(signable, beUint(int(timestamp), wire.TimestampBytes)...)
	signable = append(signable, beUint(valueSize, wire.DataPointValueSizeBytes)...)
	signable = append(signable, beUint(1, wire.DataPointsCountBytes)...)

	digest := gocrypto.Keccak256(signable)
	sig, err := gocrypto.Sign(digest, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	pkg := append(append([]byte{}, signable...), sig...)

	out := append([]byte{}, pkg...)
	out = append(out, beUint(0, wire.UnsignedMetadataSizeBytes)...)
	out = append(out, beUint(1, wire.DataPackagesCountBytes)...)
	out = append(out, wire.RedstoneMarker[:]...)
	return out, addr
}

func newProcessor() *Processor {
	return New(testRecoverer{}, nil, nil)
}

func TestProcessSuccess(t *testing.T) {
	feed := feedIDFromString("ETH")
	payload, signer := buildPayload(t, feed, 100, 10_000)

	trust := identity.NewTrustSet(identity.Config{TrustedSigners: []protocol.SignerAddress{signer}})
	p := newProcessor()

	result, err := p.Process(Config{
		Trust: trust,
		Consensus: consensus.Config{
			Feeds:               []protocol.FeedID{feed},
			MaxTimestampDelayMs: 1000,
			MaxTimestampAheadMs: 1000,
			MinSignersPerFeed:   1,
		},
		BlockTimestampMs: 10_000,
	}, payload)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := result.Values[feed].Uint64(); got != 100 {
		t.Errorf("Values[feed] = %d, want 100", got)
	}
	if len(result.Feeds) != 1 || result.Feeds[0] != feed {
		t.Errorf("Feeds = %v, want [%v]", result.Feeds, feed)
	}
	if result.MinTimestamp != 10_000 {
		t.Errorf("MinTimestamp = %d, want 10000", result.MinTimestamp)
	}

	stats := p.Stats()
	if stats.TotalProcessed != 1 || stats.SuccessfulCount != 1 || stats.FailedCount != 0 {
		t.Errorf("stats = %+v, want {TotalProcessed:1 SuccessfulCount:1 FailedCount:0}", stats)
	}
}

func TestProcessDecodeFailure(t *testing.T) {
	p := newProcessor()
	_, err := p.Process(Config{Trust: identity.NewTrustSet(identity.Config{})}, []byte{0x01, 0x02})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	perr, ok := err.(*ProcessorError)
	if !ok {
		t.Fatalf("err = %T, want *ProcessorError", err)
	}
	if perr.Kind != KindDecode {
		t.Errorf("Kind = %s, want %s", perr.Kind, KindDecode)
	}

	stats := p.Stats()
	if stats.FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", stats.FailedCount)
	}
}

// TestProcessTimestampValidationFailure exercises the freshness check
// against a TRUSTED signer's out-of-window package: trust must be
// established first, since an untrusted signer's stale timestamp is
// silently dropped rather than aborting the call (see
// TestProcessUntrustedSignerStaleTimestampIsDroppedNotErrored below).
func TestProcessTimestampValidationFailure(t *testing.T) {
	feed := feedIDFromString("ETH")
	payload, signer := buildPayload(t, feed, 100, 1_000)

	p := newProcessor()
	_, err := p.Process(Config{
		Trust: identity.NewTrustSet(identity.Config{TrustedSigners: []protocol.SignerAddress{signer}}),
		Consensus: consensus.Config{
			Feeds:               []protocol.FeedID{feed},
			MaxTimestampDelayMs: 100,
			MaxTimestampAheadMs: 100,
			MinSignersPerFeed:   1,
		},
		BlockTimestampMs: 10_000,
	}, payload)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	perr, ok := err.(*ProcessorError)
	if !ok {
		t.Fatalf("err = %T, want *ProcessorError", err)
	}
	if perr.Kind != KindValidation {
		t.Errorf("Kind = %s, want %s", perr.Kind, KindValidation)
	}
	if _, ok := perr.Cause.(consensus.ErrTimestampOutOfRange); !ok {
		t.Errorf("Cause = %T, want consensus.ErrTimestampOutOfRange", perr.Cause)
	}
}

// TestProcessUntrustedSignerStaleTimestampIsDroppedNotErrored is the
// inverse of the above: a package from a signer that isn't trusted at
// all must be dropped silently, with no timestamp check ever applied to
// it, even when its timestamp is wildly out of window. The only
// resulting failure here is quorum, since the untrusted package was the
// sole contribution to the feed.
func TestProcessUntrustedSignerStaleTimestampIsDroppedNotErrored(t *testing.T) {
	feed := feedIDFromString("ETH")
	payload, _ := buildPayload(t, feed, 100, 1_000)

	p := newProcessor()
	_, err := p.Process(Config{
		Trust: identity.NewTrustSet(identity.Config{}),
		Consensus: consensus.Config{
			Feeds:               []protocol.FeedID{feed},
			MaxTimestampDelayMs: 100,
			MaxTimestampAheadMs: 100,
			MinSignersPerFeed:   1,
		},
		BlockTimestampMs: 10_000,
	}, payload)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	perr, ok := err.(*ProcessorError)
	if !ok {
		t.Fatalf("err = %T, want *ProcessorError", err)
	}
	if perr.Kind != KindValidation {
		t.Errorf("Kind = %s, want %s", perr.Kind, KindValidation)
	}
	if _, ok := perr.Cause.(consensus.ErrInsufficientSignerCount); !ok {
		t.Errorf("Cause = %T, want consensus.ErrInsufficientSignerCount (timestamp must never be checked for an untrusted package)", perr.Cause)
	}
}

func TestProcessQuorumFailure(t *testing.T) {
	feed := feedIDFromString("ETH")
	payload, signer := buildPayload(t, feed, 100, 10_000)

	p := newProcessor()
	_, err := p.Process(Config{
		Trust: identity.NewTrustSet(identity.Config{TrustedSigners: []protocol.SignerAddress{signer}}),
		Consensus: consensus.Config{
			Feeds:               []protocol.FeedID{feed},
			MaxTimestampDelayMs: 1000,
			MaxTimestampAheadMs: 1000,
			MinSignersPerFeed:   2,
		},
		BlockTimestampMs: 10_000,
	}, payload)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	perr, ok := err.(*ProcessorError)
	if !ok {
		t.Fatalf("err = %T, want *ProcessorError", err)
	}
	if perr.Kind != KindValidation {
		t.Errorf("Kind = %s, want %s", perr.Kind, KindValidation)
	}
}

func TestProcessorErrorCodeDistinguishesFailureFamilies(t *testing.T) {
	p := newProcessor()
	_, decodeErr := p.Process(Config{Trust: identity.NewTrustSet(identity.Config{})}, []byte{0x01, 0x02})
	decodePerr, ok := decodeErr.(*ProcessorError)
	if !ok {
		t.Fatalf("decodeErr = %T, want *ProcessorError", decodeErr)
	}

	feed := feedIDFromString("ETH")
	payload, signer := buildPayload(t, feed, 100, 1_000)
	_, validateErr := p.Process(Config{
		Trust: identity.NewTrustSet(identity.Config{TrustedSigners: []protocol.SignerAddress{signer}}),
		Consensus: consensus.Config{
			Feeds:               []protocol.FeedID{feed},
			MaxTimestampDelayMs: 100,
			MaxTimestampAheadMs: 100,
			MinSignersPerFeed:   1,
		},
		BlockTimestampMs: 10_000,
	}, payload)
	validatePerr, ok := validateErr.(*ProcessorError)
	if !ok {
		t.Fatalf("validateErr = %T, want *ProcessorError", validateErr)
	}

	if decodePerr.Code() == validatePerr.Code() {
		t.Errorf("decode code %d should differ from validation code %d", decodePerr.Code(), validatePerr.Code())
	}
	if decodePerr.Code() < 1000 || decodePerr.Code() >= 2000 {
		t.Errorf("decode code %d not in [1000,2000)", decodePerr.Code())
	}
	if validatePerr.Code() < 2000 {
		t.Errorf("validation code %d not >= 2000", validatePerr.Code())
	}
}

func TestProcessStatsAccumulateAcrossCalls(t *testing.T) {
	feed := feedIDFromString("ETH")
	good, signer := buildPayload(t, feed, 100, 10_000)

	p := newProcessor()
	cfg := Config{
		Trust: identity.NewTrustSet(identity.Config{TrustedSigners: []protocol.SignerAddress{signer}}),
		Consensus: consensus.Config{
			Feeds:               []protocol.FeedID{feed},
			MaxTimestampDelayMs: 1000,
			MaxTimestampAheadMs: 1000,
			MinSignersPerFeed:   1,
		},
		BlockTimestampMs: 10_000,
	}

	if _, err := p.Process(cfg, good); err != nil {
		t.Fatalf("Process(good): %v", err)
	}
	if _, err := p.Process(cfg, []byte{0xde, 0xad}); err == nil {
		t.Fatal("Process(bad): expected error, got nil")
	}

	stats := p.Stats()
	if stats.TotalProcessed != 2 || stats.SuccessfulCount != 1 || stats.FailedCount != 1 {
		t.Errorf("stats = %+v, want {TotalProcessed:2 SuccessfulCount:1 FailedCount:1}", stats)
	}
}
