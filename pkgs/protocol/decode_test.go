package protocol

import (
	"crypto/ecdsa"
	"encoding/binary"
	"testing"

	gocrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/powerloom/redstone-processor/pkgs/crypto"
	"github.com/powerloom/redstone-processor/pkgs/wire"
)

// plainRecoverer adapts pkgs/crypto.RecoverSignerAddress to the Recoverer
// interface without the LRU wrapping pkgs/identity adds.
type plainRecoverer struct{}

func (plainRecoverer) RecoverSignerAddress(signableBytes, signature []byte) (SignerAddress, error) {
	return crypto.RecoverSignerAddress(signableBytes, signature)
}

type testPoint struct {
	feedID FeedID
	value  []byte // big-endian, padded to valueSize by the caller
}

func beUint(n, width int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf[8-width:]
}

// buildPackage returns one package's wire bytes, signed with priv.
func buildPackage(t *testing.T, points []testPoint, valueSize int, timestamp uint64, priv *ecdsa.PrivateKey) []byte {
	t.Helper()

	var pointsBuf []byte
	for _, p := range points {
		pointsBuf = append(pointsBuf, p.feedID[:]...)
		v := make([]byte, valueSize)
		copy(v[valueSize-len(p.value):], p.value)
		pointsBuf = append(pointsBuf, v...)
	}

	signable := append([]byte{}, pointsBuf...)
	signable = append(signable, beUint(int(timestamp), wire.TimestampBytes)...)
	signable = append(signable, beUint(valueSize, wire.DataPointValueSizeBytes)...)
	signable = append(signable, beUint(len(points), wire.DataPointsCountBytes)...)

	digest := gocrypto.Keccak256(signable)
	sig, err := gocrypto.Sign(digest, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	return append(append([]byte{}, signable...), sig...)
}

// buildPayload concatenates packages (already in wire/append order) with
// metadata and the trailer.
func buildPayload(packages [][]byte, metadata []byte) []byte {
	var out []byte
	for _, pkg := range packages {
		out = append(out, pkg...)
	}
	out = append(out, metadata...)
	out = append(out, beUint(len(metadata), wire.UnsignedMetadataSizeBytes)...)
	out = append(out, beUint(len(packages), wire.DataPackagesCountBytes)...)
	out = append(out, wire.RedstoneMarker[:]...)
	return out
}

func newTestKey(t *testing.T) (*ecdsa.PrivateKey, SignerAddress) {
	t.Helper()
	priv, err := gocrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := gocrypto.PubkeyToAddress(priv.PublicKey)
	return priv, addr
}

func feedIDFromString(s string) FeedID {
	var f FeedID
	copy(f[:], s)
	return f
}

func TestDecodePayloadSinglePackage(t *testing.T) {
	priv, addr := newTestKey(t)
	feed := feedIDFromString("ETH")

	pkg := buildPackage(t, []testPoint{{feedID: feed, value: []byte{0x01, 0x02}}}, 4, 1700000000000, priv)
	payload := buildPayload([][]byte{pkg}, []byte("meta"))

	packages, metadata, err := DecodePayload(payload, plainRecoverer{})
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if string(metadata) != "meta" {
		t.Errorf("metadata = %q, want %q", metadata, "meta")
	}
	if len(packages) != 1 {
		t.Fatalf("len(packages) = %d, want 1", len(packages))
	}
	if packages[0].Signer != addr {
		t.Errorf("Signer = %s, want %s", packages[0].Signer, addr)
	}
	if packages[0].Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d, want 1700000000000", packages[0].Timestamp)
	}
	if len(packages[0].Points) != 1 {
		t.Fatalf("len(Points) = %d, want 1", len(packages[0].Points))
	}
	if packages[0].Points[0].FeedID != feed {
		t.Errorf("FeedID = %x, want %x", packages[0].Points[0].FeedID, feed)
	}
	if packages[0].Points[0].Value.Uint64() != 0x0102 {
		t.Errorf("Value = %d, want 0x0102", packages[0].Points[0].Value.Uint64())
	}
}

func TestDecodePayloadPreservesWireOrder(t *testing.T) {
	priv1, addr1 := newTestKey(t)
	priv2, addr2 := newTestKey(t)
	feed := feedIDFromString("BTC")

	first := buildPackage(t, []testPoint{{feedID: feed, value: []byte{0x01}}}, 4, 1000, priv1)
	second := buildPackage(t, []testPoint{{feedID: feed, value: []byte{0x02}}}, 4, 2000, priv2)
	payload := buildPayload([][]byte{first, second}, nil)

	packages, _, err := DecodePayload(payload, plainRecoverer{})
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if len(packages) != 2 {
		t.Fatalf("len(packages) = %d, want 2", len(packages))
	}
	if packages[0].Signer != addr1 {
		t.Errorf("packages[0].Signer = %s, want %s", packages[0].Signer, addr1)
	}
	if packages[1].Signer != addr2 {
		t.Errorf("packages[1].Signer = %s, want %s", packages[1].Signer, addr2)
	}
}

func TestDecodePayloadWrongMarker(t *testing.T) {
	priv, _ := newTestKey(t)
	feed := feedIDFromString("ETH")
	pkg := buildPackage(t, []testPoint{{feedID: feed, value: []byte{0x01}}}, 4, 1000, priv)
	payload := buildPayload([][]byte{pkg}, nil)

	payload[len(payload)-1] ^= 0xFF

	_, _, err := DecodePayload(payload, plainRecoverer{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, ok := err.(ErrWrongMarker); !ok {
		t.Errorf("err = %T, want ErrWrongMarker", err)
	}
}

func TestDecodePayloadRejectsTruncatedPayload(t *testing.T) {
	_, _, err := DecodePayload(wire.RedstoneMarker[:5], plainRecoverer{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
