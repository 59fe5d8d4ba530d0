package identity

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/powerloom/redstone-processor/pkgs/protocol"
)

func TestCachingRecovererReturnsCachedAddressWithoutReinvokingRecover(t *testing.T) {
	calls := 0
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	recover := func(signableBytes, signature []byte) (protocol.SignerAddress, error) {
		calls++
		return addr, nil
	}

	c := NewCachingRecoverer(recover, 16)

	signable := []byte("signable")
	signature := []byte("signature")

	got1, err := c.RecoverSignerAddress(signable, signature)
	if err != nil {
		t.Fatalf("RecoverSignerAddress: %v", err)
	}
	if got1 != addr {
		t.Errorf("got1 = %s, want %s", got1, addr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	got2, err := c.RecoverSignerAddress(signable, signature)
	if err != nil {
		t.Fatalf("RecoverSignerAddress: %v", err)
	}
	if got2 != addr {
		t.Errorf("got2 = %s, want %s", got2, addr)
	}
	if calls != 1 {
		t.Errorf("calls = %d after second identical call, want 1 (cache hit)", calls)
	}
}

func TestCachingRecovererDisabledWithNonPositiveSize(t *testing.T) {
	calls := 0
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	recover := func(signableBytes, signature []byte) (protocol.SignerAddress, error) {
		calls++
		return addr, nil
	}

	c := NewCachingRecoverer(recover, 0)

	if _, err := c.RecoverSignerAddress([]byte("a"), []byte("b")); err != nil {
		t.Fatalf("RecoverSignerAddress: %v", err)
	}
	if _, err := c.RecoverSignerAddress([]byte("a"), []byte("b")); err != nil {
		t.Fatalf("RecoverSignerAddress: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (caching disabled means every call falls through)", calls)
	}
}

func TestCachingRecovererPropagatesError(t *testing.T) {
	recover := func(signableBytes, signature []byte) (protocol.SignerAddress, error) {
		return protocol.SignerAddress{}, errBoom
	}
	c := NewCachingRecoverer(recover, 16)

	_, err := c.RecoverSignerAddress([]byte("a"), []byte("b"))
	if err != errBoom {
		t.Errorf("err = %v, want %v", err, errBoom)
	}
}

var errBoom = errSentinel("boom")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
