package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestRecoverAddressRoundTrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	want := crypto.PubkeyToAddress(priv.PublicKey)

	msg := []byte("redstone signable bytes")
	digest := crypto.Keccak256(msg)

	sig, err := crypto.Sign(digest, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("len(sig) = %d, want 65", len(sig))
	}

	got, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRecoverAddressAcceptsEthereumVRecovery(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	want := crypto.PubkeyToAddress(priv.PublicKey)

	digest := crypto.Keccak256([]byte("some message"))
	sig, err := crypto.Sign(digest, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ethSig := append([]byte{}, sig...)
	ethSig[64] += 27

	got, err := RecoverAddress(digest, ethSig)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRecoverAddressBadLength(t *testing.T) {
	_, err := RecoverAddress(make([]byte, 32), make([]byte, 64))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, ok := err.(ErrBadSignatureLength); !ok {
		t.Errorf("err = %T, want ErrBadSignatureLength", err)
	}
}

func TestRecoverAddressBadRecoveryByte(t *testing.T) {
	sig := make([]byte, 65)
	sig[64] = 9
	_, err := RecoverAddress(make([]byte, 32), sig)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, ok := err.(ErrBadRecoveryByte); !ok {
		t.Errorf("err = %T, want ErrBadRecoveryByte", err)
	}
}

func TestRecoverSignerAddressHashesInput(t *testing.T) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	want := crypto.PubkeyToAddress(priv.PublicKey)

	signable := []byte{0x01, 0x02, 0x03}
	digest := crypto.Keccak256(signable)
	sig, err := crypto.Sign(digest, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := RecoverSignerAddress(signable, sig)
	if err != nil {
		t.Fatalf("RecoverSignerAddress: %v", err)
	}
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
