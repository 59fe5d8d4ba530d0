// Package crypto recovers a RedStone data package's signer address from its
// secp256k1 ECDSA recoverable signature: ecrecover the public key from the
// signed bytes and signature, then keccak256 the public key and take the
// low 20 bytes.
package crypto

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignatureLength is returned when a signature isn't the expected
// 65-byte (r || s || v) recoverable form.
type ErrBadSignatureLength int

func (e ErrBadSignatureLength) Error() string {
	return fmt.Sprintf("invalid signature length: %d, expected 65", int(e))
}

// ErrBadRecoveryByte is returned when v is neither {27, 28} nor {0, 1}.
type ErrBadRecoveryByte byte

func (e ErrBadRecoveryByte) Error() string {
	return fmt.Sprintf("invalid recovery id: got %d, expected 0, 1, 27 or 28", byte(e))
}

// RecoverAddress recovers the signer's address from a message hash and a
// 65-byte recoverable ECDSA signature (r || s || v). v may be given in
// either the Ethereum convention ({27, 28}) or the raw convention ({0, 1});
// both are normalized to {0, 1} before recovery, per the RedStone wire
// format's signature encoding.
func RecoverAddress(msgHash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, ErrBadSignatureLength(len(signature))
	}

	v := signature[64]
	switch {
	case v == 27 || v == 28:
		v -= 27
	case v == 0 || v == 1:
		// already normalized
	default:
		return common.Address{}, ErrBadRecoveryByte(v)
	}

	normalized := make([]byte, 65)
	copy(normalized, signature[:64])
	normalized[64] = v

	pubKeyRaw, err := crypto.Ecrecover(msgHash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover failed (recovery_id=%d): %w", v, err)
	}

	pubKey, err := crypto.UnmarshalPubkey(pubKeyRaw)
	if err != nil {
		return common.Address{}, fmt.Errorf("pubkey unmarshal failed (len=%d): %w", len(pubKeyRaw), err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// RecoverSignerAddress computes keccak256(signableBytes) and recovers the
// signer address from it and signature. This is the RedStone signing
// scheme: the digest is keccak256 of the package's raw wire bytes in
// signable order, not an EIP-712 typed-data hash.
func RecoverSignerAddress(signableBytes, signature []byte) (common.Address, error) {
	digest := crypto.Keccak256(signableBytes)
	return RecoverAddress(digest, signature)
}

// Keccak256 exposes the hash primitive signer recovery is built on, so
// callers that only need the digest (e.g. tests) don't have to import
// go-ethereum/crypto directly.
func Keccak256(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(data))
	return out
}
