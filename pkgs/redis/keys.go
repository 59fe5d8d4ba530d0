// Package redis provides an optional store for the trust configuration a
// deployment loads at startup: the trusted signer set, its per-feed
// overrides and validation thresholds. It never caches payload bytes or decode
// results. KeyBuilder namespaces keys by deployment and checksums
// addresses for consistent lookups.
package redis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// KeyBuilder namespaces trust-set cache keys by deployment.
type KeyBuilder struct {
	Namespace string
}

// checksumAddress converts an Ethereum address to checksummed (EIP-55)
// format so cache keys are stable regardless of the case a caller
// supplies. Non-address identifiers pass through unchanged.
func checksumAddress(addr string) string {
	if addr == "" {
		return addr
	}
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}

// NewKeyBuilder creates a KeyBuilder namespaced to a deployment, e.g. a
// data market or environment name.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{Namespace: checksumAddress(namespace)}
}

// TrustedSigners returns the key for the namespace's global trusted
// signer set (a Redis SET of checksummed addresses).
func (kb *KeyBuilder) TrustedSigners() string {
	return fmt.Sprintf("%s:trust:signers", kb.Namespace)
}

// FeedSigners returns the key for a feed's signer override set (a Redis
// SET of checksummed addresses), keyed by feed ID hex.
func (kb *KeyBuilder) FeedSigners(feedIDHex string) string {
	return fmt.Sprintf("%s:trust:feed:%s:signers", kb.Namespace, feedIDHex)
}

// ConfigSnapshot returns the key for the namespace's cached validation
// Config (a Redis HASH: max_timestamp_delay_ms, max_timestamp_ahead_ms,
// min_signers_per_feed).
func (kb *KeyBuilder) ConfigSnapshot() string {
	return fmt.Sprintf("%s:trust:config", kb.Namespace)
}
