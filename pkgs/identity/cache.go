package identity

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/powerloom/redstone-processor/pkgs/crypto"
	"github.com/powerloom/redstone-processor/pkgs/protocol"
)

// recoverFunc matches pkgs/crypto.RecoverSignerAddress's signature, so
// CachingRecoverer can be built in tests against a stub without importing
// the real ecrecover path.
type recoverFunc = func(signableBytes, signature []byte) (protocol.SignerAddress, error)

// CachingRecoverer wraps a signer-recovery function with an LRU cache
// keyed by the digest of the signable bytes and signature, so recovering
// the exact same (signable bytes, signature) pair again is served from
// memory instead of re-run. Packages that differ in any signable byte or
// in their signature get separate entries.
type CachingRecoverer struct {
	recover recoverFunc
	cache   *lru.Cache[[32]byte, protocol.SignerAddress]
}

// NewCachingRecoverer builds a CachingRecoverer with room for size
// entries. size <= 0 disables caching and every call falls through to
// recover.
func NewCachingRecoverer(recover recoverFunc, size int) *CachingRecoverer {
	if size <= 0 {
		return &CachingRecoverer{recover: recover}
	}
	cache, err := lru.New[[32]byte, protocol.SignerAddress](size)
	if err != nil {
		// Only returned by golang-lru for a non-positive size, already
		// excluded above.
		return &CachingRecoverer{recover: recover}
	}
	return &CachingRecoverer{recover: recover, cache: cache}
}

// RecoverSignerAddress satisfies pkgs/protocol.Recoverer.
func (c *CachingRecoverer) RecoverSignerAddress(signableBytes, signature []byte) (protocol.SignerAddress, error) {
	if c.cache == nil {
		return c.recover(signableBytes, signature)
	}

	key := cacheKey(signableBytes, signature)
	if addr, ok := c.cache.Get(key); ok {
		return addr, nil
	}

	addr, err := c.recover(signableBytes, signature)
	if err != nil {
		return protocol.SignerAddress{}, err
	}
	c.cache.Add(key, addr)
	return addr, nil
}

// DefaultCachingRecoverer wraps pkgs/crypto.RecoverSignerAddress, the
// production secp256k1 recovery path.
func DefaultCachingRecoverer(size int) *CachingRecoverer {
	return NewCachingRecoverer(crypto.RecoverSignerAddress, size)
}

func cacheKey(signableBytes, signature []byte) [32]byte {
	digest := crypto.Keccak256(append(append([]byte{}, signableBytes...), signature...))
	return digest
}
