// Package identity tracks which signer addresses a caller trusts for a
// given feed, and wraps signer recovery with an LRU cache so recovering
// the same signable bytes and signature again doesn't re-run ecrecover.
package identity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TrustSet answers whether a recovered signer is trusted for a feed.
// RedStone deployments typically trust the same signer set across all
// feeds, but the type supports per-feed overrides for deployments that
// don't.
type TrustSet struct {
	global   map[common.Address]struct{}
	perFeed  map[string]map[common.Address]struct{}
}

// Config configures a TrustSet. TrustedSigners applies to every feed;
// PerFeedSigners, keyed by feed ID hex, replaces TrustedSigners for
// specific feeds (its signers need not appear in TrustedSigners).
type Config struct {
	TrustedSigners []common.Address
	PerFeedSigners map[string][]common.Address
}

// NewTrustSet builds a TrustSet from cfg.
func NewTrustSet(cfg Config) *TrustSet {
	global := make(map[common.Address]struct{}, len(cfg.TrustedSigners))
	for _, a := range cfg.TrustedSigners {
		global[a] = struct{}{}
	}

	perFeed := make(map[string]map[common.Address]struct{}, len(cfg.PerFeedSigners))
	for feed, addrs := range cfg.PerFeedSigners {
		set := make(map[common.Address]struct{}, len(addrs))
		for _, a := range addrs {
			set[a] = struct{}{}
		}
		perFeed[strings.ToLower(feed)] = set
	}

	return &TrustSet{global: global, perFeed: perFeed}
}

// IsTrusted reports whether signer is trusted for feedIDHex. A per-feed
// override, when present, replaces the global set entirely for that feed.
func (t *TrustSet) IsTrusted(feedIDHex string, signer common.Address) bool {
	if set, ok := t.perFeed[strings.ToLower(feedIDHex)]; ok {
		_, trusted := set[signer]
		return trusted
	}
	_, trusted := t.global[signer]
	return trusted
}
