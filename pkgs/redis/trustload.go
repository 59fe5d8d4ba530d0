package redis

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	goredis "github.com/go-redis/redis/v8"

	"github.com/powerloom/redstone-processor/pkgs/consensus"
	"github.com/powerloom/redstone-processor/pkgs/identity"
)

// LoadTrustConfig reads a namespace's trust set and validation config from
// Redis, the way a deployment rolls out a new trusted signer or quorum
// threshold without redeploying the service. Missing keys leave the
// corresponding field at its zero value; callers typically merge the
// result over an env-derived default rather than requiring every key to
// be present.
func LoadTrustConfig(ctx context.Context, client *goredis.Client, kb *KeyBuilder, feedIDHexes []string) (identity.Config, consensus.Config, error) {
	var identCfg identity.Config
	var consCfg consensus.Config

	signers, err := client.SMembers(ctx, kb.TrustedSigners()).Result()
	if err != nil && err != goredis.Nil {
		return identCfg, consCfg, err
	}
	identCfg.TrustedSigners = toAddresses(signers)

	if len(feedIDHexes) > 0 {
		identCfg.PerFeedSigners = make(map[string][]common.Address, len(feedIDHexes))
		for _, feedIDHex := range feedIDHexes {
			members, err := client.SMembers(ctx, kb.FeedSigners(feedIDHex)).Result()
			if err != nil && err != goredis.Nil {
				return identCfg, consCfg, err
			}
			if len(members) > 0 {
				identCfg.PerFeedSigners[feedIDHex] = toAddresses(members)
			}
		}
	}

	snapshot, err := client.HGetAll(ctx, kb.ConfigSnapshot()).Result()
	if err != nil && err != goredis.Nil {
		return identCfg, consCfg, err
	}
	if v, ok := snapshot["max_timestamp_delay_ms"]; ok {
		consCfg.MaxTimestampDelayMs, _ = strconv.ParseUint(v, 10, 64)
	}
	if v, ok := snapshot["max_timestamp_ahead_ms"]; ok {
		consCfg.MaxTimestampAheadMs, _ = strconv.ParseUint(v, 10, 64)
	}
	if v, ok := snapshot["min_signers_per_feed"]; ok {
		consCfg.MinSignersPerFeed, _ = strconv.Atoi(v)
	}

	return identCfg, consCfg, nil
}

func toAddresses(raw []string) []common.Address {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		out = append(out, common.HexToAddress(s))
	}
	return out
}
