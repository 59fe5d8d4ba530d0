package consensus

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/powerloom/redstone-processor/pkgs/numeric"
	"github.com/powerloom/redstone-processor/pkgs/protocol"
)

// Aggregate reduces each requested feed's surviving signer values to a
// single sorted-median value, returned in the order of feeds — the
// order a caller's Config.Feeds list specifies. A feed with no surviving
// values (only possible if the caller bypassed CheckQuorum) gets a nil
// entry rather than a panic.
func Aggregate(values FeedValues, feeds []protocol.FeedID) []*uint256.Int {
	out := make([]*uint256.Int, len(feeds))
	for i, feed := range feeds {
		signers := values[feed]
		if len(signers) == 0 {
			continue
		}
		vals := make([]*uint256.Int, 0, len(signers))
		for _, v := range signers {
			vals = append(vals, v)
		}
		sort.Slice(vals, func(i, j int) bool { return vals[i].Lt(vals[j]) })
		out[i] = numeric.Median(vals)
	}
	return out
}
