package consensus

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/powerloom/redstone-processor/pkgs/protocol"
)

func TestAggregateSingleSigner(t *testing.T) {
	feed := feedID(1)
	values := FeedValues{
		feed: {
			common.HexToAddress("0x1111111111111111111111111111111111111111"): uint256.NewInt(42),
		},
	}
	out := Aggregate(values, []protocol.FeedID{feed})
	if !out[0].Eq(uint256.NewInt(42)) {
		t.Errorf("got %s, want 42", out[0])
	}
}

func TestAggregateOddCountMedian(t *testing.T) {
	feed := feedID(2)
	values := FeedValues{
		feed: {
			common.HexToAddress("0x1111111111111111111111111111111111111111"): uint256.NewInt(10),
			common.HexToAddress("0x2222222222222222222222222222222222222222"): uint256.NewInt(30),
			common.HexToAddress("0x3333333333333333333333333333333333333333"): uint256.NewInt(20),
		},
	}
	out := Aggregate(values, []protocol.FeedID{feed})
	if !out[0].Eq(uint256.NewInt(20)) {
		t.Errorf("got %s, want 20", out[0])
	}
}

func TestAggregateEvenCountAveragesMiddlePair(t *testing.T) {
	feed := feedID(3)
	values := FeedValues{
		feed: {
			common.HexToAddress("0x1111111111111111111111111111111111111111"): uint256.NewInt(10),
			common.HexToAddress("0x2222222222222222222222222222222222222222"): uint256.NewInt(20),
			common.HexToAddress("0x3333333333333333333333333333333333333333"): uint256.NewInt(30),
			common.HexToAddress("0x4444444444444444444444444444444444444444"): uint256.NewInt(40),
		},
	}
	out := Aggregate(values, []protocol.FeedID{feed})
	if !out[0].Eq(uint256.NewInt(25)) {
		t.Errorf("got %s, want 25", out[0])
	}
}

func TestAggregateOrdersResultsByRequestedFeeds(t *testing.T) {
	feedA := feedID(4)
	feedB := feedID(5)
	values := FeedValues{
		feedA: {
			common.HexToAddress("0x1111111111111111111111111111111111111111"): uint256.NewInt(1),
		},
		feedB: {
			common.HexToAddress("0x2222222222222222222222222222222222222222"): uint256.NewInt(2),
		},
	}

	out := Aggregate(values, []protocol.FeedID{feedB, feedA})
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if !out[0].Eq(uint256.NewInt(2)) {
		t.Errorf("out[0] (feedB) = %s, want 2", out[0])
	}
	if !out[1].Eq(uint256.NewInt(1)) {
		t.Errorf("out[1] (feedA) = %s, want 1", out[1])
	}
}

func TestAggregateRequestedFeedAbsentFromValuesYieldsNil(t *testing.T) {
	feed := feedID(6)
	out := Aggregate(FeedValues{}, []protocol.FeedID{feed})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0] != nil {
		t.Errorf("out[0] = %v, want nil", out[0])
	}
}
