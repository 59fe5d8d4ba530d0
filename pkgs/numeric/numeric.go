// Package numeric widens the RedStone wire format's variable-width values
// into a single 256-bit unsigned domain so that values sharing a feed, but
// decoded from packages with different value_size, can be compared and
// averaged. It uses github.com/holiman/uint256, the library the wider
// example corpus already depends on for exactly this kind of fixed-width
// unsigned arithmetic.
package numeric

import "github.com/holiman/uint256"

// Widen left-pads big-endian bytes of up to 32 bytes into a uint256.Int.
// Longer inputs are truncated to their low 32 bytes, matching the wire
// format's MaxValueSize invariant (callers must enforce value_size <= 32
// before calling this).
func Widen(b []byte) *uint256.Int {
	v := new(uint256.Int)
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	return v.SetBytes(b)
}

// Avg computes floor((a+b)/2) without the intermediate overflow that
// (a+b)/2 would incur when a+b exceeds the 256-bit domain maximum:
//
//	avg(a,b) = (a>>1) + (b>>1) + ((a%2 + b%2)>>1)
//
// This is exact for all a, b in [0, 2^256-1].
func Avg(a, b *uint256.Int) *uint256.Int {
	halfA := new(uint256.Int).Rsh(a, 1)
	halfB := new(uint256.Int).Rsh(b, 1)

	remA := new(uint256.Int).And(a, uint256.NewInt(1))
	remB := new(uint256.Int).And(b, uint256.NewInt(1))
	carry := new(uint256.Int).Add(remA, remB)
	carry.Rsh(carry, 1)

	out := new(uint256.Int).Add(halfA, halfB)
	out.Add(out, carry)
	return out
}

// Median returns the median of a non-empty, ascending-sorted slice of
// widened values. For an odd count it's the middle element; for an even
// count it's the overflow-free average of the two middle elements.
func Median(sorted []*uint256.Int) *uint256.Int {
	n := len(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return Avg(sorted[mid-1], sorted[mid])
}
