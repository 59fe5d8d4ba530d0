package numeric

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestWidenLeftPads(t *testing.T) {
	v := Widen([]byte{0x01, 0x02})
	if !v.Eq(uint256.NewInt(0x0102)) {
		t.Errorf("Widen = %s, want 0x0102", v)
	}
}

func TestWidenTruncatesOverlongInput(t *testing.T) {
	overlong := make([]byte, 40)
	overlong[39] = 0x7
	v := Widen(overlong)
	if !v.Eq(uint256.NewInt(7)) {
		t.Errorf("Widen = %s, want 7", v)
	}
}

func TestAvgNoOverflow(t *testing.T) {
	max := new(uint256.Int).Not(uint256.NewInt(0)) // 2^256 - 1
	got := Avg(max, max)
	if !got.Eq(max) {
		t.Errorf("avg(max, max) = %s, want %s", got, max)
	}
}

func TestAvgEvenSplit(t *testing.T) {
	a := uint256.NewInt(10)
	b := uint256.NewInt(20)
	got := Avg(a, b)
	if !got.Eq(uint256.NewInt(15)) {
		t.Errorf("Avg(10, 20) = %s, want 15", got)
	}
}

func TestAvgRoundsDown(t *testing.T) {
	a := uint256.NewInt(10)
	b := uint256.NewInt(11)
	got := Avg(a, b)
	if !got.Eq(uint256.NewInt(10)) {
		t.Errorf("Avg(10, 11) = %s, want 10", got)
	}
}

func TestMedianOdd(t *testing.T) {
	sorted := []*uint256.Int{uint256.NewInt(1), uint256.NewInt(5), uint256.NewInt(9)}
	if got := Median(sorted); !got.Eq(uint256.NewInt(5)) {
		t.Errorf("Median = %s, want 5", got)
	}
}

func TestMedianEven(t *testing.T) {
	sorted := []*uint256.Int{uint256.NewInt(1), uint256.NewInt(3), uint256.NewInt(5), uint256.NewInt(7)}
	if got := Median(sorted); !got.Eq(uint256.NewInt(4)) {
		t.Errorf("Median = %s, want 4", got)
	}
}

func TestMedianSingleValue(t *testing.T) {
	sorted := []*uint256.Int{uint256.NewInt(42)}
	if got := Median(sorted); !got.Eq(uint256.NewInt(42)) {
		t.Errorf("Median = %s, want 42", got)
	}
}
