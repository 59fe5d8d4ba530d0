package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestReaderTrimEndOrder(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	r := NewReader(buf)

	tail, err := r.TrimEnd(2)
	if err != nil {
		t.Fatalf("TrimEnd(2): %v", err)
	}
	if !bytes.Equal(tail, []byte{0x04, 0x05}) {
		t.Errorf("tail = %x, want 0405", tail)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}

	rest, err := r.TrimEnd(3)
	if err != nil {
		t.Fatalf("TrimEnd(3): %v", err)
	}
	if !bytes.Equal(rest, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("rest = %x, want 010203", rest)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestReaderTrimEndInsufficientBytes(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	_, err := r.TrimEnd(3)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var target ErrInsufficientBytes
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want ErrInsufficientBytes", err)
	}
	if target.Requested != 3 || target.Remaining != 2 {
		t.Errorf("target = %+v, want {Requested:3 Remaining:2}", target)
	}
}

func TestReaderTrimEndUint64BigEndian(t *testing.T) {
	r := NewReader([]byte{0xAA, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02})
	v, err := r.TrimEndUint64(2)
	if err != nil {
		t.Fatalf("TrimEndUint64(2): %v", err)
	}
	if v != 0x0102 {
		t.Errorf("v = %d, want 0x0102", v)
	}

	v, err = r.TrimEndUint64(5)
	if err != nil {
		t.Fatalf("TrimEndUint64(5): %v", err)
	}
	if v != 0 {
		t.Errorf("v = %d, want 0", v)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestReaderTrimEndUint64TooWide(t *testing.T) {
	r := NewReader(make([]byte, 16))
	_, err := r.TrimEndUint64(9)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err != ErrSizeNotSupported(9) {
		t.Errorf("err = %v, want ErrSizeNotSupported(9)", err)
	}
}

func TestReaderAssertEmpty(t *testing.T) {
	r := NewReader([]byte{})
	if err := r.AssertEmpty(); err != nil {
		t.Errorf("AssertEmpty() = %v, want nil", err)
	}

	r2 := NewReader([]byte{0x01})
	err := r2.AssertEmpty()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var target ErrNonEmptyRemainder
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want ErrNonEmptyRemainder", err)
	}
	if len(target.Remaining) != 1 {
		t.Errorf("len(Remaining) = %d, want 1", len(target.Remaining))
	}
}

func TestReaderRemainingDoesNotCopy(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03}
	r := NewReader(buf)
	remaining := r.Remaining()
	if !bytes.Equal(buf, remaining) {
		t.Errorf("Remaining() = %x, want %x", remaining, buf)
	}
}
