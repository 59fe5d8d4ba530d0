package wire

import "fmt"

// ErrInsufficientBytes is returned when a trailer read asks for more bytes
// than remain in the buffer.
type ErrInsufficientBytes struct {
	Requested int
	Remaining int
}

func (e ErrInsufficientBytes) Error() string {
	return fmt.Sprintf("insufficient bytes: requested %d, %d remaining", e.Requested, e.Remaining)
}

// ErrSizeNotSupported is returned when a fixed-width numeric field is read
// wider than the domain it's being decoded into supports.
type ErrSizeNotSupported int

func (e ErrSizeNotSupported) Error() string {
	return fmt.Sprintf("size not supported: %d", int(e))
}

// ErrNonEmptyRemainder is returned when bytes are left over after a
// structural parse that expected to consume the whole buffer.
type ErrNonEmptyRemainder struct {
	Remaining []byte
}

func (e ErrNonEmptyRemainder) Error() string {
	return fmt.Sprintf("non empty payload remainder: %d bytes", len(e.Remaining))
}

// Reader is a bounded reader over an immutable byte slice that drains from
// the tail: the RedStone wire format puts sizes and counts at the end of
// each framed region, so consumers read backwards from there. All reads
// are bounded by the remaining length; no read may straddle the buffer.
type Reader struct {
	buf []byte
}

// NewReader wraps buf for trailer-first reading. It does not copy buf; the
// caller must not mutate it while the Reader is in use.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unconsumed bytes.
func (r *Reader) Len() int {
	return len(r.buf)
}

// Remaining returns the unconsumed bytes. The caller must not mutate it.
func (r *Reader) Remaining() []byte {
	return r.buf
}

// TrimEnd removes and returns the last n bytes of the remaining buffer.
func (r *Reader) TrimEnd(n int) ([]byte, error) {
	if n > len(r.buf) {
		return nil, ErrInsufficientBytes{Requested: n, Remaining: len(r.buf)}
	}
	split := len(r.buf) - n
	out := r.buf[split:]
	r.buf = r.buf[:split]
	return out, nil
}

// TrimEndUint64 consumes the last n bytes, interprets them big-endian, and
// zero-extends into a uint64. n must not exceed 8; a wider field would not
// fit the domain and is a protocol-integrity error.
func (r *Reader) TrimEndUint64(n int) (uint64, error) {
	if n > 8 {
		return 0, ErrSizeNotSupported(n)
	}
	b, err := r.TrimEnd(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, byt := range b {
		v = v<<8 | uint64(byt)
	}
	return v, nil
}

// TrimEndUint trims n bytes and zero-extends into an int, for use as a
// length/count field. n must not exceed 8.
func (r *Reader) TrimEndUint(n int) (int, error) {
	v, err := r.TrimEndUint64(n)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// AssertEmpty fails with ErrNonEmptyRemainder if any bytes remain.
func (r *Reader) AssertEmpty() error {
	if len(r.buf) != 0 {
		return ErrNonEmptyRemainder{Remaining: r.buf}
	}
	return nil
}
