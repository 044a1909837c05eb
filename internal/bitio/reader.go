// Package bitio provides a big-endian bit and byte cursor over an in-memory
// buffer, used by the playlist, clip-info and transport-stream parsers.
//
// Reads past the end of the buffer do not panic. The first short read records
// ErrShortBuffer, every later read returns zero, and callers check Err once
// after decoding a structure.
package bitio

import (
	"errors"
	"fmt"
)

// ErrShortBuffer is reported when a read runs past the end of the data.
var ErrShortBuffer = errors.New("bitio: short buffer")

// Reader is a sticky-error cursor over a byte slice.
type Reader struct {
	data []byte
	pos  int
	bit  uint8
	err  error
}

// NewReader returns a cursor positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Len reports the total buffer size in bytes.
func (r *Reader) Len() int {
	return len(r.data)
}

// Pos returns the current byte offset. A partially consumed byte counts as
// the byte being read.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of whole bytes left after the cursor.
func (r *Reader) Remaining() int {
	if r.pos >= len(r.data) {
		return 0
	}
	n := len(r.data) - r.pos
	if r.bit != 0 {
		n--
	}
	return n
}

func (r *Reader) fail(want int) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, want, r.pos, len(r.data)-r.pos)
	}
}

// ReadBits reads n (<= 64) bits MSB first.
func (r *Reader) ReadBits(n uint) uint64 {
	if r.err != nil {
		return 0
	}
	if n > 64 {
		r.err = fmt.Errorf("bitio: cannot read %d bits at once", n)
		return 0
	}
	var value uint64
	for i := uint(0); i < n; i++ {
		if r.pos >= len(r.data) {
			r.fail(int((n - i + 7) / 8))
			return 0
		}
		bit := (r.data[r.pos] >> (7 - r.bit)) & 1
		value = value<<1 | uint64(bit)
		r.bit++
		if r.bit == 8 {
			r.bit = 0
			r.pos++
		}
	}
	return value
}

// ReadFlag reads a single bit as a bool.
func (r *Reader) ReadFlag() bool {
	return r.ReadBits(1) == 1
}

// Align advances to the next byte boundary.
func (r *Reader) Align() {
	if r.bit != 0 {
		r.bit = 0
		r.pos++
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	r.Align()
	if n < 0 || r.pos+n > len(r.data) {
		r.fail(n)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// ReadUint8 reads one byte, aligning first.
func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadUint16 reads a big-endian 16-bit value, aligning first.
func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// ReadUint32 reads a big-endian 32-bit value, aligning first.
func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ReadUint reads an n-byte big-endian unsigned integer (n <= 8).
func (r *Reader) ReadUint(n int) uint64 {
	if n > 8 {
		if r.err == nil {
			r.err = fmt.Errorf("bitio: cannot read %d-byte integer", n)
		}
		return 0
	}
	b := r.take(n)
	var value uint64
	for _, c := range b {
		value = value<<8 | uint64(c)
	}
	return value
}

// ReadBytes returns the next n bytes. The slice aliases the buffer.
func (r *Reader) ReadBytes(n int) []byte {
	return r.take(n)
}

// ReadString reads n bytes as a string.
func (r *Reader) ReadString(n int) string {
	return string(r.take(n))
}

// Skip advances n bytes, aligning first.
func (r *Reader) Skip(n int) {
	r.take(n)
}

// SkipBits advances n bits.
func (r *Reader) SkipBits(n uint) {
	for n > 64 {
		r.ReadBits(64)
		n -= 64
	}
	r.ReadBits(n)
}

// Seek moves the cursor to an absolute byte offset.
func (r *Reader) Seek(offset int) {
	if r.err != nil {
		return
	}
	if offset < 0 || offset > len(r.data) {
		r.err = fmt.Errorf("%w: seek to %d beyond %d bytes", ErrShortBuffer, offset, len(r.data))
		return
	}
	r.pos = offset
	r.bit = 0
}

// Sub returns a reader over the next n bytes and advances past them.
func (r *Reader) Sub(n int) *Reader {
	b := r.take(n)
	sub := NewReader(b)
	if b == nil {
		sub.err = r.err
	}
	return sub
}
