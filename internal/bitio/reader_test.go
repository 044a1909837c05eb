package bitio

import (
	"errors"
	"testing"
)

func TestReadBitsAcrossBytes(t *testing.T) {
	r := NewReader([]byte{0b1010_1100, 0b0101_0011})
	tests := []struct {
		n    uint
		want uint64
	}{
		{1, 1},
		{3, 0b010},
		{6, 0b1100_01},
		{6, 0b01_0011},
	}
	for _, tt := range tests {
		if got := r.ReadBits(tt.n); got != tt.want {
			t.Fatalf("ReadBits(%d) = %b, want %b", tt.n, got, tt.want)
		}
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
}

func TestReadIntegersAlign(t *testing.T) {
	r := NewReader([]byte{0xFF, 0x12, 0x34, 0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03})
	r.ReadBits(3)
	if got := r.ReadUint16(); got != 0x1234 {
		t.Fatalf("ReadUint16 after partial byte = %#x, want 0x1234", got)
	}
	if got := r.ReadUint32(); got != 0xDEADBEEF {
		t.Fatalf("ReadUint32 = %#x", got)
	}
	if got := r.ReadUint(3); got != 0x010203 {
		t.Fatalf("ReadUint(3) = %#x", got)
	}
	if r.Remaining() != 0 {
		t.Fatalf("Remaining = %d, want 0", r.Remaining())
	}
}

func TestStickyShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	if got := r.ReadUint32(); got != 0 {
		t.Fatalf("short ReadUint32 = %d, want 0", got)
	}
	if !errors.Is(r.Err(), ErrShortBuffer) {
		t.Fatalf("Err = %v, want ErrShortBuffer", r.Err())
	}
	if got := r.ReadUint8(); got != 0 {
		t.Fatalf("read after error = %d, want 0", got)
	}
}

func TestSubAndSeek(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	r.Skip(1)
	sub := r.Sub(2)
	if sub.ReadUint16() != 0x0203 {
		t.Fatal("sub reader returned wrong bytes")
	}
	if r.ReadUint8() != 4 {
		t.Fatal("parent did not advance past sub range")
	}
	r.Seek(0)
	if r.ReadUint8() != 1 {
		t.Fatal("seek did not rewind")
	}
	r.Seek(10)
	if !errors.Is(r.Err(), ErrShortBuffer) {
		t.Fatalf("seek past end err = %v", r.Err())
	}
}
