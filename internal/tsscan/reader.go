package tsscan

import (
	"errors"
	"io"

	"bdscan/internal/bdrom"
)

const (
	packetSize = bdrom.PacketSize
	// syncOffset is the position of the 0x47 sync byte inside a source packet.
	syncOffset = 4
	syncByte   = 0x47
	readChunk  = packetSize * 1024
)

// packetReader hands out 192-byte source packets from r and can slide
// forward byte-wise to recover sync.
type packetReader struct {
	r      io.Reader
	buf    []byte
	start  int
	end    int
	offset int64 // file offset of buf[start]
	eof    bool
	err    error
}

func newPacketReader(r io.Reader) *packetReader {
	return &packetReader{r: r, buf: make([]byte, readChunk+3*packetSize)}
}

// fill tries to make at least need bytes available. It reports false when
// fewer are left before end of file or a read error.
func (p *packetReader) fill(need int) bool {
	for p.end-p.start < need {
		if p.eof || p.err != nil {
			return false
		}
		if p.start > 0 {
			n := copy(p.buf, p.buf[p.start:p.end])
			p.start, p.end = 0, n
		}
		if p.end == len(p.buf) {
			grown := make([]byte, len(p.buf)*2)
			copy(grown, p.buf[:p.end])
			p.buf = grown
		}
		n, err := p.r.Read(p.buf[p.end:])
		p.end += n
		if errors.Is(err, io.EOF) {
			p.eof = true
		} else if err != nil {
			p.err = err
		}
	}
	return true
}

func (p *packetReader) available() int { return p.end - p.start }

// peek returns the next packet without consuming it.
func (p *packetReader) peek() []byte { return p.buf[p.start : p.start+packetSize] }

func (p *packetReader) advance(n int) {
	if n > p.available() {
		n = p.available()
	}
	p.start += n
	p.offset += int64(n)
}

// synced reports whether the packet at the current position has a sync byte.
func (p *packetReader) synced() bool {
	return p.buf[p.start+syncOffset] == syncByte
}

// resync looks for the next sync byte within one packet of the current
// position that is confirmed by sync bytes one and two packets later. On
// success the reader is positioned at the start of that packet. On failure
// one packet worth of data is skipped.
func (p *packetReader) resync() bool {
	p.fill(4 * packetSize)
	window := p.buf[p.start:p.end]
	for i := syncOffset + 1; i <= syncOffset+packetSize && i < len(window); i++ {
		if window[i] != syncByte || !confirmed(window, i) {
			continue
		}
		p.advance(i - syncOffset)
		return true
	}
	p.advance(packetSize)
	return false
}

// confirmed checks the sync bytes at one and two packet strides that are
// still inside the buffered data.
func confirmed(window []byte, at int) bool {
	for _, next := range []int{at + packetSize, at + 2*packetSize} {
		if next < len(window) && window[next] != syncByte {
			return false
		}
	}
	return true
}
