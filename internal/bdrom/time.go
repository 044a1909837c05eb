package bdrom

import (
	"fmt"
	"math"
	"time"
)

const (
	// TicksPerSecond is the playlist and clip-info time base.
	TicksPerSecond = 45000
	// PTSClock is the PES timestamp time base.
	PTSClock = 90000
	// PTSWrap is the modulus of 33-bit PTS/DTS values.
	PTSWrap = uint64(1) << 33
	// PacketSize is one BDAV source packet: 4-byte timecode + 188-byte TS packet.
	PacketSize = 192
)

// Ticks counts 45 kHz time units.
type Ticks uint64

// Seconds converts to seconds.
func (t Ticks) Seconds() float64 { return float64(t) / TicksPerSecond }

// Duration converts to a time.Duration.
func (t Ticks) Duration() time.Duration {
	return time.Duration(uint64(t) * uint64(time.Second) / TicksPerSecond)
}

// PTS converts to the 90 kHz PES clock.
func (t Ticks) PTS() uint64 { return uint64(t) * 2 }

// SecondsToTicks is the exact inverse of Ticks.Seconds for any tick count
// representable in a float64 mantissa.
func SecondsToTicks(seconds float64) Ticks {
	if seconds <= 0 {
		return 0
	}
	return Ticks(math.Round(seconds * TicksPerSecond))
}

// PTSDelta returns end-start on the 33-bit PTS clock, assuming at most one
// wrap between the two samples.
func PTSDelta(start, end uint64) uint64 {
	start &= PTSWrap - 1
	end &= PTSWrap - 1
	if end < start {
		end += PTSWrap
	}
	return end - start
}

// FormatLength renders seconds as h:mm:ss.fff.
func FormatLength(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}
