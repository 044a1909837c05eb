package tsscan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"bdscan/internal/bdrom"
	"bdscan/internal/language"
	"bdscan/internal/logging"
)

const (
	ptsHz = bdrom.PTSClock
	// tsPacketBytes is the transport packet without its 4-byte timecode.
	tsPacketBytes = packetSize - syncOffset
	// checkEvery is the packet interval between context checks and
	// progress updates.
	checkEvery = 1 << 12
	// maxClockGap is the largest PTS step treated as continuous playback.
	maxClockGap = 10 * ptsHz

	descriptorISO639 = 0x0A

	defaultResyncFailures = 16
)

// Options tune a scan.
type Options struct {
	// PeakWindow is the presentation-time window peak rates are measured
	// over (default 1s).
	PeakWindow time.Duration
	// MaxResyncFailures is the number of consecutive failed sync searches
	// after which the file is reported corrupted (default 16).
	MaxResyncFailures int
	// Progress, when set, is incremented with the bytes consumed.
	Progress *atomic.Int64
	Logger   *slog.Logger
}

// Target is one playlist clip whose counters the scanned file feeds.
type Target struct {
	Playlist *bdrom.Playlist
	Clip     *bdrom.StreamClip
}

// Job describes one stream-file scan.
type Job struct {
	File *bdrom.StreamFile
	// Name is the file name used in errors and logs; it defaults to File.Name.
	Name    string
	Targets []Target
}

// TargetsFor lists the clips of playlists that read from file.
func TargetsFor(file *bdrom.StreamFile, playlists []*bdrom.Playlist) []Target {
	var out []Target
	for _, pl := range playlists {
		for _, clip := range pl.StreamClips {
			if clip.StreamFile == file || (file != nil && clip.Name == file.Name) {
				out = append(out, Target{Playlist: pl, Clip: clip})
			}
		}
	}
	return out
}

// PIDStats are the file-level counters of one elementary PID.
type PIDStats struct {
	PID         uint16
	Type        bdrom.StreamType
	Language    string
	Descriptors []bdrom.Descriptor

	Packets uint64
	// Bytes counts whole 188-byte transport packets.
	Bytes uint64
	// Seconds is the presentation time the PID carried data.
	Seconds     float64
	PeakBitRate int64

	FirstPTS uint64
	LastPTS  uint64
	HasPTS   bool
}

// Result is the outcome of one file scan. Nothing in the disc model is
// touched until Commit.
type Result struct {
	File              *bdrom.StreamFile
	Name              string
	Measurements      bdrom.Measurements
	Streams           map[uint16]*PIDStats
	TransportStreamID uint16
	PMTPID            uint16
	PCRPID            uint16

	targets []*targetState
}

type targetState struct {
	Target
	packets uint64
	bytes   uint64
	ticks   uint64
	streams map[uint16]*streamDelta
}

type streamDelta struct {
	bytes   uint64
	packets uint64
	ticks   uint64
}

func (t *targetState) stream(pid uint16) *streamDelta {
	d, ok := t.streams[pid]
	if !ok {
		d = &streamDelta{}
		t.streams[pid] = d
	}
	return d
}

// Commit applies the scan counters to the stream file and to every target
// clip and playlist stream.
func (r *Result) Commit() {
	if r == nil {
		return
	}
	if f := r.File; f != nil {
		f.Measurements = r.Measurements
		if f.Streams == nil {
			f.Streams = make(map[uint16]*bdrom.Stream, len(r.Streams))
		}
		for pid, st := range r.Streams {
			s, ok := f.Streams[pid]
			if !ok {
				s = &bdrom.Stream{PID: pid, Type: st.Type, Language: st.Language, Descriptors: st.Descriptors}
				f.Streams[pid] = s
			}
			s.PayloadBytes = st.Bytes
			s.PacketCount = st.Packets
			s.PacketSeconds = st.Seconds
			s.PeakBitRate = st.PeakBitRate
			s.BitRate = bitRate(st.Bytes, r.Measurements.Length())
			s.ActiveBitRate = bitRate(st.Bytes, st.Seconds)
		}
	}
	for _, t := range r.targets {
		clip := t.Clip
		clip.PacketCount += t.packets
		clip.PayloadBytes += t.bytes
		clip.PacketSeconds += float64(t.ticks) / ptsHz
		streams := t.Playlist.Streams
		if clip.AngleIndex > 0 && clip.AngleIndex <= len(t.Playlist.AngleStreams) {
			streams = t.Playlist.AngleStreams[clip.AngleIndex-1]
		}
		for pid, d := range t.streams {
			s, ok := streams[pid]
			if !ok {
				continue
			}
			s.PayloadBytes += d.bytes
			s.PacketCount += d.packets
			s.PacketSeconds += float64(d.ticks) / ptsHz
			if st, ok := r.Streams[pid]; ok && st.PeakBitRate > s.PeakBitRate {
				s.PeakBitRate = st.PeakBitRate
			}
		}
	}
}

func bitRate(bytes uint64, seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(math.Round(float64(bytes) * 8 / seconds))
}

type pidState struct {
	stats   *PIDStats
	window  *peakWindow
	bytes   uint64
	packets uint64
	ticks   uint64
}

type scanner struct {
	opts   Options
	job    Job
	logger *slog.Logger
	res    *Result

	pids    map[uint16]*pidState
	order   []uint16
	pat     sectionAssembler
	pmt     sectionAssembler
	hasPMT  bool
	pmtPID  uint16
	pcrPID  uint16
	hasPCRP bool
	refPID  uint16
	hasRef  bool

	clock      uint64
	hasClock   bool
	elapsed    uint64
	pending    uint64 // packets since the last flush
	pendingAt  int64  // file offset of the first pending packet
	windowSize uint64

	lastPCR     uint64
	hasPCR      bool
	pcrBytes    uint64
	pcrTotal    uint64
	pcrTicks    uint64
	minRate     float64
	maxRate     float64
	consecutive int
}

// Scan reads a stream file to the end and measures it. A nil error means the
// file was read completely, though it may still contain corrupt packets.
func Scan(ctx context.Context, r io.Reader, job Job, opts Options) (*Result, error) {
	if job.Name == "" && job.File != nil {
		job.Name = job.File.Name
	}
	if opts.MaxResyncFailures <= 0 {
		opts.MaxResyncFailures = defaultResyncFailures
	}
	if opts.PeakWindow <= 0 {
		opts.PeakWindow = time.Second
	}
	s := &scanner{
		opts:       opts,
		job:        job,
		logger:     logging.NewComponentLogger(opts.Logger, "tsscan").With(logging.File(job.Name)),
		pids:       make(map[uint16]*pidState),
		windowSize: uint64(opts.PeakWindow.Seconds() * ptsHz),
		res: &Result{
			File:    job.File,
			Name:    job.Name,
			Streams: make(map[uint16]*PIDStats),
		},
	}
	for _, t := range job.Targets {
		s.res.targets = append(s.res.targets, &targetState{Target: t, streams: make(map[uint16]*streamDelta)})
	}
	if err := s.run(ctx, newPacketReader(r)); err != nil {
		return nil, err
	}
	s.finish()
	return s.res, nil
}

func (s *scanner) run(ctx context.Context, pr *packetReader) error {
	m := &s.res.Measurements
	var progress int64
	defer func() { s.addProgress(progress) }()

	for n := 0; ; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.addProgress(progress)
			progress = 0
		}
		if !pr.fill(packetSize) {
			if pr.err != nil {
				return &bdrom.IOError{File: s.job.Name, Op: "read", Err: pr.err}
			}
			if rest := pr.available(); rest > 0 {
				m.TruncatedBytes = int64(rest)
				progress += int64(rest)
				s.logger.Debug("truncated final packet", logging.Int("bytes", rest))
			}
			return nil
		}
		if !pr.synced() {
			m.CorruptPackets++
			at := pr.offset
			ok := pr.resync()
			progress += pr.offset - at
			if ok {
				m.Resyncs++
				s.consecutive = 0
				s.logger.Debug("resynchronized", logging.Int64("offset", at), logging.Int64("skipped_bytes", pr.offset-at))
				continue
			}
			s.consecutive++
			if s.consecutive >= s.opts.MaxResyncFailures {
				return &bdrom.ParseError{
					File:   s.job.Name,
					Offset: at,
					Reason: fmt.Sprintf("no packet sync after %d attempts", s.consecutive),
					Err:    ErrStreamCorrupted,
				}
			}
			continue
		}
		s.consecutive = 0
		s.packet(pr.peek()[syncOffset:], pr.offset)
		m.Packets++
		pr.advance(packetSize)
		progress += packetSize
	}
}

func (s *scanner) addProgress(n int64) {
	if s.opts.Progress != nil && n > 0 {
		s.opts.Progress.Add(n)
	}
}

func (s *scanner) packet(pkt []byte, offset int64) {
	h, ok := decodeHeader(pkt)
	if !ok {
		s.res.Measurements.CorruptPackets++
		return
	}
	if s.pending == 0 {
		s.pendingAt = offset
	}
	s.pending++
	s.pcrBytes += packetSize

	if h.HasPCR && (!s.hasPCRP || h.PID == s.pcrPID) {
		s.onPCR(h.PCR)
	}

	switch {
	case h.PID == pidPAT:
		s.onPAT(h)
		return
	case s.hasPMT && h.PID == s.pmtPID:
		s.onPMT(h)
		return
	case h.PID == pidNull:
		return
	}

	st := s.state(h.PID)
	st.stats.Packets++
	st.stats.Bytes += tsPacketBytes
	st.packets++
	st.bytes += tsPacketBytes
	if !h.UnitStart || h.Scrambled || h.Payload == nil {
		return
	}
	pts, _, hasPTS, _ := pesTimestamps(h.Payload)
	if !hasPTS {
		return
	}
	s.onPTS(h.PID, st, pts)
}

func (s *scanner) state(pid uint16) *pidState {
	st, ok := s.pids[pid]
	if !ok {
		st = &pidState{stats: &PIDStats{PID: pid}, window: newPeakWindow(s.windowSize)}
		s.pids[pid] = st
		s.order = append(s.order, pid)
	}
	return st
}

func (s *scanner) onPCR(pcr uint64) {
	if s.hasPCR {
		delta := pcrDelta(s.lastPCR, pcr)
		if delta > 0 && delta < 10*pcrHz {
			rate := float64(s.pcrBytes) * 8 * pcrHz / float64(delta)
			if s.minRate == 0 || rate < s.minRate {
				s.minRate = rate
			}
			if rate > s.maxRate {
				s.maxRate = rate
			}
			s.pcrTotal += s.pcrBytes
			s.pcrTicks += delta
		}
	}
	s.lastPCR, s.hasPCR = pcr, true
	s.pcrBytes = 0
}

func (s *scanner) onPAT(h tsHeader) {
	for _, section := range s.pat.push(h.Payload, h.UnitStart) {
		if !s.pat.changed(section) {
			continue
		}
		info, err := parsePAT(section)
		if err != nil {
			s.logger.Debug("ignoring PAT", logging.Error(err))
			s.pat.seen = false
			continue
		}
		s.res.TransportStreamID = info.TransportStreamID
		if !s.hasPMT || info.PMTPID != s.pmtPID {
			s.pmtPID, s.hasPMT = info.PMTPID, true
			s.pmt = sectionAssembler{}
			s.res.PMTPID = info.PMTPID
		}
	}
}

func (s *scanner) onPMT(h tsHeader) {
	for _, section := range s.pmt.push(h.Payload, h.UnitStart) {
		if !s.pmt.changed(section) {
			continue
		}
		info, err := parsePMT(section)
		if err != nil {
			s.logger.Debug("ignoring PMT", logging.Error(err))
			s.pmt.seen = false
			continue
		}
		s.pcrPID, s.hasPCRP = info.PCRPID, info.PCRPID != pidNull
		s.res.PCRPID = info.PCRPID
		for _, entry := range info.Streams {
			st := s.state(entry.PID)
			st.stats.Type = entry.Type
			st.stats.Descriptors = entry.Descriptors
			st.stats.Language = descriptorLanguage(entry.Descriptors)
		}
		s.chooseReference()
	}
}

// chooseReference picks the PID whose PTS drives the file clock: the PCR PID
// when it carries an elementary stream, else the first video PID.
func (s *scanner) chooseReference() {
	if s.hasRef {
		return
	}
	if st, ok := s.pids[s.pcrPID]; ok && s.hasPCRP && st.stats.Type.Known() {
		s.refPID, s.hasRef = s.pcrPID, true
		return
	}
	for _, pid := range s.order {
		if s.pids[pid].stats.Type.Kind() == bdrom.KindVideo {
			s.refPID, s.hasRef = pid, true
			return
		}
	}
}

func descriptorLanguage(descs []bdrom.Descriptor) string {
	for _, d := range descs {
		if d.Tag == descriptorISO639 && len(d.Value) >= 3 {
			return language.Normalize(string(d.Value[:3]))
		}
	}
	return ""
}

func (s *scanner) onPTS(pid uint16, st *pidState, pts uint64) {
	stats := st.stats
	if stats.HasPTS {
		if delta := bdrom.PTSDelta(stats.LastPTS, pts); delta < maxClockGap {
			st.ticks += delta
		}
	} else {
		stats.FirstPTS, stats.HasPTS = pts, true
	}
	stats.LastPTS = pts

	if !s.hasRef || pid != s.refPID {
		return
	}
	m := &s.res.Measurements
	if !m.HasPTS {
		m.FirstPTS, m.HasPTS = pts, true
	}
	m.LastPTS = pts

	if !s.hasClock {
		position := pts
		if s.job.File != nil {
			if est, ok := s.job.File.ClipInfo.PTSAtOffset(s.pendingAt); ok {
				position = est
			}
		}
		s.flush(position, 0)
		s.clock, s.hasClock = pts, true
		return
	}
	delta := bdrom.PTSDelta(s.clock, pts)
	if delta >= maxClockGap {
		delta = 0
	}
	s.flush(s.clock, delta)
	s.clock = pts
}

// flush attributes the counters gathered since the previous flush to every
// target covering position, then feeds the peak windows. ticks is the
// presentation time the flushed data spans.
func (s *scanner) flush(position, ticks uint64) {
	s.elapsed += ticks
	var bytes uint64
	for _, st := range s.pids {
		bytes += st.bytes
	}
	for _, t := range s.res.targets {
		if !t.Clip.Covers(position) {
			continue
		}
		t.packets += s.pending
		t.bytes += bytes
		t.ticks += ticks
		for pid, st := range s.pids {
			if st.bytes == 0 && st.ticks == 0 {
				continue
			}
			d := t.stream(pid)
			d.bytes += st.bytes
			d.packets += st.packets
			d.ticks += st.ticks
		}
	}
	for _, st := range s.pids {
		st.window.add(s.elapsed, st.bytes)
		st.stats.Seconds += float64(st.ticks) / ptsHz
		st.bytes, st.packets, st.ticks = 0, 0, 0
	}
	s.pending = 0
}

func (s *scanner) finish() {
	switch {
	case s.hasClock:
		s.flush(s.clock, 0)
	case s.job.File != nil && s.pending > 0:
		if est, ok := s.job.File.ClipInfo.PTSAtOffset(s.pendingAt); ok {
			s.flush(est, 0)
		}
	}
	m := &s.res.Measurements
	m.Scanned = true
	if s.pcrTicks > 0 {
		m.PCRSeconds = float64(s.pcrTicks) / pcrHz
		m.AverageRate = float64(s.pcrTotal) * 8 / m.PCRSeconds
		m.MinRate = s.minRate
		m.MaxRate = s.maxRate
	}
	for pid, st := range s.pids {
		st.stats.PeakBitRate = st.window.result()
		s.res.Streams[pid] = st.stats
	}
	if m.CorruptPackets > 0 {
		logging.WarnWithContext(s.logger, "stream file contains corrupt packets", "stream_corrupt_packets",
			logging.Alert("corrupt_packets"),
			logging.Uint64("corrupt_packets", m.CorruptPackets),
			logging.Uint64("resyncs", m.Resyncs),
			logging.String(logging.FieldImpact, "bitrates for this file may be slightly low"),
		)
	}
	s.logger.Debug("stream file scanned",
		logging.Uint64("packets", m.Packets),
		logging.Int("pids", len(s.pids)),
		logging.Float64("length_seconds", m.Length()),
		logging.Int64("average_bps", int64(m.AverageRate)),
	)
}

// SortedStats returns the PID statistics ordered by PID.
func (r *Result) SortedStats() []*PIDStats {
	out := make([]*PIDStats, 0, len(r.Streams))
	for _, st := range r.Streams {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}
