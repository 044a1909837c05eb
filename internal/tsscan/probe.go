package tsscan

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"bdscan/internal/bdrom"
	"bdscan/internal/discfs"
	"bdscan/internal/logging"
)

// Probe reads at most limit bytes of a stream file and returns the streams
// declared by its first valid PMT, in PMT order.
func Probe(ctx context.Context, r io.Reader, limit int64) ([]*bdrom.Stream, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	pr := newPacketReader(r)
	var (
		pat, pmt sectionAssembler
		pmtPID   uint16
		hasPMT   bool
	)
	for n := 0; pr.fill(packetSize); n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !pr.synced() {
			pr.resync()
			continue
		}
		h, ok := decodeHeader(pr.peek()[syncOffset:])
		pr.advance(packetSize)
		if !ok || h.Payload == nil {
			continue
		}
		switch {
		case h.PID == pidPAT:
			for _, section := range pat.push(h.Payload, h.UnitStart) {
				if info, err := parsePAT(section); err == nil {
					pmtPID, hasPMT = info.PMTPID, true
				}
			}
		case hasPMT && h.PID == pmtPID:
			for _, section := range pmt.push(h.Payload, h.UnitStart) {
				info, err := parsePMT(section)
				if err != nil {
					continue
				}
				streams := make([]*bdrom.Stream, 0, len(info.Streams))
				for _, entry := range info.Streams {
					streams = append(streams, &bdrom.Stream{
						PID:         entry.PID,
						Type:        entry.Type,
						Language:    descriptorLanguage(entry.Descriptors),
						Descriptors: entry.Descriptors,
					})
				}
				return streams, nil
			}
		}
	}
	if pr.err != nil {
		return nil, pr.err
	}
	return nil, ErrNoPMT
}

// NewProbe adapts Probe to the structure phase. Probed streams fill in
// attributes the clip info lacks; files without clip info get their whole
// stream table from the PMT.
func NewProbe(limit int64, logger *slog.Logger) bdrom.StreamProbe {
	logger = logging.NewComponentLogger(logger, "tsscan")
	return func(ctx context.Context, fsys discfs.FileSystem, file *bdrom.StreamFile) error {
		f, err := fsys.Open(file.Path)
		if err != nil {
			return &bdrom.IOError{File: file.Name, Op: "open", Err: err}
		}
		defer f.Close()

		streams, err := Probe(ctx, f, limit)
		switch {
		case errors.Is(err, ErrNoPMT):
			if file.ClipInfo != nil {
				logger.Debug("no PMT in probe range", logging.File(file.Name))
				return nil
			}
			return &bdrom.ParseError{File: file.Name, Offset: -1, Reason: "probe", Err: err}
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &bdrom.IOError{File: file.Name, Op: "read", Err: err}
		}
		if file.Streams == nil {
			file.Streams = make(map[uint16]*bdrom.Stream, len(streams))
		}
		for _, s := range streams {
			if _, ok := file.Streams[s.PID]; !ok {
				file.Streams[s.PID] = s
			}
		}
		logger.Debug("stream file probed",
			logging.File(file.Name),
			logging.Int("streams", len(streams)),
		)
		return nil
	}
}
