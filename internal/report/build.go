package report

import (
	"sort"

	"bdscan/internal/bdrom"
	"bdscan/internal/scan"
)

// Options select what Build includes.
type Options struct {
	Source      string
	Fingerprint string
	// Playlists limits the report to these names; empty means all.
	Playlists []string
	// IncludeInvalid keeps playlists the structure phase marked invalid.
	IncludeInvalid bool
}

// Build summarizes disc. res may be nil when no bitrate phase ran.
func Build(disc *bdrom.Disc, res *scan.Result, opts Options) *Report {
	r := &Report{
		Version:     SchemaVersion,
		Source:      opts.Source,
		VolumeLabel: disc.VolumeLabel,
		Title:       disc.Title(),
		Fingerprint: opts.Fingerprint,
		SizeBytes:   disc.Size,
		Flags: Flags{
			BDPlus: disc.IsBDPlus,
			BDJava: disc.IsBDJava,
			PSP:    disc.IsPSP,
			ThreeD: disc.Is3D,
			DBOX:   disc.IsDBOX,
			Is50Hz: disc.Is50Hz,
		},
	}

	selected := selectPlaylists(disc, opts)
	for _, pl := range selected {
		r.Playlists = append(r.Playlists, buildPlaylist(pl, disc.Options().EnableSSIF))
	}
	for _, group := range bdrom.GroupPlaylists(selected) {
		if len(group) < 2 {
			continue
		}
		names := make([]string, 0, len(group))
		for _, pl := range group {
			names = append(names, pl.Name)
		}
		r.Groups = append(r.Groups, names)
	}

	for _, f := range disc.StreamFilesBySize() {
		if !f.Measurements.Scanned {
			continue
		}
		m := f.Measurements
		r.StreamFiles = append(r.StreamFiles, StreamFile{
			Name:           f.Name,
			Size:           f.Size,
			Packets:        m.Packets,
			CorruptPackets: m.CorruptPackets,
			Resyncs:        m.Resyncs,
			TruncatedBytes: m.TruncatedBytes,
			LengthSeconds:  m.Length(),
			AverageRate:    m.AverageRate,
			MinRate:        m.MinRate,
			MaxRate:        m.MaxRate,
		})
	}

	if res != nil {
		r.Scan = buildOutcome(res)
	}
	return r
}

// selectPlaylists returns the requested playlists, longest first.
func selectPlaylists(disc *bdrom.Disc, opts Options) []*bdrom.Playlist {
	var out []*bdrom.Playlist
	if len(opts.Playlists) > 0 {
		want := make(map[string]bool, len(opts.Playlists))
		for _, name := range opts.Playlists {
			want[bdrom.RegistryName(name, ".MPLS")] = true
		}
		for _, pl := range disc.SortedPlaylists() {
			if want[pl.Name] {
				out = append(out, pl)
			}
		}
	} else {
		for _, pl := range disc.SortedPlaylists() {
			if pl.IsValid || opts.IncludeInvalid {
				out = append(out, pl)
			}
		}
	}
	bdrom.SortPlaylists(out)
	return out
}

func buildPlaylist(pl *bdrom.Playlist, ssif bool) Playlist {
	out := Playlist{
		Name:            pl.Name,
		Valid:           pl.IsValid,
		InvalidReason:   pl.InvalidReason,
		LengthSeconds:   pl.TotalLength(),
		Length:          bdrom.FormatLength(pl.TotalLength()),
		FileSize:        pl.FileSize(),
		MeasuredBytes:   pl.TotalSize(),
		BitRate:         pl.BitRate(),
		StreamBitRate:   pl.StreamBitRate(),
		HasHiddenTracks: pl.HasHiddenTracks(),
		HasLoops:        pl.HasLoops,
		AngleCount:      pl.AngleCount,
		Chapters:        pl.Chapters,
	}
	if ssif {
		out.InterleavedSize = pl.InterleavedFileSize()
	}
	for _, c := range pl.StreamClips {
		out.Clips = append(out.Clips, Clip{
			Name:          c.Name,
			Angle:         c.AngleIndex,
			TimeIn:        c.RelativeTimeIn.Seconds(),
			TimeOut:       c.RelativeTimeOut.Seconds(),
			LengthSeconds: c.Length(),
			FileSize:      c.Size(ssif),
			MeasuredBytes: c.PacketSize(),
			BitRate:       c.PacketBitRate(),
		})
	}
	for _, s := range pl.SortedStreams {
		out.Streams = append(out.Streams, buildStream(s))
	}
	for _, angle := range pl.AngleStreams {
		pids := make([]int, 0, len(angle))
		for pid := range angle {
			pids = append(pids, int(pid))
		}
		sort.Ints(pids)
		for _, pid := range pids {
			s := angle[uint16(pid)]
			if s.Kind() != bdrom.KindVideo {
				continue
			}
			out.Streams = append(out.Streams, buildStream(s))
		}
	}
	return out
}

func buildStream(s *bdrom.Stream) Stream {
	return Stream{
		PID:           s.PID,
		Kind:          s.Kind().String(),
		Codec:         s.CodecName(),
		CodecShort:    s.CodecShortName(),
		Language:      s.Language,
		LanguageName:  s.LanguageName(),
		Description:   s.Description(),
		Hidden:        s.IsHidden,
		Angle:         s.AngleIndex,
		BitRate:       s.BitRate,
		ActiveBitRate: s.ActiveBitRate,
		PeakBitRate:   s.PeakBitRate,
	}
}

func buildOutcome(res *scan.Result) *Outcome {
	out := &Outcome{
		ID:             res.ID,
		Phase:          res.Phase.String(),
		Cancelled:      res.Cancelled,
		Started:        res.Started.UTC(),
		ElapsedSeconds: res.Elapsed.Seconds(),
		FinishedBytes:  res.FinishedBytes,
		TotalBytes:     res.TotalBytes,
		Files:          res.Files,
	}
	if len(res.FileErrors) > 0 {
		out.FileErrors = make(map[string]string, len(res.FileErrors))
		for name, err := range res.FileErrors {
			out.FileErrors[name] = err.Error()
		}
	}
	if err := res.Err(); err != nil {
		out.Error = err.Error()
	}
	return out
}
