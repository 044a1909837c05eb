package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gertd/go-pluralize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"bdscan/internal/report"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

var plural = pluralize.NewClient()

func renderTable(title string, headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if title != "" {
		tw.SetTitle(title)
	}

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// counted renders "3 playlists" style counts.
func counted(word string, n int) string {
	return plural.Pluralize(word, n, true)
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatRate(bps int64) string {
	if bps <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(float64(bps), 2, "bps")
}

// renderReport writes the human-readable form of r. colorize only affects the
// headings.
func renderReport(w io.Writer, r *report.Report, colorize bool) {
	heading := color.New(color.FgCyan, color.Bold)
	label := color.New(color.Bold)
	if !colorize {
		heading.DisableColor()
		label.DisableColor()
	}

	title := r.Title
	if title == "" {
		title = r.VolumeLabel
	}
	heading.Fprintf(w, "%s\n", title)
	fmt.Fprintln(w, strings.Repeat("-", max(len(title), 8)))
	summary := [][2]string{
		{"Source", r.Source},
		{"Volume label", r.VolumeLabel},
		{"Disc size", fmt.Sprintf("%s (%s bytes)", formatBytes(r.SizeBytes), humanize.Comma(r.SizeBytes))},
		{"Playlists", counted("playlist", len(r.Playlists))},
	}
	if flags := r.Flags.Names(); len(flags) > 0 {
		summary = append(summary, [2]string{"Flags", strings.Join(flags, ", ")})
	}
	if r.Fingerprint != "" {
		summary = append(summary, [2]string{"Fingerprint", r.Fingerprint})
	}
	for _, kv := range summary {
		label.Fprintf(w, "%-14s", kv[0]+":")
		fmt.Fprintf(w, " %s\n", kv[1])
	}
	fmt.Fprintln(w)

	if len(r.Playlists) > 0 {
		fmt.Fprintln(w, renderPlaylists(r))
		fmt.Fprintln(w)
	}
	for i, group := range r.Groups {
		fmt.Fprintf(w, "Group %d: %s share the same clips\n", i+1, strings.Join(group, ", "))
	}
	if len(r.Groups) > 0 {
		fmt.Fprintln(w)
	}

	// The main feature gets its stream table; the rest are usually extras.
	if len(r.Playlists) > 0 {
		fmt.Fprintln(w, renderStreams(r.Playlists[0]))
		fmt.Fprintln(w)
	}
	if len(r.StreamFiles) > 0 {
		fmt.Fprintln(w, renderStreamFiles(r.StreamFiles))
		fmt.Fprintln(w)
	}
	if r.Scan != nil {
		renderOutcome(w, r.Scan, colorize)
	}
}

func renderPlaylists(r *report.Report) string {
	headers := []string{"Playlist", "Length", "Size", "Bitrate", "Clips", "Chapters", "Streams", "Notes"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(r.Playlists))
	for _, pl := range r.Playlists {
		var notes []string
		if !pl.Valid {
			notes = append(notes, "invalid: "+pl.InvalidReason)
		}
		if pl.HasLoops {
			notes = append(notes, "loops")
		}
		if pl.HasHiddenTracks {
			notes = append(notes, "hidden tracks")
		}
		if pl.AngleCount > 0 {
			notes = append(notes, counted("angle", pl.AngleCount+1))
		}
		rows = append(rows, []string{
			pl.Name,
			pl.Length,
			formatBytes(pl.FileSize),
			formatRate(pl.BitRate),
			fmt.Sprintf("%d", len(pl.Clips)),
			fmt.Sprintf("%d", len(pl.Chapters)),
			fmt.Sprintf("%d", len(pl.Streams)),
			strings.Join(notes, ", "),
		})
	}
	return renderTable("Playlists", headers, rows, aligns)
}

func renderStreams(pl report.Playlist) string {
	headers := []string{"PID", "Type", "Codec", "Language", "Bitrate", "Peak", "Description"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(pl.Streams))
	for _, s := range pl.Streams {
		kind := s.Kind
		if s.Hidden {
			kind += " (hidden)"
		}
		if s.Angle > 0 {
			kind += fmt.Sprintf(" (angle %d)", s.Angle)
		}
		lang := s.LanguageName
		if lang == "" {
			lang = s.Language
		}
		rows = append(rows, []string{
			fmt.Sprintf("0x%04X", s.PID),
			kind,
			s.Codec,
			lang,
			formatRate(s.BitRate),
			formatRate(s.PeakBitRate),
			s.Description,
		})
	}
	return renderTable("Streams in "+pl.Name, headers, rows, aligns)
}

func renderStreamFiles(files []report.StreamFile) string {
	headers := []string{"File", "Size", "Length", "Average", "Max", "Corrupt", "Resyncs"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{
			f.Name,
			formatBytes(f.Size),
			fmt.Sprintf("%.3fs", f.LengthSeconds),
			formatRate(int64(f.AverageRate)),
			formatRate(int64(f.MaxRate)),
			humanize.Comma(int64(f.CorruptPackets)),
			humanize.Comma(int64(f.Resyncs)),
		})
	}
	return renderTable("Stream files", headers, rows, aligns)
}

func renderOutcome(w io.Writer, o *report.Outcome, colorize bool) {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	warn := color.New(color.FgYellow)
	if !colorize {
		ok.DisableColor()
		bad.DisableColor()
		warn.DisableColor()
	}

	status := fmt.Sprintf("Bitrate scan %s: %s of %s in %.1fs",
		o.Phase, formatBytes(o.FinishedBytes), formatBytes(o.TotalBytes), o.ElapsedSeconds)
	style := ok
	switch {
	case o.Cancelled, o.Error != "" && len(o.FileErrors) == 0:
		style = bad
	case len(o.FileErrors) > 0:
		style = warn
	}
	style.Fprintln(w, status)
	if o.Error != "" {
		style.Fprintf(w, "  %s\n", o.Error)
	}
	names := make([]string, 0, len(o.FileErrors))
	for name := range o.FileErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %s: %s\n", name, o.FileErrors[name])
	}
}
