package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bdscan/internal/history"
	"bdscan/internal/report"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded scans",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func (c *commandContext) withHistory(fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var fp string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent scans, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				var (
					entries []history.Entry
					err     error
				)
				if fp = strings.TrimSpace(fp); fp != "" {
					entries, err = store.FindByFingerprint(cmd.Context(), fp)
				} else {
					entries, err = store.List(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No scans recorded")
					return nil
				}
				fmt.Fprintln(out, renderHistoryTable(entries, time.Now()))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of scans to list (0 lists all)")
	cmd.Flags().StringVar(&fp, "fingerprint", "", "Only list scans of the disc with this fingerprint")
	return cmd
}

func renderHistoryTable(entries []history.Entry, now time.Time) string {
	headers := []string{"ID", "Started", "Title", "Phase", "Duration", "Scanned", "Errors"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = e.VolumeLabel
		}
		phase := e.Phase
		if e.ErrorMessage != "" {
			phase += " (failed)"
		}
		scanned := "-"
		if e.TotalBytes > 0 {
			scanned = fmt.Sprintf("%s / %s", formatBytes(e.FinishedBytes), formatBytes(e.TotalBytes))
		}
		rows = append(rows, []string{
			shortID(e.ID),
			humanize.RelTime(e.StartedAt, now, "ago", "from now"),
			title,
			phase,
			e.Duration().Round(time.Second).String(),
			scanned,
			fmt.Sprintf("%d", e.FileErrorCount),
		})
	}
	return renderTable("", headers, rows, aligns)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one scan; ID may be a unique prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				entry, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					if errors.Is(err, history.ErrNotFound) {
						return fmt.Errorf("no recorded scan matches %q", args[0])
					}
					return err
				}
				out := cmd.OutOrStdout()
				if format == formatTable {
					renderHistoryEntry(out, entry)
					return nil
				}
				parsed, err := report.ParseFormat(format)
				if err != nil {
					return err
				}
				if entry.SummaryJSON == "" {
					return fmt.Errorf("scan %s has no stored report", shortID(entry.ID))
				}
				r, err := report.Decode(strings.NewReader(entry.SummaryJSON))
				if err != nil {
					return fmt.Errorf("decode stored report: %w", err)
				}
				return r.Write(out, parsed)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, json or yaml")
	return cmd
}

func renderHistoryEntry(w io.Writer, e *history.Entry) {
	fields := [][2]string{
		{"ID", e.ID},
		{"Title", e.Title},
		{"Volume label", e.VolumeLabel},
		{"Source", e.SourcePath},
		{"Fingerprint", e.Fingerprint},
		{"Started", e.StartedAt.Local().Format(time.RFC1123)},
		{"Duration", e.Duration().Round(time.Millisecond).String()},
		{"Phase", e.Phase},
		{"Cancelled", yesNo(e.Cancelled)},
		{"Disc size", formatBytes(e.DiscSize)},
		{"Playlists", fmt.Sprintf("%d", e.Playlists)},
		{"Stream files", fmt.Sprintf("%d", e.StreamFiles)},
	}
	if e.TotalBytes > 0 {
		fields = append(fields, [2]string{"Scanned", fmt.Sprintf("%s of %s", formatBytes(e.FinishedBytes), formatBytes(e.TotalBytes))})
	}
	if e.ErrorMessage != "" {
		fields = append(fields, [2]string{"Error", e.ErrorMessage})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		fmt.Fprintf(w, "%-14s %s\n", f[0]+":", f[1])
	}
	if len(e.FileErrors) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", counted("file error", len(e.FileErrors)))
	names := make([]string, 0, len(e.FileErrors))
	for name := range e.FileErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, e.FileErrors[name])
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = cfg.History.KeepScans
			}
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}
			return ctx.withHistory(func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s, kept the newest %d\n", counted("scan", int(removed)), keep)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "Number of scans to keep (default from config)")
	return cmd
}
