package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bdscan/internal/config"
	"bdscan/internal/report"
	"bdscan/internal/scan"
)

const formatTable = "table"

func newScanCommand(ctx *commandContext) *cobra.Command {
	var (
		opts       analyzeOptions
		format     string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "scan PATH",
		Short: "Analyze a disc folder, image or mounted drive",
		Long: "Analyze a Blu-ray disc. PATH may be a folder containing BDMV, the BDMV folder itself,\n" +
			"a disc image, or a block device such as /dev/sr0 that is mounted.\n\n" +
			"Without --bitrates only the disc structure is read, which is fast. With --bitrates\n" +
			"every stream file (or only those used by --playlist) is read to measure bitrates.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := validateOnError(opts.onError); err != nil {
				return err
			}
			if format != formatTable {
				if _, err := report.ParseFormat(format); err != nil {
					return err
				}
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			opts.path = path

			logger, err := ctx.newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ui := newTerminalUI(cmd.ErrOrStderr(), cmd.InOrStdin(), isTerminal(cmd.ErrOrStderr()) && isTerminal(cmd.InOrStdin()))

			a, err := analyze(cmd.Context(), cfg, logger, ui, opts)
			if err != nil {
				return err
			}
			if err := writeReport(cmd.OutOrStdout(), a.report, format, outputPath); err != nil {
				return err
			}
			return scanExitError(a.err)
		},
	}

	cmd.Flags().BoolVarP(&opts.bitrates, "bitrates", "b", false, "Read the stream files and measure bitrates")
	cmd.Flags().StringSliceVarP(&opts.playlists, "playlist", "p", nil, "Limit the report and bitrate scan to these playlists (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, json or yaml")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVar(&opts.onError, "on-error", "", "Per-file error handling: prompt, continue or abort (default from config)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record this scan in the history database")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write a Prometheus textfile here (default from config)")
	cmd.Flags().BoolVar(&opts.ssif, "ssif", false, "Measure interleaved 3D files instead of their 2D counterparts")
	return cmd
}

func validateOnError(mode string) error {
	switch mode {
	case "", config.OnErrorPrompt, config.OnErrorContinue, config.OnErrorAbort:
		return nil
	}
	return fmt.Errorf("--on-error must be prompt, continue or abort, got %q", mode)
}

// writeReport renders r to outputPath, or to stdout when it is empty. Tables
// written to a file carry no color codes.
func writeReport(stdout io.Writer, r *report.Report, format, outputPath string) error {
	w := stdout
	if outputPath != "" {
		if dir := filepath.Dir(outputPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if strings.EqualFold(format, formatTable) {
		renderReport(w, r, isTerminal(w))
		return nil
	}
	parsed, err := report.ParseFormat(format)
	if err != nil {
		return err
	}
	return r.Write(w, parsed)
}

// scanExitError decides whether a finished scan fails the command. Per-file
// failures alone are shown in the report and do not.
func scanExitError(err error) error {
	var agg *scan.AggregateFileError
	if err == nil || errors.As(err, &agg) {
		return nil
	}
	return err
}
