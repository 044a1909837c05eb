package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bdscan/internal/config"
	"bdscan/internal/logging"
	"bdscan/internal/report"
	"bdscan/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		bitrates bool
		format   string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan every disc inserted into the configured drive",
		Long: "Wait for discs to be inserted and scan each one once it is mounted. Reports go to stdout\n" +
			"and every scan is recorded in the history. Only one watcher runs per state directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if format != formatTable {
				if _, err := report.ParseFormat(format); err != nil {
					return err
				}
			}
			logger, err := ctx.newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			// Nobody answers prompts in watch mode.
			ui := newTerminalUI(cmd.ErrOrStderr(), nil, isTerminal(cmd.ErrOrStderr()))

			handler := func(runCtx context.Context, ev watch.Event) error {
				started := time.Now()
				a, err := analyze(runCtx, cfg, logger, ui, analyzeOptions{
					path:     ev.MountPoint,
					bitrates: bitrates,
					onError:  config.OnErrorContinue,
				})
				if err != nil {
					return err
				}
				if err := writeReport(cmd.OutOrStdout(), a.report, format, ""); err != nil {
					return err
				}
				logger.Info("disc scan finished",
					logging.String("device", ev.Device),
					logging.String("disc_label", a.report.VolumeLabel),
					logging.Duration("elapsed", time.Since(started)),
				)
				return scanExitError(a.err)
			}

			w, err := watch.New(cfg, logger, handler)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for discs (Ctrl+C to stop)\n", cfg.Drive.Device)
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&bitrates, "bitrates", "b", false, "Measure bitrates for every inserted disc")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Report format: table, json or yaml")
	return cmd
}
