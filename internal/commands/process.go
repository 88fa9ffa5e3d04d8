package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/settled-dev/settled/internal/config"
	"github.com/settled-dev/settled/internal/engine"
	"github.com/settled-dev/settled/internal/ingest"
	"github.com/settled-dev/settled/internal/logging"
	"github.com/settled-dev/settled/internal/report"
)

func newProcessCommand() *cobra.Command {
	var cfgPath string
	var lanes int
	var queueCap int
	var logLevel string

	cmd := &cobra.Command{
		Use:   "process <input.csv>",
		Short: "Replay a transaction file and print final balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			// Flags beat config file and environment.
			if cmd.Flags().Changed("lanes") {
				cfg.Engine.Lanes = lanes
			}
			if cmd.Flags().Changed("queue") {
				cfg.Engine.QueueCapacity = queueCap
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}

			log, err := logging.New(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening input: %w", err)
			}
			defer f.Close()

			return process(cmd.Context(), f, cmd.OutOrStdout(), cfg, log)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "settled.yaml", "configuration file")
	cmd.Flags().IntVar(&lanes, "lanes", 0, "parallel lanes (0 = one per CPU)")
	cmd.Flags().IntVar(&queueCap, "queue", 0, "per-lane queue capacity (0 = default)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

// process replays the stream from in and writes the balance report to
// out. Either the full report is written or none of it is.
func process(ctx context.Context, in io.Reader, out io.Writer, cfg *config.Config, log *zap.Logger) error {
	src, err := ingest.NewReader(in)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		Lanes:         cfg.Engine.Lanes,
		QueueCapacity: cfg.Engine.QueueCapacity,
	}, log)

	led, err := eng.Run(ctx, src)
	if err != nil {
		return err
	}

	return report.Write(out, led.Balances())
}
