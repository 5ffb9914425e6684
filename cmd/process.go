package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processLimit int

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process all assessments flagged ready for analysis",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("process"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if processLimit > 0 {
			cfg.Pipeline.BatchLimit = processLimit
		}

		p := buildPipeline(st)
		summary, err := p.ProcessBatch(ctx)
		if err != nil {
			return eris.Wrap(err, "process batch")
		}

		zap.L().Info("processing complete",
			zap.Int("processed", summary.Processed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("partial", summary.Partial),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped))

		fmt.Fprintf(os.Stdout, "processed %d: %d succeeded, %d partial, %d failed, %d skipped\n",
			summary.Processed, summary.Succeeded, summary.Partial, summary.Failed, summary.Skipped)
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "max records per batch (0 = config default)")
	rootCmd.AddCommand(processCmd)
}
