package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run <assessment-id>",
	Short: "Run the task set for a single assessment record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		p := buildPipeline(st)
		outcome, err := p.ProcessOne(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("record processed",
			zap.String("assessment_id", outcome.AssessmentID),
			zap.String("status", string(outcome.Status)),
			zap.Int("tasks_run", outcome.TasksRun),
			zap.Int("tasks_failed", outcome.TasksFailed))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
