package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tradescan/assess-cli/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs <assessment-id>",
	Short: "Show the task run history for an assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		logs, err := st.ListRunLogs(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "list run logs")
		}
		if len(logs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunLogs(os.Stdout, logs)
		return nil
	},
}

func formatRunLogs(w io.Writer, logs []model.RunLogEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTASK\tVERSION\tDURATION\tCONFIDENCE\tERROR")
	for _, e := range logs {
		confidence := "-"
		if e.Confidence != nil {
			confidence = fmt.Sprintf("%.2f", *e.Confidence)
		}
		errMsg := e.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Format(time.RFC3339),
			e.TaskName,
			e.TaskVersion,
			e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond),
			confidence,
			errMsg)
	}
	_ = tw.Flush()
}

func init() {
	rootCmd.AddCommand(runsCmd)
}
