package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/upkeepqr/maintcue/internal/model"
)

func StatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job state and reminder queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			st, err := opts.client().Status(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "--- Reminder Queue ---")
			for _, s := range []model.ReminderStatus{model.ReminderPending, model.ReminderSent, model.ReminderFailed} {
				fmt.Fprintf(out, "%s:\t%d\n", s, st.Queue[s])
			}

			fmt.Fprintln(out, "\n--- Jobs ---")
			if st.NextRun != nil {
				fmt.Fprintf(out, "next run: %s\n", st.NextRun.Local().Format(time.RFC1123))
			}
			if len(st.Jobs) == 0 {
				fmt.Fprintln(out, "no runs since the server started")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tTRIGGER\tSTATE\tSENT\tFAILED\tMARKED\tSTARTED\tERROR")
			for _, j := range st.Jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					j.Job, j.Trigger, j.State, j.Sent, j.Failed, j.Marked,
					j.StartedAt.Local().Format(time.DateTime), j.Error)
			}
			return tw.Flush()
		},
	}
}
