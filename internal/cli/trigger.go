package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upkeepqr/maintcue/internal/jobs"
)

func TriggerCmd(opts *options) *cobra.Command {
	triggerCmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run a job now on the server",
	}

	triggerCmd.AddCommand(triggerJobCmd(opts, jobs.JobReminders, "Process due reminders"))
	triggerCmd.AddCommand(triggerJobCmd(opts, jobs.JobOverdue, "Mark past-due tasks overdue"))
	return triggerCmd
}

func triggerJobCmd(opts *options, job, short string) *cobra.Command {
	return &cobra.Command{
		Use:   job,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := opts.client().RunJob(ctx, job)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Skipped {
				fmt.Fprintf(out, "%s job is already running; skipped\n", job)
				return nil
			}
			st := res.Status
			switch job {
			case jobs.JobOverdue:
				fmt.Fprintf(out, "overdue: %d tasks marked\n", st.Marked)
			default:
				fmt.Fprintf(out, "reminders: processed=%d sent=%d failed=%d\n", st.Processed, st.Sent, st.Failed)
			}
			if st.Error != "" {
				return fmt.Errorf("%s job failed: %s", job, st.Error)
			}
			return nil
		},
	}
}
