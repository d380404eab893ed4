package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func RemindersCmd(opts *options) *cobra.Command {
	remindersCmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect the reminder queue",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List reminders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := opts.context(cmd)
			defer cancel()

			reminders, err := opts.client().Reminders(ctx, status, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(reminders) == 0 {
				fmt.Fprintln(out, "No reminders found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tHOUSEHOLD\tTASK\tDUE\tSTATUS\tREASON")
			for _, r := range reminders {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
					r.ID, r.HouseholdID, r.TaskName, r.DueDate.Format(time.DateOnly), r.Status, r.FailureReason)
			}
			return tw.Flush()
		},
	}
	listCmd.Flags().String("status", "", "filter by status (pending, sent, failed)")
	listCmd.Flags().Int("limit", 50, "maximum number of reminders")

	remindersCmd.AddCommand(listCmd)
	return remindersCmd
}
