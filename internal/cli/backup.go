package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/upkeepqr/maintcue/internal/backup"
)

func BackupCmd(opts *options) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage encrypted database snapshots",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Take a snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			b, err := opts.client().RunBackup(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup %d uploaded to %s (%d bytes)\n", b.ID, b.ObjectKey, b.SizeBytes)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := opts.client().Backups(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state: %s\n", res.Status.State)
			if len(res.Backups) == 0 {
				fmt.Fprintln(out, "No backups found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tSIZE\tKEY\tERROR")
			for _, b := range res.Backups {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
					b.ID, b.StartedAt.Local().Format(time.DateTime), b.Status, b.SizeBytes, b.ObjectKey, b.ErrorMessage)
			}
			return tw.Flush()
		},
	}

	downloadCmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download an encrypted snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid backup id %q", args[0])
			}
			outPath, _ := cmd.Flags().GetString("out")
			if outPath == "" {
				outPath = fmt.Sprintf("maintcue-backup-%d.db.enc", id)
			}

			f, err := os.OpenFile(outPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			n, err := opts.client().DownloadBackup(ctx, id, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(outPath)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", outPath, n)
			return nil
		},
	}
	downloadCmd.Flags().String("out", "", "output file (default maintcue-backup-<id>.db.enc)")

	decryptCmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a downloaded snapshot into a SQLite file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			out, _ := cmd.Flags().GetString("out")
			if in == "" || out == "" {
				return errors.New("both --in and --out are required")
			}

			passphrase := os.Getenv("MAINTCUE_BACKUP_PASSPHRASE")
			if passphrase == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Passphrase: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read passphrase: %w", err)
				}
				passphrase = strings.TrimRight(line, "\r\n")
			}

			if err := backup.DecryptFile(in, out, passphrase); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "decrypted %s to %s\n", in, out)
			return nil
		},
	}
	decryptCmd.Flags().String("in", "", "encrypted snapshot")
	decryptCmd.Flags().String("out", "", "destination SQLite file")

	backupCmd.AddCommand(runCmd, listCmd, downloadCmd, decryptCmd)
	return backupCmd
}
