package cli

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

// options holds the global flags shared by every subcommand.
type options struct {
	server  string
	token   string
	timeout time.Duration
}

func (o *options) client() *Client {
	return NewClient(o.server, o.token)
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func (o *options) requireToken() error {
	if o.token == "" {
		return errors.New("no token: run `maintcuectl login` and set MAINTCUE_TOKEN, or pass --token")
	}
	return nil
}

// NewRootCmd builds the maintcuectl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "maintcuectl",
		Short:         "Operate a MaintCue reminder server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("MAINTCUE_SERVER")
	if server == "" {
		server = defaultServer
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", server, "server base URL (env MAINTCUE_SERVER)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("MAINTCUE_TOKEN"), "admin session token (env MAINTCUE_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "request timeout")

	rootCmd.AddCommand(LoginCmd(opts))
	rootCmd.AddCommand(TriggerCmd(opts))
	rootCmd.AddCommand(StatusCmd(opts))
	rootCmd.AddCommand(RemindersCmd(opts))
	rootCmd.AddCommand(BackupCmd(opts))
	rootCmd.AddCommand(HashPasswordCmd())
	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln("Error:", err)
		return 1
	}
	return 0
}
