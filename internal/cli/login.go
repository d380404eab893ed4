package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func LoginCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as the admin and print a session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" {
				return errors.New("the --email flag is required")
			}
			if password == "" {
				password = os.Getenv("MAINTCUE_ADMIN_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := opts.client().Login(ctx, email, password)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "export MAINTCUE_TOKEN=%s\n", res.Token)
			fmt.Fprintf(cmd.ErrOrStderr(), "token expires %s\n", res.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().String("email", "", "admin email")
	cmd.Flags().String("password", "", "admin password (env MAINTCUE_ADMIN_PASSWORD, prompted if empty)")
	return cmd
}
