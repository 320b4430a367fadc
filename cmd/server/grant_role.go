package main

import (
	"fmt"

	"github.com/jrsteele09/carnotes-server/users"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var grantRoleCmd = &cobra.Command{
	Use:   "grant-role <email> <role>",
	Short: "Give a registered user a role, e.g. admin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.GetDatabaseURL() == "" {
			return errors.New("DATABASE_URL is required")
		}

		d, err := buildDeps(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer d.Close()

		email, role := args[0], users.RoleType(args[1])
		if err := d.sessions.GrantRole(cmd.Context(), email, role); err != nil {
			if errors.Is(err, users.ErrNotFound) {
				return fmt.Errorf("no user registered as %s", email)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", role, email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(grantRoleCmd)
}
