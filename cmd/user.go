package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtside/database"
	"courtside/handlers"
)

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage relay accounts",
	}
	cmd.AddCommand(newUserAddCommand(rootOpts))
	return cmd
}

func newUserAddCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "add <username> <password>",
		Short: "Create a relay account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Initialize(firstNonEmpty(dbPath, rootOpts.Config.Relay.DatabasePath)); err != nil {
				return err
			}
			defer database.Close()

			user, err := handlers.RegisterUser(args[0], args[1])
			if err != nil {
				return fmt.Errorf("add user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to the sqlite database (default from config)")
	return cmd
}
