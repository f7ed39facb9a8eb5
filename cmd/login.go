package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtside/api"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Exchange credentials for a bearer token",
		Long: `Log in against the configured base URL and print the token and user id
as environment assignments for the other commands.

Example:
  eval "$(courtside login lebron secret1)"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.New(rootOpts.Config.BaseURL, "")
			res, err := client.Login(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "export COURTSIDE_TOKEN=%s\n", res.Token)
			fmt.Fprintf(out, "export COURTSIDE_USER_ID=%d\n", res.User.ID)
			return nil
		},
	}
}
