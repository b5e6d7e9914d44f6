package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var usernameFlag string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the session cookies",
	Long: `Log in to Maktabkhooneh and save the session cookies for later commands.

Credentials are read from --username, MAKTABDL_USERNAME and MAKTABDL_PASSWORD,
or prompted for when missing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if usernameFlag != "" {
			Config.Username = usernameFlag
		}
		client, _, err := newClient(Config)
		if err != nil {
			return err
		}
		if err := login(cmd.Context(), client, Config, os.Stdin, cmd.ErrOrStderr()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\033[32m✓\033[0m Logged in, session saved to %s\n", Config.CookiesPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&usernameFlag, "username", "u", "", "Email or phone number of the account")
}
