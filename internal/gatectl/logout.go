package gatectl

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the held credential and log the session out",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	if _, err := client().RevokeToken(cmd.Context()); err != nil {
		return err
	}

	fmt.Println("logged out")
	return nil
}
