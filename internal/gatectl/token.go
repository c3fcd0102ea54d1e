package gatectl

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokenShowExpiry bool

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the currently held credential",
	Long: `Request the current credential from gated and print its raw value.
Fails when no usable credential is held. Suitable for shell substitution:

  curl -H "Authorization: Bearer $(gatectl token)" ...
`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().BoolVar(&tokenShowExpiry, "expiry", false, "also print the expiry timestamp")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	tok, err := client().GetToken(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println(tok.Token)
	if tokenShowExpiry && tok.ExpiresAt > 0 {
		fmt.Println(time.UnixMilli(tok.ExpiresAt).Format(time.RFC3339))
	}
	return nil
}
