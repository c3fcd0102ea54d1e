package gatectl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Force a fresh entitlement validation pass",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ent, err := client().Validate(cmd.Context())
	if err != nil {
		return err
	}

	if !ent.Valid {
		fmt.Printf("invalid (match %s), features: %s\n", ent.MatchType, strings.Join(ent.Features, ", "))
		return nil
	}

	fmt.Printf("valid (match %s), %d days remaining, features: %s\n",
		ent.MatchType, ent.DaysRemaining, strings.Join(ent.Features, ", "))
	if ent.NeedsRenewal {
		fmt.Println("renewal due")
	}
	return nil
}
