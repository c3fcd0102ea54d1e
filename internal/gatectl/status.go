package gatectl

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential, session and entitlement state",
	Long: `Display an aggregate view of the gated agent's state machines.

Examples:
  # Display status in default text format
  gatectl status

  # Output as JSON for scripting
  gatectl status --format json
`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "output format (text, json)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := client().Status(cmd.Context())
	if err != nil {
		return err
	}

	if statusFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Printf("gated %s, up %s\n\n", status.Version, status.Uptime)

	fmt.Println("Credential:")
	if status.Credential.Present {
		fmt.Printf("  present    yes (source %s)\n", status.Credential.Source)
		if status.Credential.ExpiresAt != nil {
			fmt.Printf("  expires    %s\n", status.Credential.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		}
		fmt.Printf("  stale      %v\n", status.Credential.Stale)
	} else {
		fmt.Println("  present    no")
		if status.Credential.Exhausted {
			fmt.Println("  extraction exhausted")
		}
	}

	fmt.Println("\nSession:")
	if status.Session.Authenticated && status.Session.Identity != nil {
		fmt.Printf("  user          %s (%s)\n", status.Session.Identity.Email, status.Session.Identity.UserID)
		fmt.Printf("  capabilities  %s\n", strings.Join(status.Session.Capabilities, ", "))
	} else {
		fmt.Println("  unauthenticated")
	}

	fmt.Println("\nEntitlement:")
	fmt.Printf("  valid     %v (match %s)\n", status.Entitlement.Valid, status.Entitlement.MatchType)
	fmt.Printf("  features  %s\n", strings.Join(status.Entitlement.Features, ", "))
	if status.Entitlement.Valid {
		fmt.Printf("  expires   in %d days\n", status.Entitlement.DaysRemaining)
		if status.Entitlement.NeedsRenewal {
			fmt.Println("  renewal   due")
		}
	}

	return nil
}
