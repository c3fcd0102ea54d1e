// Package gatectl implements the gatectl command tree. Every command talks
// to a running gated instance through pkg/gatesdk.
package gatectl

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nanolos/gate/pkg/gatesdk"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "Control a running gated agent",
	Long: `gatectl inspects and controls a local gated agent: the credential it
holds, the derived session, and the entitlement decision for the current
domain.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("GATE_ADDR")
	if defaultURL == "" {
		defaultURL = "http://127.0.0.1:8321"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "base URL of the gated agent")
}

func client() *gatesdk.Client {
	return gatesdk.NewClient(serverURL)
}
