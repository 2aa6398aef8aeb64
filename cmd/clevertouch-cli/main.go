// Clevertouch-cli is a command line client for CleverTouch / LVI "e3"
// cloud accounts.
//
// It logs in with the account password, persists the refresh token for
// later runs (and for clevertouchd), and offers direct radiator commands.
//
// Usage:
//
//	clevertouch-cli [command] [flags]
//
// See 'clevertouch-cli --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clevertouch-cli",
	Short: "CleverTouch cloud command line client",
	Long: `A command line client for CleverTouch / LVI "e3" cloud accounts.

Log in once with 'clevertouch-cli login'; the refresh token is stored
locally and reused by subsequent commands and by clevertouchd.`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
