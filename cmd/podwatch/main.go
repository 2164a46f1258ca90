package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "podwatch",
	Short: "Wireless earbud status watcher",
	Long: `Passively watches the BLE status broadcasts of a paired pair of
wireless earbuds (plus their charging case) and maintains one de-noised
status snapshot:

- Decodes the vendor proximity-pairing payload into battery/charging/in-ear
  status for both pods and the case
- Filters spoofed or unrelated packets with signal-strength and
  battery-delta heuristics
- Reconciles the two broadcasters into a single canonical state and reports
  only material changes
- Derives lid opened/closed and both-in-ear transitions

No connection is ever established; everything is read from advertisements.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(devicesCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose logging")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
