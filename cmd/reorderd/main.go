package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reorderd",
	Short: "Inventory reorder decision and order-lifecycle tracking service",
	Long: `reorderd watches a Grocy inventory for items below their minimum stock,
decides whether a reorder is due, executes the configured order mode via
Home Assistant and tracks each order through an interactive Telegram
notification until delivery is confirmed.`,
}

func main() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
