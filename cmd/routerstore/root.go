package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/modelrouter/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "routerstore",
	Short: "Versioned configuration store for the model router",
	Long: `routerstore manages the versioned configuration store of the model router.

Every change to a configuration key creates a new immutable version with a
history entry. Versions can be inspected, rolled back and pruned, and legacy
numbered snapshot files can be merged into the canonical version chain.

The backend (file, table, bolt or memory) is selected in the configuration
file or with ROUTERSTORE_STORE_TYPE.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code derived from the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and ROUTERSTORE_* variables when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, yaml")
}
