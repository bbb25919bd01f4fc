// Package cmd implements netcored's CLI commands using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "netcored",
	Short: "netcored runs the kernel-resident network subsystem as a standalone daemon",
	Long: `netcored boots the interface registry, the per-interface RX/TX worker
pipeline, the socket table, and the ICMP/DNS/TCP protocol codecs from a
YAML config file, then blocks until terminated.`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "netcored.yaml", "path to the interface config file")
}

func exitWithError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "netcored: %s: %v\n", msg, err)
	os.Exit(1)
}
