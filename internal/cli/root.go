// Package cli implements the sharer command-line interface using Cobra.
// serve and bootstrap run long-lived processes; the other commands talk to
// a running node over its HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var apiAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "", "Node API address host:port (default from config)")
}

var rootCmd = &cobra.Command{
	Use:   "sharer",
	Short: "sharer: find files across a peer-to-peer overlay",
	Long: `sharer joins a hybrid super-peer overlay, shares the files you own
and searches the network for files by name.

Start a rendezvous server with 'sharer bootstrap', then run 'sharer serve'
on every peer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
