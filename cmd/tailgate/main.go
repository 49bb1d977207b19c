// Package main is the entry point for the tailgate CLI.
//
// Tailgate can be run either as a library (SDK) embedded in a host
// application or as a standalone binary with YAML configuration. This CLI
// provides the standalone binary approach and a terminal client for the
// log stream.
//
// Usage:
//
//	tailgate serve -c config.yaml    # Start the frontend
//	tailgate validate -c config.yaml # Validate configuration
//	tailgate tail --url http://host:8832 --user admin
//	tailgate export-web --dir ./web  # Write the browser viewer
//	tailgate version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "tailgate",
	Short: "An embeddable web frontend with a live log stream",
	Long: `Tailgate serves a password-protected web UI next to a host application
and streams the host's log to every connected browser as it is written.

Quick start:
  1. Create a config file (tailgate.yaml)
  2. Run: tailgate serve -c tailgate.yaml
  3. Open http://localhost:8832 in your browser, or
     run: tailgate tail --user admin --password tailgate

Example config:
  port: 8832
  web_root: ./web
  users:
    "admin:secret": admin`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this tailgate binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tailgate %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
