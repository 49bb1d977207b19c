package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/tailgate/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a tailgate configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.
Passwords are never printed.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  tailgate validate -c config.yaml
  tailgate validate --config /etc/tailgate/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()

	listen := fmt.Sprintf(":%d", cfg.Port)
	if cfg.ListenAddr != "" {
		listen = cfg.ListenAddr
	}

	users := "default (admin)"
	if len(cfg.Users) > 0 {
		names := make([]string, 0, len(cfg.Users))
		for key, privilege := range cfg.Users {
			user, _, _ := strings.Cut(key, ":")
			names = append(names, user+" ("+privilege+")")
		}
		sort.Strings(names)
		users = strings.Join(names, ", ")
	}

	history := "disabled"
	if cfg.HistoryFile != "" {
		history = cfg.HistoryFile
	}

	mirror := "disabled"
	if cfg.Mirror != nil {
		addr := cfg.Mirror.RedisAddr
		if addr == "" {
			addr = strings.Join(cfg.Mirror.RedisAddrs, ",")
		}
		mirror = addr
	}

	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Name:        %s\n", cfg.Name)
	fmt.Fprintf(out, "  Listen:      %s\n", listen)
	fmt.Fprintf(out, "  Web root:    %s\n", cfg.WebRoot)
	fmt.Fprintf(out, "  Users:       %s\n", users)
	fmt.Fprintf(out, "  Log buffer:  %d records, purge %d\n", cfg.LogBuffer.MaxLength, cfg.LogBuffer.PurgeSize)
	fmt.Fprintf(out, "  History:     %s\n", history)
	fmt.Fprintf(out, "  Mirror:      %s\n", mirror)

	return nil
}
