package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/tailgate/web"
)

var exportWebCmd = &cobra.Command{
	Use:   "export-web",
	Short: "Write the built-in log viewer to a web root",
	Long: `Write the built-in browser log viewer into a directory that can be used
as web_root. Existing files are kept unless --force is given, so local
changes survive an upgrade.

Example:
  tailgate export-web --dir ./web
  tailgate export-web --dir /srv/tailgate --force`,
	RunE: runExportWeb,
}

func init() {
	rootCmd.AddCommand(exportWebCmd)

	exportWebCmd.Flags().StringP("dir", "d", "./web", "web root to write into")
	exportWebCmd.Flags().Bool("force", false, "overwrite existing files")
}

func runExportWeb(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	force, _ := cmd.Flags().GetBool("force")

	written, err := web.Extract(dir, force)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, p := range written {
		fmt.Fprintln(out, p)
	}
	fmt.Fprintf(out, "%d files written to %s\n", len(written), dir)
	return nil
}
