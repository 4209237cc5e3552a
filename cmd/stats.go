package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/arbiter/internal/presentation"
)

var statsCmd = &cobra.Command{
	Use:   "stats <manifest|dir>...",
	Short: "Register manifests and print registry statistics",
	Long: `Stats registers the given manifests and prints per-kind resource counts,
the number of conflicts detected, and what each owner ended up holding.

Example:
  arbiter stats ./extensions | jq '.owners[] | select(.total == 0)'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	files, err := loadManifests(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := newEngine(cfg, engineOptions{})
	if err != nil {
		return err
	}
	defer e.close()

	if _, err := e.load(ctx, files); err != nil {
		return err
	}

	// Owners that lost every claim still appear, holding nothing.
	seen := make(map[string]bool)
	var owners []presentation.OwnerResourcesDTO
	for _, f := range files {
		if seen[f.Owner] {
			continue
		}
		seen[f.Owner] = true
		owners = append(owners, presentation.FromOwnerResources(f.Owner, e.reg.ResourcesByOwner(f.Owner)))
	}

	return presentation.NewFormatter(cmd.OutOrStdout()).FormatStats(presentation.FromStats(e.reg.Stats()), owners)
}
