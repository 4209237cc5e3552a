package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/arbiter/internal/journal"
	"github.com/zjrosen/arbiter/internal/presentation"
	"github.com/zjrosen/arbiter/internal/registry"
)

var (
	historyKind  string
	historyOwner string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print conflicts archived in the journal",
	Long: `History reads the SQLite conflict journal at audit.journal_path, newest
first. Conflicts are archived there by runs with flags.journal on.

Examples:
  arbiter history --limit 20
  arbiter history --kind route --owner com.acme.shop`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "only conflicts over this resource kind (e.g. route, content-type)")
	historyCmd.Flags().StringVar(&historyOwner, "owner", "", "only conflicts involving this owner on either side")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum conflicts to print (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	q := journal.Query{Owner: historyOwner, Limit: historyLimit}
	if historyKind != "" {
		kind, err := registry.ParseKind(historyKind)
		if err != nil {
			return err
		}
		q.Kind = &kind
	}
	if historyLimit < 0 {
		return fmt.Errorf("--limit must be >= 0, got %d", historyLimit)
	}

	path := cfg.Audit.JournalPath
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no conflict journal at %q (enable flags.journal): %w", path, err)
	}

	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	conflicts, err := j.List(cmd.Context(), q)
	if err != nil {
		return err
	}
	return presentation.NewFormatter(cmd.OutOrStdout()).FormatConflicts(presentation.FromConflicts(conflicts))
}
