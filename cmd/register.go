package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/zjrosen/arbiter/internal/presentation"
)

// errUnsuccessful marks a --strict run where some claim was rejected.
var errUnsuccessful = errors.New("one or more manifests did not register cleanly")

var (
	registerTeardown string
	registerStrict   bool
)

var registerCmd = &cobra.Command{
	Use:   "register <manifest|dir>...",
	Short: "Register extension manifests and print the outcomes",
	Long: `Register loads each manifest in argument order into a fresh registry
configured from the config file, and prints one outcome per manifest as JSON.

Directories are scanned for *.manifest.yaml and *.manifest.yml files.

Examples:
  # Register two extensions; later manifests meet the earlier ones' claims
  arbiter register blog.manifest.yaml shop.manifest.yaml

  # Register a whole directory, failing if any claim was rejected
  arbiter register ./extensions --strict

  # Load, then uninstall one extension and report what it released
  arbiter register ./extensions --teardown com.acme.shop

  # Show only rejected claims
  arbiter register ./extensions | jq '.[].results[] | select(.action == "error")'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerTeardown, "teardown", "", "unregister this owner after loading and print what was released")
	registerCmd.Flags().BoolVar(&registerStrict, "strict", false, "exit non-zero if any manifest has a rejected claim")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
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

	outcomes, err := e.load(ctx, files)
	if err != nil {
		return err
	}

	formatter := presentation.NewFormatter(cmd.OutOrStdout())
	dtos := make([]presentation.OutcomeDTO, len(outcomes))
	clean := true
	for i, out := range outcomes {
		dtos[i] = presentation.FromOutcome(files[i].Path, out)
		clean = clean && out.Success
	}
	if err := formatter.FormatOutcomes(dtos); err != nil {
		return err
	}

	if registerTeardown != "" {
		removed := e.reg.UnregisterAll(ctx, registerTeardown)
		if err := formatter.FormatResult(presentation.TeardownDTO{Owner: registerTeardown, Removed: removed}); err != nil {
			return err
		}
	}

	if registerStrict && !clean {
		return errUnsuccessful
	}
	return nil
}
