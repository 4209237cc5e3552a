package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/arbiter/internal/presentation"
)

var validatePreview []string

var validateCmd = &cobra.Command{
	Use:   "validate <manifest|dir>... --preview <manifest>",
	Short: "Preview the conflicts a manifest would raise",
	Long: `Validate registers the base manifests, then dry-runs each --preview
manifest against the result. Nothing from the previewed manifests is
registered, and the conflict history is left untouched.

Examples:
  # What would installing the shop extension collide with?
  arbiter validate ./extensions --preview shop.manifest.yaml

  # Preview several candidates independently
  arbiter validate ./extensions -p shop.manifest.yaml -p forum.manifest.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringArrayVarP(&validatePreview, "preview", "p", nil, "manifest to dry-run (repeatable)")
	_ = validateCmd.MarkFlagRequired("preview")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	base, err := loadManifests(args)
	if err != nil {
		return err
	}
	candidates, err := loadManifests(validatePreview)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := newEngine(cfg, engineOptions{})
	if err != nil {
		return err
	}
	defer e.close()

	if _, err := e.load(ctx, base); err != nil {
		return err
	}

	previews := make([]presentation.PreviewDTO, 0, len(candidates))
	for _, f := range candidates {
		conflicts, err := e.reg.ValidateManifest(ctx, f.Owner, f.Manifest())
		if err != nil {
			return err
		}
		previews = append(previews, presentation.PreviewDTO{
			Source:    f.Path,
			Owner:     f.Owner,
			Conflicts: presentation.FromConflicts(conflicts),
		})
	}
	return presentation.NewFormatter(cmd.OutOrStdout()).FormatPreviews(previews)
}
