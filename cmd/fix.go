package cmd

import (
	"github.com/spf13/cobra"

	"labelqc/internal/batch"
	"labelqc/internal/fixer"
)

var fixCmd = &cobra.Command{
	Use:   "fix [path]",
	Short: "Apply the automatic corrections to visual-info documents",
	Long: `Fix one or many labeled documents in place.

The fixer runs five passes in order:
  unnecessary - drop boilerplate elements (stoplist) and empty text elements
  labels      - apply the label suggestions of the relabel rules (default R009)
  order       - sort elements by page and position (only with --reorder)
  tables      - canonicalise 원문/번역문 translation tables
  tags        - strip forbidden labels from element tag lists

Each fixed document is written back atomically. With --recompress, fixed
archives are packed again into the given directory.`,
	Example: `  # Fix every archive and pack the results into ./fixed_files
  labelqc fix ./delivery --recompress ./fixed_files

  # Also apply the legal-structure relabels and reorder elements
  labelqc fix ./extracted --relabel R009,R010 --reorder

  # See what would change without writing anything
  labelqc fix ./delivery --dry-run --report fix-report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

func init() {
	rootCmd.AddCommand(fixCmd)

	addExportFlags(fixCmd)
	fixCmd.Flags().Bool("reorder", false, "Sort elements by page and vertical position")
	fixCmd.Flags().StringSlice("relabel", []string{"R009"}, "Rules whose label suggestions are applied")
	fixCmd.Flags().Bool("no-prune-empty", false, "Keep textual elements without text")
	fixCmd.Flags().String("recompress", "", "Pack fixed archives into this directory")
	fixCmd.Flags().Bool("dry-run", false, "Fix in memory only, write nothing")
	fixCmd.Flags().Int("timeout", 1800, "Processing timeout in seconds")
}

func runFix(cmd *cobra.Command, args []string) error {
	reorder, _ := cmd.Flags().GetBool("reorder")
	relabel, _ := cmd.Flags().GetStringSlice("relabel")
	noPrune, _ := cmd.Flags().GetBool("no-prune-empty")
	recompress, _ := cmd.Flags().GetString("recompress")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	return runDocuments(cmd, args[0], batch.Options{
		Mode: batch.ModeFix,
		FixOptions: []fixer.Option{
			fixer.WithRelabelRules(relabel...),
			fixer.WithPruneEmptyText(!noPrune),
			fixer.WithReorder(reorder),
		},
		OutputDir: recompress,
		DryRun:    dryRun,
	})
}
