package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"labelqc/internal/batch"
	"labelqc/internal/logger"
	"labelqc/internal/report"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check visual-info documents against the labeling rules",
	Long: `Validate one or many labeled documents against the labeling rules
(R001-R010) and the schema checks.

path may be a ZIP archive, a folder of archives, an extracted document
directory, a folder of such directories or a single visual-info JSON file.
Archives are unpacked into LABELQC_EXTRACT_DIR first.

Validation never modifies a document.

Optional environment variables:
  LABELQC_RULES_FILE     - YAML rule set overriding the built-in rules
  LABELQC_EXTRACT_DIR    - Where archives are unpacked (default: extracted_data)
  BATCH_WORKERS          - Number of parallel workers (default: 4)
  GOOGLE_SHEET_URL       - Google Sheet for --sheet
  GOOGLE_SHEET_WORKSHEET - Worksheet for --sheet (default: QualityIssues)`,
	Example: `  # Validate every archive in a folder
  labelqc validate ./delivery

  # Validate one archive and keep a CSV of the issues
  labelqc validate ./delivery/DOC001.zip --csv issues.csv

  # Machine-readable summary
  labelqc validate ./extracted/DOC001 --json

  # Append the issues to the review sheet
  labelqc validate ./delivery --sheet`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	addExportFlags(validateCmd)
	validateCmd.Flags().Int("timeout", 1800, "Processing timeout in seconds")
}

func runValidate(cmd *cobra.Command, args []string) error {
	return runDocuments(cmd, args[0], batch.Options{Mode: batch.ModeValidate})
}

// runDocuments runs a validate or fix batch over path and exports the
// summary.
func runDocuments(cmd *cobra.Command, path string, opts batch.Options) error {
	log := logger.WithComponent(string(opts.Mode))
	out := cmd.OutOrStdout()
	exportOpts := readExportFlags(cmd)
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	set, err := ruleSet()
	if err != nil {
		return err
	}
	opts.RuleSet = set
	opts.Workers = cfg.BatchWorkers
	opts.ExtractDir = cfg.ExtractDir
	opts.Progress = progressPrinter(out, exportOpts.JSON)

	inputs, err := batch.Discover(path)
	if err != nil {
		return fmt.Errorf("failed to find documents: %w", err)
	}
	if len(inputs) == 0 {
		fmt.Fprintf(out, "No documents found in %s\n", path)
		return nil
	}

	log.Info().
		Str("path", path).
		Int("documents", len(inputs)).
		Int("workers", opts.Workers).
		Bool("dry_run", opts.DryRun).
		Msg("Starting batch")

	processor, err := batch.New(opts)
	if err != nil {
		return err
	}

	ctx, cancel := newContext(timeoutSecs, log)
	defer cancel()

	if !exportOpts.JSON {
		fmt.Fprintf(out, "Processing %d documents with %d workers...\n\n", len(inputs), opts.Workers)
	}
	results := processor.Run(ctx, inputs)

	summary := report.New(string(opts.Mode))
	for _, r := range results {
		summary.Add(r.Summary)
	}
	summary.Finish()

	if !exportOpts.JSON {
		fmt.Fprintln(out)
		printSummary(out, summary, results)
	}
	if err := export(ctx, out, summary, exportOpts, log); err != nil {
		return err
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("documents", summary.TotalFiles).
		Int("issues", summary.TotalIssues).
		Int("failed", summary.FailedFiles).
		Msg("Batch completed")

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}
