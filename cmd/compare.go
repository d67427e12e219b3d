package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"labelqc/internal/archive"
	"labelqc/internal/compare"
	"labelqc/internal/logger"
	"labelqc/internal/report"
	"labelqc/internal/rules"
)

var compareCmd = &cobra.Command{
	Use:   "compare [auto-dir] [manual-dir]",
	Short: "Compare automatic validation with human review",
	Long: `Compare the documents in auto-dir with their manually reviewed versions
in manual-dir.

Documents are paired by key (KEY_visualinfo.json). For each pair the
command lists the labels the reviewer changed and the elements they added
or removed, and scores how well the validator's label suggestions predicted
the reviewer's relabels (precision, recall and F1 as accuracy).

Folders holding ZIP archives are unpacked into a temporary directory first.`,
	Example: `  # Compare and print the summary
  labelqc compare ./delivered ./reviewed

  # Keep the full comparison report
  labelqc compare ./delivered ./reviewed --report comparison.json`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().String("report", "", "Write the comparison report as JSON to this file")
	compareCmd.Flags().Bool("json", false, "Print the comparison report as JSON to stdout")
	compareCmd.Flags().Int("timeout", 1800, "Processing timeout in seconds")
}

func runCompare(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("compare")
	out := cmd.OutOrStdout()

	reportPath, _ := cmd.Flags().GetString("report")
	asJSON, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	set, err := ruleSet()
	if err != nil {
		return err
	}
	validator, err := rules.NewValidator(set)
	if err != nil {
		return err
	}

	tmp, err := os.MkdirTemp("", "labelqc-compare-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	autoDir, err := unpackArchives(args[0], filepath.Join(tmp, "auto"), log)
	if err != nil {
		return err
	}
	manualDir, err := unpackArchives(args[1], filepath.Join(tmp, "manual"), log)
	if err != nil {
		return err
	}

	ctx, cancel := newContext(timeoutSecs, log)
	defer cancel()

	results, unmatched, err := compare.Directories(ctx, autoDir, manualDir, validator)
	if err != nil {
		return err
	}
	rep := compare.BuildReport(results, unmatched)

	if asJSON {
		if err := report.EncodeJSON(out, rep); err != nil {
			return err
		}
	} else {
		printComparison(out, rep)
	}
	if reportPath != "" {
		if err := report.WriteJSON(reportPath, rep); err != nil {
			return err
		}
		log.Info().Str("path", reportPath).Msg("Wrote comparison report")
	}
	return nil
}

// unpackArchives extracts the archives under dir into dest and returns dest,
// or returns dir unchanged when it holds no archives.
func unpackArchives(dir, dest string, log zerolog.Logger) (string, error) {
	archives, err := archive.FindArchives(dir)
	if err != nil {
		return "", fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if len(archives) == 0 {
		return dir, nil
	}
	log.Info().Str("dir", dir).Int("archives", len(archives)).Msg("Unpacking archives")
	names := archive.Names(archives)
	for _, a := range archives {
		if _, err := archive.ExtractAs(a, dest, names[a]); err != nil {
			return "", err
		}
	}
	return dest, nil
}

func printComparison(out io.Writer, rep compare.Report) {
	s := rep.Summary

	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintln(out, "                 REVIEW COMPARISON")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Compared documents:   %d\n", s.TotalFiles)
	if s.FailedFiles > 0 {
		fmt.Fprintf(out, "Failed:               %d\n", s.FailedFiles)
	}
	fmt.Fprintf(out, "Manually fixed:       %d (%.1f%%)\n", s.FilesWithManualFixes, s.ManualFixRate)
	fmt.Fprintf(out, "Average accuracy:     %.1f%%\n", s.AverageAccuracy)
	fmt.Fprintf(out, "Precision / recall:   %.2f / %.2f\n", s.AveragePrecision, s.AverageRecall)
	fmt.Fprintf(out, "Automatic issues:     %d\n", s.TotalAutoIssues)
	fmt.Fprintf(out, "Manual changes:       %d\n", s.TotalManualChanges)

	fmt.Fprintln(out, "\nAccuracy distribution:")
	fmt.Fprintf(out, "  high (>= 80%%):  %d\n", rep.Distribution.High)
	fmt.Fprintf(out, "  medium (60-79%%): %d\n", rep.Distribution.Medium)
	fmt.Fprintf(out, "  low (< 60%%):    %d\n", rep.Distribution.Low)

	if len(rep.TopIssueFiles) > 0 {
		fmt.Fprintln(out, "\nMost flagged documents:")
		for i, f := range rep.TopIssueFiles {
			if i == 3 {
				break
			}
			fmt.Fprintf(out, "  %d. %s\n", i+1, filepath.Base(f.File))
			fmt.Fprintf(out, "     automatic: %d, manual: %d, accuracy: %.1f%%\n", f.AutoIssues, f.ManualChanges, f.Accuracy)
		}
	}
	if len(rep.Unmatched) > 0 {
		fmt.Fprintf(out, "\nNo reviewed counterpart: %s\n", strings.Join(rep.Unmatched, ", "))
	}
	fmt.Fprintln(out, strings.Repeat("=", 60))
}
