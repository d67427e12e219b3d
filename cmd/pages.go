package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"labelqc/internal/archive"
	"labelqc/internal/logger"
	"labelqc/internal/pdfinfo"
	"labelqc/internal/report"
)

var pagesCmd = &cobra.Command{
	Use:   "pages [path]",
	Short: "Count the pages of the source PDFs",
	Long: `Count the pages of the source PDF of every document archive under path.

The PDF in an archive's original/ folder is used, or else the first PDF in
the archive. Archives without a readable PDF count as one estimated page.
path may also be a single PDF file.`,
	Example: `  # Page totals for a delivery
  labelqc pages ./delivery

  # Per-document counts as JSON
  labelqc pages ./delivery --json`,
	Args: cobra.ExactArgs(1),
	RunE: runPages,
}

func init() {
	rootCmd.AddCommand(pagesCmd)

	pagesCmd.Flags().Bool("json", false, "Print the page counts as JSON")
}

func runPages(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("pages")
	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	path := args[0]

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		n, err := pdfinfo.CountPages(path)
		if err != nil {
			return fmt.Errorf("failed to count pages of %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: %d pages\n", filepath.Base(path), n)
		return nil
	}

	archives, err := archive.FindArchives(path)
	if err != nil {
		return fmt.Errorf("failed to find archives: %w", err)
	}
	if len(archives) == 0 {
		fmt.Fprintf(out, "No archives found in %s\n", path)
		return nil
	}

	log.Info().Str("path", path).Int("archives", len(archives)).Msg("Counting pages")
	summary := pdfinfo.Analyze(archives)

	if asJSON {
		return report.EncodeJSON(out, summary)
	}

	for _, d := range summary.Documents {
		note := ""
		if d.Estimated {
			note = " (estimated)"
		}
		fmt.Fprintf(out, "  %-40s %5d%s\n", d.Document, d.Pages, note)
	}
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Documents: %d\n", summary.TotalDocuments)
	fmt.Fprintf(out, "Pages:     %d\n", summary.TotalPages)
	if summary.EstimatedPages > 0 {
		fmt.Fprintf(out, "Estimated: %d\n", summary.EstimatedPages)
	}
	return nil
}
