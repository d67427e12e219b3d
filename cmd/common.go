package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"labelqc/internal/batch"
	"labelqc/internal/quality"
	"labelqc/internal/report"
	"labelqc/internal/sheets"
)

// newContext returns a context that ends after timeoutSecs or on SIGINT /
// SIGTERM.
func newContext(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// progressPrinter prints one line per finished document.
func progressPrinter(out io.Writer, quiet bool) func(done, total int, r batch.Result) {
	if quiet {
		return nil
	}
	return func(done, total int, r batch.Result) {
		fmt.Fprintf(out, "[%d/%d] %s - %s", done, total, filepath.Base(r.Input), statusEmoji(r.Status))
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, " (%s)", r.Err)
		case r.Summary.Fixed():
			fmt.Fprintf(out, " (%d fixes, %d issues left)", quality.CountSuccessful(r.Summary.Fixes), len(r.Summary.IssuesAfter))
		default:
			fmt.Fprintf(out, " (%d issues)", len(r.Summary.Issues))
		}
		fmt.Fprintln(out)
	}
}

func statusEmoji(status batch.Status) string {
	switch status {
	case batch.StatusSuccess:
		return "✅"
	case batch.StatusWarning:
		return "⚠️"
	case batch.StatusError:
		return "❌"
	default:
		return "❓"
	}
}

// printSummary prints the run totals.
func printSummary(out io.Writer, s *report.Summary, results []batch.Result) {
	counts := batch.Count(results)

	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintln(out, "                       RESULT")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Run:          %s\n", s.RunID)
	fmt.Fprintf(out, "Documents:    %d\n", s.TotalFiles)
	fmt.Fprintf(out, "Clean:        %d\n", counts[batch.StatusSuccess])
	if counts[batch.StatusWarning] > 0 {
		fmt.Fprintf(out, "With issues:  %d\n", counts[batch.StatusWarning])
	}
	if counts[batch.StatusError] > 0 {
		fmt.Fprintf(out, "Failed:       %d\n", counts[batch.StatusError])
	}
	fmt.Fprintf(out, "Issues found: %d\n", s.TotalIssues)
	for _, rc := range s.RuleCounts() {
		fmt.Fprintf(out, "  %-13s %d\n", rc.RuleID, rc.Count)
	}
	if s.Command == "fix" {
		fmt.Fprintf(out, "Fixes:        %d applied, %d not applied\n", s.TotalFixes, s.FailedFixes)
		fmt.Fprintf(out, "Issues left:  %d\n", s.IssuesAfter)
	}
	fmt.Fprintf(out, "Non-fixable:  %d\n", s.RemainingNonFixable)
	fmt.Fprintln(out, strings.Repeat("=", 60))
}

// exportOptions are the output flags shared by validate and fix.
type exportOptions struct {
	JSON      bool
	Report    string
	CSV       string
	Sheet     bool
	Worksheet string
}

func addExportFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Bool("json", false, "Print the run summary as JSON to stdout")
	flags.String("report", "", "Write the run summary as JSON to this file")
	flags.String("csv", "", "Write remaining issues as CSV to this file")
	flags.Bool("sheet", false, "Append remaining issues to the Google Sheet in GOOGLE_SHEET_URL")
	flags.String("worksheet", "", "Worksheet name for --sheet (overrides GOOGLE_SHEET_WORKSHEET)")
}

// export writes the summary to every requested destination.
func export(ctx context.Context, out io.Writer, s *report.Summary, opts exportOptions, log zerolog.Logger) error {
	if opts.JSON {
		if err := report.EncodeJSON(out, s); err != nil {
			return fmt.Errorf("failed to print summary: %w", err)
		}
	}
	if opts.Report != "" {
		if err := report.WriteJSON(opts.Report, s); err != nil {
			return err
		}
		log.Info().Str("path", opts.Report).Msg("Wrote JSON report")
	}
	if opts.CSV != "" {
		if err := report.WriteCSV(opts.CSV, s.Issues()); err != nil {
			return err
		}
		log.Info().Str("path", opts.CSV).Msg("Wrote CSV report")
	}
	if opts.Sheet {
		if cfg == nil || cfg.GoogleSheetURL == "" {
			return fmt.Errorf("GOOGLE_SHEET_URL environment variable is required for --sheet")
		}
		worksheet := opts.Worksheet
		if worksheet == "" {
			worksheet = cfg.GoogleSheetWorksheet
		}
		svc, err := sheets.NewSheetsService(ctx, cfg.GoogleSheetURL)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets service: %w", err)
		}
		if err := svc.WriteIssues(ctx, s.RunID, s.Issues(), worksheet); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}
	}
	return nil
}

func readExportFlags(cmd *cobra.Command) exportOptions {
	flags := cmd.Flags()
	var opts exportOptions
	opts.JSON, _ = flags.GetBool("json")
	opts.Report, _ = flags.GetString("report")
	opts.CSV, _ = flags.GetString("csv")
	opts.Sheet, _ = flags.GetBool("sheet")
	opts.Worksheet, _ = flags.GetString("worksheet")
	return opts
}
