package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"labelqc/internal/config"
	"labelqc/internal/logger"
	"labelqc/internal/rules"
)

var version = "1.0.0"

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "labelqc",
	Short: "labelqc - quality control for labeled OCR document layouts",
	Long: `labelqc checks and repairs the visual-info JSON files that describe the
labeled layout of OCR'd documents (paragraphs, headings, lists and tables).

It validates documents against a fixed set of labeling rules, applies the
automatic corrections those rules allow, compares automatic results with
human review and counts the pages of the source PDFs.

Documents can be given as ZIP archives, extracted document directories or
single visual-info files.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("labelqc executed")

		fmt.Println("labelqc - labeling quality control")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("rules", "", "YAML rule set file (overrides LABELQC_RULES_FILE)")
	rootCmd.PersistentFlags().Int("workers", 0, "Parallel workers (overrides BATCH_WORKERS)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if rulesFile, _ := cmd.Flags().GetString("rules"); rulesFile != "" {
		loaded.RulesFile = rulesFile
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		loaded.BatchWorkers = workers
	}
	cfg = loaded
	return nil
}

// ruleSet returns the configured rule set: the YAML file if one is set,
// the built-in defaults otherwise.
func ruleSet() (rules.RuleSet, error) {
	if cfg == nil || cfg.RulesFile == "" {
		return rules.DefaultRuleSet(), nil
	}
	set, err := rules.LoadRuleSet(cfg.RulesFile)
	if err != nil {
		return rules.RuleSet{}, fmt.Errorf("failed to load rule set: %w", err)
	}
	log := logger.WithComponent("cmd")
	log.Debug().Str("rules_file", cfg.RulesFile).Msg("Loaded rule set")
	return set, nil
}
