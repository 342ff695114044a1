package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/continuity-handoff/internal/quality"
	"github.com/jonathan/continuity-handoff/internal/repair"
	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a handoff document against the quality gate",
	Long: `Scores an existing handoff document and the primer JSON it was built from, then applies the quality gate.

The primer may be raw model output; it is enforced to the bundle schema before scoring, and its coverage is measured before enforcement.`,
	RunE: runScore,
}

var (
	scoreConfigPath string
	scoreFile       string
	scoreBundle     string
	scoreTitle      string
	scoreExtractive bool
	scoreThreshold  float64
)

func init() {
	scoreCmd.Flags().StringVar(&scoreConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	scoreCmd.Flags().StringVarP(&scoreFile, "file", "f", "", "Path to the handoff document")
	scoreCmd.Flags().StringVarP(&scoreBundle, "bundle", "b", "", "Path to the primer bundle JSON")
	scoreCmd.Flags().StringVarP(&scoreTitle, "title", "t", "", "Conversation title used when repairing actions")
	scoreCmd.Flags().BoolVar(&scoreExtractive, "extractive", true, "Use the extractive evidence density target")
	scoreCmd.Flags().Float64Var(&scoreThreshold, "threshold", 0, "Composite threshold for the gate (defaults to the configured gate_threshold)")

	_ = scoreCmd.MarkFlagRequired("file")
	_ = scoreCmd.MarkFlagRequired("bundle")

	rootCmd.AddCommand(scoreCmd)
}

// scoreReport is what the score command prints
type scoreReport struct {
	Score types.QualityScore `json:"score"`
	Gate  types.GateResult   `json:"gate"`
}

func runScore(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(scoreConfigPath)
	if err != nil {
		return err
	}
	threshold := cfg.Pipeline.GateThreshold
	if cmd.Flags().Changed("threshold") {
		threshold = scoreThreshold
	}

	doc, err := os.ReadFile(scoreFile)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	raw, err := os.ReadFile(scoreBundle)
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}

	report, err := scoreDocument(string(doc), string(raw), scoreTitle, scoreExtractive, threshold)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal score: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func scoreDocument(doc, rawBundle, title string, extractive bool, threshold float64) (scoreReport, error) {
	enforced := repair.Enforce(rawBundle, title)
	if enforced.ParseError != nil {
		return scoreReport{}, fmt.Errorf("failed to parse bundle: %w", enforced.ParseError)
	}

	score := quality.Score(quality.Input{
		Bundle:     enforced.Bundle,
		Coverage:   enforced.RawCoverage,
		Evidence:   doc,
		Extractive: extractive,
	})
	return scoreReport{Score: score, Gate: quality.Gate(score, threshold)}, nil
}
