package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/continuity-handoff/internal/chunking"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/observability"
	"github.com/jonathan/continuity-handoff/internal/pipeline"
	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Generate a handoff document from a saved conversation",
	Long: `Runs the handoff pipeline once, in process: chunking -> selection -> extraction -> primer -> enforcement -> assembly -> scoring.

The conversation is read from a JSON file of {"role","content"} messages (--file) or from an exported chat page (--html).
Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath string
	runFile       string
	runHTML       string
	runTitle      string
	runPlan       string
	runRevision   string
	runChunkChars int
	runOut        string
	runJSON       bool
	runVerbose    bool
)

func init() {
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runFile, "file", "f", "", "Path to a JSON array of conversation messages (mutually exclusive with --html)")
	runCommand.Flags().StringVar(&runHTML, "html", "", "Path to an exported chat HTML page (mutually exclusive with --file)")
	runCommand.Flags().StringVarP(&runTitle, "title", "t", "", "Conversation title (defaults to the input file name)")
	runCommand.Flags().StringVar(&runPlan, "plan", types.PlanFree, "Plan tier: free or vault")
	runCommand.Flags().StringVar(&runRevision, "revision", pipeline.DefaultRevision, "Pipeline revision tag")
	runCommand.Flags().IntVar(&runChunkChars, "chunk-chars", chunking.DefaultMaxChars, "Maximum characters per chunk")
	runCommand.Flags().StringVarP(&runOut, "out", "o", "", "Write the handoff document to this file instead of stdout")
	runCommand.Flags().BoolVar(&runJSON, "json", false, "Print the full result as JSON")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print progress events to stderr")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}

	if (runFile == "") == (runHTML == "") {
		return fmt.Errorf("exactly one of --file or --html must be provided")
	}
	messages, err := readConversation(runFile, runHTML)
	if err != nil {
		return err
	}
	title := runTitle
	if title == "" {
		title = titleFromPath(runFile + runHTML)
	}

	if cmd.Flags().Changed("plan") && runPlan != types.PlanFree && runPlan != types.PlanVault {
		return fmt.Errorf("unknown plan %q", runPlan)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	b, err := newBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	in := pipeline.Input{
		JobID:  uuid.NewString(),
		Title:  title,
		Plan:   runPlan,
		Chunks: chunking.SanitizeAll(chunking.SmartChunks(messages, runChunkChars)),
	}

	printer := observability.NewPrinter(os.Stderr)
	var onProgress pipeline.ProgressCallback
	if runVerbose {
		onProgress = printer.PrintProgress
	}

	res, err := b.runner(cfg, log).Run(ctx, in, runRevision, onProgress)
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}
	if runVerbose {
		printer.PrintBundle(res.Bundle)
		printer.PrintResult(res)
		printer.PrintScore(res.Score, res.Gate)
	}

	output := res.Text
	if runJSON {
		data, err := json.MarshalIndent(newRunOutput(res), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		output = string(data)
	}

	if runOut == "" {
		fmt.Println(output)
	} else {
		if err := os.WriteFile(runOut, []byte(output), 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote handoff to %s\n", runOut)
	}

	if !res.Gate.Pass {
		fmt.Fprintf(os.Stderr, "Quality gate failed (composite %.2f): %s\n",
			res.Score.Composite, strings.Join(res.Gate.Reasons, ", "))
	}
	return nil
}

// runOutput is the --json shape of a finished run
type runOutput struct {
	Text             string             `json:"text"`
	Revision         string             `json:"zt_rev"`
	Model            string             `json:"model"`
	Tokens           int                `json:"tokens"`
	Trimmed          bool               `json:"trimmed"`
	FastPath         bool               `json:"fast_path"`
	Repaired         bool               `json:"repaired"`
	FallbackReason   string             `json:"fallback_reason,omitempty"`
	CoverageBySource float64            `json:"coverage_by_source"`
	Score            types.QualityScore `json:"score"`
	Gate             types.GateResult   `json:"gate"`
}

func newRunOutput(res *pipeline.Result) runOutput {
	return runOutput{
		Text:             res.Text,
		Revision:         res.Revision,
		Model:            res.Model,
		Tokens:           res.Tokens,
		Trimmed:          res.Trimmed,
		FastPath:         res.FastPath,
		Repaired:         res.Repaired,
		FallbackReason:   res.FallbackReason,
		CoverageBySource: res.CoverageBySource,
		Score:            res.Score,
		Gate:             res.Gate,
	}
}

// readConversation loads messages from exactly one of a JSON file or an HTML page
func readConversation(jsonPath, htmlPath string) ([]chunking.Message, error) {
	if htmlPath != "" {
		data, err := os.ReadFile(htmlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read HTML file: %w", err)
		}
		return chunking.FromHTML(string(data))
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}
	var messages []chunking.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse conversation JSON: %w", err)
	}
	return messages, nil
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
