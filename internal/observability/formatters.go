// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/continuity-handoff/internal/pipeline"
	"github.com/jonathan/continuity-handoff/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if r := []rune(line); len(r) > boxWidth-4 {
			line = string(r[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintProgress writes one line per pipeline progress event
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) PrintProgress(ev pipeline.ProgressEvent) {
	line := fmt.Sprintf("[%3d%%] %-10s %s", ev.Percent, ev.Stage, ev.Message)
	if ev.Variant != "" {
		line += fmt.Sprintf(" (%s)", ev.Variant)
	}
	fmt.Fprintln(p.out, line)
}

// PrintBundle outputs the parts of a primer bundle a reader checks first
func (p *Printer) PrintBundle(bundle *types.PrimerBundle) {
	if bundle == nil {
		return
	}

	var sb strings.Builder
	if bundle.ContextRecap != "" {
		sb.WriteString(bundle.ContextRecap)
		sb.WriteString("\n\n")
	}
	writeList(&sb, "Key Facts", bundle.KeyFacts)
	writeList(&sb, "Decisions", bundle.Decisions)
	writeList(&sb, "Open Questions", bundle.OpenQuestions)

	if len(bundle.NextActions) > 0 {
		sb.WriteString("Next Actions:\n")
		count := min(len(bundle.NextActions), maxItemsToShow)
		for _, row := range bundle.NextActions[:count] {
			sb.WriteString(fmt.Sprintf("  • %s [%s, %.1fh]\n", row.Action, row.Owner, row.EffortH))
		}
		if len(bundle.NextActions) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(bundle.NextActions)-maxItemsToShow))
		}
	}

	p.printBox("PRIMER BUNDLE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintScore outputs the quality components and the gate verdict
func (p *Printer) PrintScore(score types.QualityScore, gate types.GateResult) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Primer coverage:  %.2f\n", score.PrimerCoverage))
	sb.WriteString(fmt.Sprintf("Action validity:  %.2f\n", score.ActionValidity))
	sb.WriteString(fmt.Sprintf("Evidence density: %.2f\n", score.EvidenceDensity))
	sb.WriteString(fmt.Sprintf("Generic score:    %.2f\n", score.GenericScore))
	sb.WriteString(fmt.Sprintf("Composite:        %.2f\n", score.Composite))
	sb.WriteString("\n")

	verdict := "PASS"
	if !gate.Pass {
		verdict = "FAIL"
	}
	sb.WriteString("Gate: " + verdict)
	if len(gate.Reasons) > 0 {
		sb.WriteString(" (below bar: " + strings.Join(gate.Reasons, ", ") + ")")
	}

	p.printBox("QUALITY", sb.String())
}

// PrintResult outputs how a run finished
func (p *Printer) PrintResult(res *pipeline.Result) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Revision: %s\n", res.Revision))
	if res.Model != "" {
		sb.WriteString(fmt.Sprintf("Model:    %s\n", res.Model))
	}
	sb.WriteString(fmt.Sprintf("Tokens:   %d\n", res.Tokens))
	sb.WriteString(fmt.Sprintf("Coverage: %.0f%% of selected chunks\n", res.CoverageBySource*100))

	var flags []string
	if res.FastPath {
		flags = append(flags, "fast path")
	}
	if res.Trimmed {
		flags = append(flags, "trimmed")
	}
	if res.Repaired {
		flags = append(flags, "repaired")
	}
	if res.FallbackReason != "" {
		flags = append(flags, "fallback: "+res.FallbackReason)
	}
	if len(flags) > 0 {
		sb.WriteString("Notes:    " + strings.Join(flags, ", ") + "\n")
	}

	p.printBox("HANDOFF", strings.TrimSuffix(sb.String(), "\n"))
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(title + ":\n")
	count := min(len(items), maxItemsToShow)
	for _, item := range items[:count] {
		sb.WriteString(fmt.Sprintf("  • %s\n", item))
	}
	if len(items) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-maxItemsToShow))
	}
	sb.WriteString("\n")
}
