package repair

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/prompts"
	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/types"
)

const (
	promptFile        = prompts.Continuity
	rowPatchMaxTokens = 320
	// validityRepairThreshold triggers targeted row repair when fewer rows are valid
	validityRepairThreshold = 0.9
	maxContextChars         = 4000
)

// Options bounds the repair work done for one run
type Options struct {
	MaxRowRepairs     int
	MinNextActions    int
	Timeout           time.Duration
	DocumentMaxTokens int
}

// OptionsForPlan returns repair options sized for a plan
func OptionsForPlan(plan string, maxRowRepairs, minNextActions int, timeout time.Duration) Options {
	docMax := 2000
	if plan == types.PlanVault {
		docMax = 2200
	}
	return Options{
		MaxRowRepairs:     maxRowRepairs,
		MinNextActions:    minNextActions,
		Timeout:           timeout,
		DocumentMaxTokens: docMax,
	}
}

// Repairer issues targeted row repairs and whole-document repairs
type Repairer struct {
	caller *llm.Caller
	opts   Options
	log    *logger.Logger
}

// New creates a Repairer
func New(caller *llm.Caller, opts Options, log *logger.Logger) *Repairer {
	if log == nil {
		log = logger.Nop()
	}
	return &Repairer{caller: caller, opts: opts, log: log}
}

// ActionsResult is the outcome of next-action enforcement
type ActionsResult struct {
	Rows []types.NextAction
	// Validity is the share of rows that passed validation without canned defaults
	Validity float64
	// Repairs is the number of targeted repair calls made
	Repairs int
	// Backstopped is the number of canned rows added for research threads
	Backstopped int
}

// EnforceNextActions repairs invalid rows with targeted calls when validity is
// below 0.9, forces every row into compliance, and applies the research
// backstop. contextText gives the repair calls something to ground on.
func (r *Repairer) EnforceNextActions(ctx context.Context, rows []types.NextAction, title, contextText string) ActionsResult {
	res := ActionsResult{}
	if ActionValidity(rows) < validityRepairThreshold && len(rows) > 0 {
		rows, res.Repairs = r.RepairRows(ctx, rows, title, contextText)
	}
	rows, res.Validity = EnforceStrict(rows)
	rows, res.Backstopped = ResearchBackstop(title, rows, r.opts.MinNextActions)
	res.Rows = rows
	return res
}

// RepairRows sends each invalid row, with only its failing keys, to the
// completion service and merges the returned patch. At most MaxRowRepairs
// calls are made; rows beyond the cap are returned unchanged.
func (r *Repairer) RepairRows(ctx context.Context, rows []types.NextAction, title, contextText string) ([]types.NextAction, int) {
	out := make([]types.NextAction, len(rows))
	copy(out, rows)
	calls := 0

	for i, row := range out {
		invalid := ValidateRow(row)
		if len(invalid) == 0 {
			continue
		}
		if calls >= r.opts.MaxRowRepairs {
			break
		}
		calls++

		patched, err := r.repairRow(ctx, i, row, invalid, title, contextText)
		if err != nil {
			r.log.Debug("row repair skipped", "row", i, "error", err.Error())
			continue
		}
		out[i] = patched
	}
	return out, calls
}

func (r *Repairer) repairRow(ctx context.Context, idx int, row types.NextAction, keys []string, title, contextText string) (types.NextAction, error) {
	rowJSON, _ := json.Marshal(row)
	vars := map[string]string{
		"Keys":    strings.Join(keys, ", "),
		"Title":   title,
		"Row":     string(rowJSON),
		"Context": textutil.TruncateRunes(contextText, maxContextChars),
	}
	req := llm.Request{
		System:    prompts.Format(prompts.MustGet(promptFile, "repair-row-system"), vars),
		Prompt:    prompts.Format(prompts.MustGet(promptFile, "repair-row-user"), vars),
		MaxTokens: rowPatchMaxTokens,
		JSON:      true,
	}

	res, err := r.caller.Call(ctx, llm.TierStandard, req, r.opts.Timeout)
	if err != nil {
		return row, &PatchError{Row: idx, Keys: keys, Message: "repair call failed", Cause: err}
	}
	patch, err := ParseRaw(res.Content)
	if err != nil {
		return row, &PatchError{Row: idx, Keys: keys, Message: "patch is not a JSON object", Cause: err}
	}
	return MergePatch(row, patch, keys, title), nil
}

// MergePatch applies the requested keys of patch over row and re-sanitizes
// the merged row. Keys not requested are ignored.
func MergePatch(row types.NextAction, patch map[string]any, keys []string, title string) types.NextAction {
	for _, key := range keys {
		v, ok := patch[key]
		if !ok {
			continue
		}
		switch key {
		case KeyAction:
			row.Action = stringify(v)
		case KeyOwner:
			row.Owner = stringify(v)
		case KeyDeps:
			row.Deps = stringify(v)
		case KeyRollback:
			row.Rollback = stringify(v)
		case KeyEffort:
			row.EffortH = asNumber(v)
		}
	}
	if row.Action != "" {
		row.Action = RepairAction(row.Action, title)
	}
	row.Owner = SanitizeOwner(row.Owner)
	row.Deps = cleanField(row.Deps)
	row.Rollback = cleanField(row.Rollback)
	return row
}

// RepairDocument resubmits the whole assembled document with the gate's
// deficiency reasons and returns the repaired text
func (r *Repairer) RepairDocument(ctx context.Context, title, document string, reasons []string) (string, error) {
	vars := map[string]string{
		"Title":    title,
		"Document": document,
		"Reasons":  strings.Join(reasons, ", "),
	}
	req := llm.Request{
		System:    prompts.Format(prompts.MustGet(promptFile, "repair-document-system"), vars),
		Prompt:    prompts.Format(prompts.MustGet(promptFile, "repair-document-user"), vars),
		MaxTokens: r.opts.DocumentMaxTokens,
	}

	res, err := r.caller.Call(ctx, llm.TierAdvanced, req, r.opts.Timeout)
	if err != nil {
		return "", &Error{Message: "document repair failed", Cause: err}
	}
	text := strings.TrimSpace(res.Content)
	if text == "" {
		return "", &Error{Message: "document repair returned empty text"}
	}
	return text, nil
}
