package repair

import (
	"strings"

	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/jonathan/continuity-handoff/internal/validation"
)

// Row keys that can fail validation
const (
	KeyAction   = "action"
	KeyOwner    = "owner"
	KeyDeps     = "deps"
	KeyRollback = "rollback"
	KeyEffort   = "effort_h"
)

// Minimum lengths for a row's free-text fields
const (
	minDepsChars     = 2
	minRollbackChars = 6
)

// Compliant defaults substituted for fields still invalid after repair
const (
	DefaultAction   = "Implement task producing artifact"
	DefaultDeps     = "Previous tasks completed"
	DefaultRollback = "Revert to previous state"
	DefaultEffortH  = 4
)

// ValidateRow returns the keys of r that fail the structural checks, in a
// fixed order. An empty result means the row is valid.
func ValidateRow(r types.NextAction) []string {
	var invalid []string
	if !ActionRe.MatchString(r.Action) {
		invalid = append(invalid, KeyAction)
	}
	if !types.IsOwnerRole(strings.TrimSpace(r.Owner)) {
		invalid = append(invalid, KeyOwner)
	}
	if len(strings.TrimSpace(r.Deps)) < minDepsChars {
		invalid = append(invalid, KeyDeps)
	}
	if len(strings.TrimSpace(r.Rollback)) < minRollbackChars {
		invalid = append(invalid, KeyRollback)
	}
	if r.EffortH <= 0 || r.EffortH >= 100 {
		invalid = append(invalid, KeyEffort)
	}
	return invalid
}

// IsValidRow reports whether r passes every structural check
func IsValidRow(r types.NextAction) bool {
	return len(ValidateRow(r)) == 0
}

// ActionValidity is the fraction of rows passing every check. No rows is 0.
func ActionValidity(rows []types.NextAction) float64 {
	if len(rows) == 0 {
		return 0
	}
	valid := 0
	for _, r := range rows {
		if IsValidRow(r) {
			valid++
		}
	}
	return float64(valid) / float64(len(rows))
}

// SanitizeRows normalizes raw next_actions entries. Actions are reshaped with
// RepairAction, owners mapped with SanitizeOwner and evidence tags kept only
// in the evidence field. Blank deps and rollback stay blank so that
// validation flags them for repair.
func SanitizeRows(raw []any, title string) []types.NextAction {
	rows := make([]types.NextAction, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, sanitizeRow(m, title))
	}
	return rows
}

func sanitizeRow(m map[string]any, title string) types.NextAction {
	row := types.NextAction{
		Owner:    SanitizeOwner(stringify(m[KeyOwner])),
		Deps:     cleanField(stringify(m[KeyDeps])),
		EffortH:  asNumber(m[KeyEffort]),
		Impact:   types.ImpactUp,
		Rollback: cleanField(stringify(m[KeyRollback])),
		Evidence: validation.FirstTag(stringify(m["evidence"])),
	}
	if action := strings.TrimSpace(validation.StripEvidence(stringify(m[KeyAction]))); action != "" {
		row.Action = RepairAction(action, title)
	}
	if row.EffortH == 0 {
		row.EffortH = DefaultEffortH
	}
	if strings.TrimSpace(stringify(m["impact"])) == types.ImpactDown {
		row.Impact = types.ImpactDown
	}
	return row
}

// cleanField strips evidence tags and drops generic text
func cleanField(s string) string {
	s = validation.StripEvidence(s)
	if validation.IsGeneric(s) {
		return ""
	}
	return s
}

// EnforceStrict measures validity and then forces every row into compliance.
// The returned validity is valid rows / total rows before defaults were
// substituted; every returned row passes ValidateRow.
func EnforceStrict(rows []types.NextAction) ([]types.NextAction, float64) {
	validity := ActionValidity(rows)
	out := make([]types.NextAction, len(rows))
	for i, r := range rows {
		for _, key := range ValidateRow(r) {
			switch key {
			case KeyAction:
				r.Action = DefaultAction
			case KeyOwner:
				r.Owner = SanitizeOwner(r.Owner)
			case KeyDeps:
				r.Deps = DefaultDeps
			case KeyRollback:
				r.Rollback = DefaultRollback
			case KeyEffort:
				r.EffortH = DefaultEffortH
			}
		}
		if r.Impact != types.ImpactDown {
			r.Impact = types.ImpactUp
		}
		out[i] = r
	}
	return out, validity
}

// researchRows are appended, when missing, to research threads that come up short
var researchRows = []types.NextAction{
	{Action: "Compile ranked findings producing top10.csv", Owner: "Research", Deps: "Context recap", EffortH: 4, Impact: types.ImpactUp, Rollback: "Revert document"},
	{Action: "Validate sources producing sources.md", Owner: "Research", Deps: "Context recap", EffortH: 4, Impact: types.ImpactUp, Rollback: "Revert document"},
	{Action: "Write synthesis producing insights.md", Owner: "Research", Deps: "Context recap", EffortH: 4, Impact: types.ImpactUp, Rollback: "Revert document"},
}

var researchFiller = types.NextAction{
	Action: "Document current findings producing log.md", Owner: "Research", Deps: "Context recap", EffortH: 2, Impact: types.ImpactUp, Rollback: "Revert log",
}

// ResearchBackstop pads next actions for research-style titles to at least
// minRows rows. Other titles are returned unchanged. The second result is the
// number of rows added.
func ResearchBackstop(title string, rows []types.NextAction, minRows int) ([]types.NextAction, int) {
	if !IsResearchTitle(title) || len(rows) >= minRows {
		return rows, 0
	}
	before := len(rows)
	have := make(map[string]bool, len(rows))
	for _, r := range rows {
		have[strings.ToLower(r.Action)] = true
	}
	for _, r := range researchRows {
		if !have[strings.ToLower(r.Action)] {
			rows = append(rows, r)
		}
	}
	for len(rows) < minRows {
		rows = append(rows, researchFiller)
	}
	return rows, len(rows) - before
}
