// Package repair coerces raw model output into a complete PrimerBundle,
// validates and repairs next-action rows, and repairs whole documents that
// fail the quality gate.
package repair

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/jonathan/continuity-handoff/internal/validation"
)

// Padding for first_task
const (
	FirstTaskBullets    = 3
	FirstTaskAcceptance = 4
)

// Enforced is a coerced bundle with its coverage metrics
type Enforced struct {
	Bundle *types.PrimerBundle
	// Coverage is the share of required keys present and non-null in the
	// enforced bundle. It is 1.0 by construction.
	Coverage float64
	// RawCoverage is the same ratio measured on the model output
	RawCoverage float64
	// ParseError is set when the raw output was not a JSON object
	ParseError error
}

// ParseRaw decodes model output into an untyped object. Code fences and
// prose around the JSON are tolerated.
func ParseRaw(raw string) (map[string]any, error) {
	cleaned := llm.CleanJSONBlock(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return map[string]any{}, &Error{Message: "bundle is not a JSON object", Cause: err}
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

// Enforce coerces raw model output into a PrimerBundle with every required
// key populated. Generic strings become the sentinel, first_task is padded,
// and next_actions rows are sanitized (but not yet repaired).
func Enforce(raw, title string) Enforced {
	obj, err := ParseRaw(raw)
	enforced := EnforceObject(obj, title)
	enforced.ParseError = err
	return enforced
}

// EnforceObject coerces an already decoded object
func EnforceObject(in map[string]any, title string) Enforced {
	prof := asObject(in["user_profile"])
	ft := asObject(in["first_task"])
	inj := asObject(in["injection_templates"])
	if len(inj) == 0 {
		inj = asObject(in["templates"])
	}

	bundle := &types.PrimerBundle{
		SystemInstructions: ensureStringArray(in["system_instructions"]),
		ReceivingGuide:     ensureStringArray(in["receiving_guide"]),
		UserProfile: types.UserProfile{
			Language:     ensureString(prof["language"]),
			Style:        ensureStringArray(prof["style"]),
			Wants:        ensureStringArray(prof["wants"]),
			Avoid:        ensureStringArray(prof["avoid"]),
			DetailLevel:  ensureString(prof["detail_level"]),
			FormatPrefs:  ensureStringArray(prof["format_prefs"]),
			TargetModels: ensureStringArray(prof["target_models"]),
		},
		ContextRecap:  ensureString(in["context_recap"]),
		KeyFacts:      ensureStringArray(in["key_facts"]),
		Decisions:     ensureStringArray(in["decisions"]),
		Constraints:   ensureStringArray(in["constraints"]),
		ActiveWork:    ensureStringArray(in["active_work"]),
		OpenQuestions: ensureStringArray(in["open_questions"]),
		NextActions:   SanitizeRows(asArray(in["next_actions"]), title),
		FirstTask: types.FirstTask{
			Bullets:    pad(ensureStringArray(ft["bullets"]), FirstTaskBullets),
			Acceptance: pad(ensureStringArray(ft["acceptance"]), FirstTaskAcceptance),
		},
		InjectionTemplates: types.InjectionTemplates{
			GPT:    ensureString(inj["gpt"]),
			Claude: ensureString(inj["claude"]),
			Gemini: ensureString(inj["gemini"]),
		},
	}

	return Enforced{
		Bundle:      bundle,
		Coverage:    Coverage(bundle),
		RawCoverage: CoverageOf(in),
	}
}

// Coverage measures required-key coverage of a typed bundle
func Coverage(b *types.PrimerBundle) float64 {
	if b == nil {
		return 0
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return 0
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0
	}
	return CoverageOf(obj)
}

// CoverageOf returns present-and-non-null required keys / required keys
func CoverageOf(obj map[string]any) float64 {
	present := 0
	for _, k := range types.RequiredBundleKeys {
		if v, ok := obj[k]; ok && v != nil {
			present++
		}
	}
	return float64(present) / float64(len(types.RequiredBundleKeys))
}

// ensureString returns the trimmed string form of v, or the sentinel when
// it is blank or generic
func ensureString(v any) string {
	s := strings.TrimSpace(stringify(v))
	if validation.IsGeneric(s) {
		return types.Sentinel
	}
	return s
}

// ensureStringArray keeps the non-generic strings of v. An array whose every
// entry was generic becomes a single sentinel so the gap stays visible.
func ensureStringArray(v any) []string {
	items := asArray(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := strings.TrimSpace(stringify(item))
		if validation.IsGeneric(s) {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 && len(items) > 0 {
		out = append(out, types.Sentinel)
	}
	return out
}

func pad(items []string, n int) []string {
	for len(items) < n {
		items = append(items, types.Sentinel)
	}
	return items
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asArray(v any) []any {
	if a, ok := v.([]any); ok {
		return a
	}
	return nil
}

func asNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
