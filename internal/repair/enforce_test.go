package repair

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/continuity-handoff/internal/types"
)

func requireAllKeys(t *testing.T, b *types.PrimerBundle) {
	t.Helper()
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(raw, &obj))
	for _, k := range types.RequiredBundleKeys {
		v, ok := obj[k]
		assert.True(t, ok, "missing %s", k)
		assert.NotNil(t, v, "null %s", k)
	}
}

func TestEnforce_AnyInputIsComplete(t *testing.T) {
	inputs := []string{
		`{}`,
		``,
		`not json at all`,
		`[]`,
		`null`,
		`{"key_facts": 5, "next_actions": "none", "first_task": []}`,
		"```json\n{\"decisions\":[\"Use Postgres\"]}\n```",
		`Here you go: {"context_recap": "Shipping beta"} thanks`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			res := Enforce(in, "Launch")
			require.NotNil(t, res.Bundle)
			requireAllKeys(t, res.Bundle)
			assert.Equal(t, 1.0, res.Coverage)
		})
	}
}

func TestEnforce_EmptyObject(t *testing.T) {
	res := Enforce(`{}`, "t")
	require.NoError(t, res.ParseError)
	assert.Equal(t, 0.0, res.RawCoverage)

	b := res.Bundle
	assert.Equal(t, types.Sentinel, b.ContextRecap)
	assert.Empty(t, b.KeyFacts)
	assert.Empty(t, b.NextActions)
	assert.Equal(t, []string{types.Sentinel, types.Sentinel, types.Sentinel}, b.FirstTask.Bullets)
	assert.Len(t, b.FirstTask.Acceptance, 4)
	assert.Equal(t, types.Sentinel, b.InjectionTemplates.GPT)
	assert.Equal(t, types.Sentinel, b.UserProfile.Language)
}

func TestEnforce_ParseErrorReported(t *testing.T) {
	res := Enforce("nope", "t")
	var repairErr *Error
	assert.ErrorAs(t, res.ParseError, &repairErr)
}

func TestEnforce_GenericRecapReplaced(t *testing.T) {
	raw := `{"context_recap": "As an AI, I summarized the chat.", "key_facts": ["Beta ships Friday [C1]", "Lorem ipsum", ""]}`
	res := Enforce(raw, "Launch")

	assert.Equal(t, types.Sentinel, res.Bundle.ContextRecap)
	assert.Equal(t, []string{"Beta ships Friday [C1]"}, res.Bundle.KeyFacts)
	assert.InDelta(t, 2.0/12.0, res.RawCoverage, 1e-9)
}

func TestEnforce_AllGenericArrayKeepsSentinel(t *testing.T) {
	res := Enforce(`{"decisions": ["Changes Made", "  "]}`, "t")
	assert.Equal(t, []string{types.Sentinel}, res.Bundle.Decisions)
}

func TestEnforce_FirstTaskPaddingKeepsEntries(t *testing.T) {
	raw := `{"first_task": {"bullets": ["Open repo", "Run tests", "Read notes", "Ship"], "acceptance": ["CI green"]}}`
	res := Enforce(raw, "t")
	assert.Equal(t, []string{"Open repo", "Run tests", "Read notes", "Ship"}, res.Bundle.FirstTask.Bullets)
	assert.Equal(t, []string{"CI green", types.Sentinel, types.Sentinel, types.Sentinel}, res.Bundle.FirstTask.Acceptance)
}

func TestEnforce_TemplatesAlias(t *testing.T) {
	res := Enforce(`{"templates": {"gpt": "Continue the launch work", "claude": "Continue"}}`, "t")
	assert.Equal(t, "Continue the launch work", res.Bundle.InjectionTemplates.GPT)
	assert.Equal(t, "Continue", res.Bundle.InjectionTemplates.Claude)
	assert.Equal(t, types.Sentinel, res.Bundle.InjectionTemplates.Gemini)
}

func TestEnforce_ScalarsStringified(t *testing.T) {
	res := Enforce(`{"key_facts": [42, true, {"x": 1}]}`, "t")
	assert.Equal(t, []string{"42", "true"}, res.Bundle.KeyFacts)
}

func TestEnforce_NextActionRowSanitized(t *testing.T) {
	raw := `{"next_actions": [
		{"action": "write the launch plan producing plan.md [C2]", "owner": "dev", "deps": "", "rollback": "Revert doc",
		 "effort_h": "3", "impact": "▼", "evidence": "see [C2]"},
		"not a row"
	]}`
	res := Enforce(raw, "Launch")
	require.Len(t, res.Bundle.NextActions, 1)

	row := res.Bundle.NextActions[0]
	assert.Equal(t, "Write the launch plan producing plan.md", row.Action)
	assert.Equal(t, "Engineering", row.Owner)
	assert.Equal(t, "", row.Deps)
	assert.Equal(t, 3.0, row.EffortH)
	assert.Equal(t, types.ImpactDown, row.Impact)
	assert.Equal(t, "[C2]", row.Evidence)
}

func TestEnforce_DefaultsEffortAndImpact(t *testing.T) {
	res := Enforce(`{"next_actions": [{"action": "Draft notes producing notes.md", "impact": "up"}]}`, "t")
	require.Len(t, res.Bundle.NextActions, 1)
	assert.Equal(t, float64(DefaultEffortH), res.Bundle.NextActions[0].EffortH)
	assert.Equal(t, types.ImpactUp, res.Bundle.NextActions[0].Impact)
	assert.Equal(t, DefaultOwner, res.Bundle.NextActions[0].Owner)
}

func TestCoverageOf(t *testing.T) {
	assert.Equal(t, 0.0, CoverageOf(map[string]any{}))
	assert.InDelta(t, 1.0/12.0, CoverageOf(map[string]any{"key_facts": []any{}, "decisions": nil}), 1e-9)
	assert.Equal(t, 0.0, Coverage(nil))
}
