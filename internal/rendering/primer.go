package rendering

import (
	"embed"
	"strconv"
	"strings"
	"text/template"

	"github.com/jonathan/continuity-handoff/internal/types"
	"github.com/jonathan/continuity-handoff/internal/validation"
)

// MaxActionRows bounds the Next Actions table
const MaxActionRows = 12

//go:embed templates/primer.md.tmpl
var templateFS embed.FS

var primerTemplate = template.Must(
	template.New("primer.md.tmpl").Funcs(template.FuncMap{
		"prose":         Prose,
		"cell":          EscapeCell,
		"effort":        formatEffort,
		"actionRows":    actionRows,
		"templateLines": templateLines,
		"profileLines":  profileLines,
	}).ParseFS(templateFS, "templates/primer.md.tmpl"),
)

// RenderPrimer renders the key-points section of a handoff from an enforced bundle.
// Reference tags are kept only in the evidence column of the Next Actions table.
func RenderPrimer(b *types.PrimerBundle) (string, error) {
	if b == nil {
		return "", &TemplateError{Message: "nil bundle"}
	}
	var out strings.Builder
	if err := primerTemplate.Execute(&out, b); err != nil {
		return "", &TemplateError{Message: "failed to execute primer template", Cause: err}
	}
	return strings.TrimSpace(out.String()), nil
}

// Prose strips reference tags and ellipsis placeholders from narrative text
func Prose(s string) string {
	return validation.StripEvidence(validation.StripEllipses(s))
}

func formatEffort(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

func actionRows(rows []types.NextAction) []types.NextAction {
	if len(rows) > MaxActionRows {
		return rows[:MaxActionRows]
	}
	return rows
}

func templateLines(t types.InjectionTemplates) []string {
	var lines []string
	for _, kv := range []struct{ label, text string }{
		{"GPT", t.GPT}, {"Claude", t.Claude}, {"Gemini", t.Gemini},
	} {
		if p := Prose(kv.text); p != "" {
			lines = append(lines, kv.label+": "+p)
		}
	}
	return lines
}

func profileLines(p types.UserProfile) []string {
	var lines []string
	add := func(label, value string) {
		if value = Prose(value); value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Language", p.Language)
	add("Style", strings.Join(p.Style, ", "))
	add("Wants", strings.Join(p.Wants, ", "))
	add("Avoid", strings.Join(p.Avoid, ", "))
	add("Detail level", p.DetailLevel)
	add("Format", strings.Join(p.FormatPrefs, ", "))
	add("Target models", strings.Join(p.TargetModels, ", "))
	return lines
}
