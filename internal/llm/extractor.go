// Package llm - extractor.go builds structured extraction prompts from a field schema.
package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema defines the structure for LLM-based content extraction.
// The prompt is rendered by BuildExtractionPrompt.
type ExtractionSchema struct {
	Name        string        // Schema name (e.g., "MapDigest")
	Description string        // System prompt preamble describing the extraction task
	Fields      []SchemaField // Expected output fields
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "string", "[]string", "map[string]string"
	Description string // Description for the LLM
	Required    bool   // Whether this field is required
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	// System description
	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	// Output schema
	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	// Instructions
	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Extract information directly from the text, do not invent or summarize.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	// Input text
	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// --- Predefined Schemas ---

// MapDigestSchema returns the extraction schema for one map-phase chunk group.
// Every list item must come from the chunk text.
func MapDigestSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "MapDigest",
		Description: `You condense one slice of a conversation so another assistant can continue it.
Keep only what was actually said: objectives, facts, decisions, risks, next actions and defined terms.
Do not write meta commentary, greetings, or placeholders.`,
		Fields: []SchemaField{
			{
				Name:        "objectives",
				Type:        "[\"string\"]",
				Description: "Goals the participants are working toward",
				Required:    true,
			},
			{
				Name:        "facts",
				Type:        "[\"string\"]",
				Description: "Concrete facts, numbers and data points",
				Required:    true,
			},
			{
				Name:        "decisions",
				Type:        "[\"string\"]",
				Description: "Choices that were made or approved",
				Required:    true,
			},
			{
				Name:        "risks",
				Type:        "[\"string\"]",
				Description: "Constraints, blockers and open risks",
				Required:    false,
			},
			{
				Name:        "next_actions",
				Type:        "[\"string\"]",
				Description: "Work that still has to happen",
				Required:    false,
			},
			{
				Name:        "terms",
				Type:        "{\"term\": \"definition\"}",
				Description: "Names, acronyms and their meaning",
				Required:    false,
			},
		},
	}
}
