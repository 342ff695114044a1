// Package types provides type definitions for structured data used throughout the handoff pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Sentinel marks an epistemic gap in a bundle field
const Sentinel = "Insufficient evidence [ref]"

// Owner roles allowed in a NextAction
var OwnerRoles = []string{"Founder", "Product", "Engineering", "Design", "Research", "Growth", "Ops", "Legal", "Data"}

// Impact markers
const (
	ImpactUp   = "▲"
	ImpactDown = "▼"
)

// RequiredBundleKeys lists the top-level keys every enforced PrimerBundle carries
var RequiredBundleKeys = []string{
	"system_instructions",
	"receiving_guide",
	"user_profile",
	"context_recap",
	"key_facts",
	"decisions",
	"constraints",
	"active_work",
	"open_questions",
	"next_actions",
	"first_task",
	"injection_templates",
}

// PrimerBundle is the structured intermediate representation of a handoff
type PrimerBundle struct {
	SystemInstructions []string           `json:"system_instructions"`
	ReceivingGuide     []string           `json:"receiving_guide"`
	UserProfile        UserProfile        `json:"user_profile"`
	ContextRecap       string             `json:"context_recap"`
	KeyFacts           []string           `json:"key_facts"`
	Decisions          []string           `json:"decisions"`
	Constraints        []string           `json:"constraints"`
	ActiveWork         []string           `json:"active_work"`
	OpenQuestions      []string           `json:"open_questions"`
	NextActions        []NextAction       `json:"next_actions"`
	FirstTask          FirstTask          `json:"first_task"`
	InjectionTemplates InjectionTemplates `json:"injection_templates"`
}

// UserProfile captures the user's preferences observed in the conversation
type UserProfile struct {
	Language     string   `json:"language"`
	Style        []string `json:"style"`
	Wants        []string `json:"wants"`
	Avoid        []string `json:"avoid"`
	DetailLevel  string   `json:"detail_level"`
	FormatPrefs  []string `json:"format_prefs"`
	TargetModels []string `json:"target_models"`
}

// NextAction is one row of the next-actions table
type NextAction struct {
	Action   string  `json:"action"`
	Owner    string  `json:"owner"`
	Deps     string  `json:"deps"`
	EffortH  float64 `json:"effort_h"`
	Impact   string  `json:"impact"`
	Rollback string  `json:"rollback"`
	Evidence string  `json:"evidence,omitempty"`
}

// FirstTask is what the receiving model should do first, with acceptance criteria
type FirstTask struct {
	Bullets    []string `json:"bullets"`
	Acceptance []string `json:"acceptance"`
}

// InjectionTemplates holds one paste-ready paragraph per target model family
type InjectionTemplates struct {
	GPT    string `json:"gpt"`
	Claude string `json:"claude"`
	Gemini string `json:"gemini"`
}

// IsOwnerRole reports whether s is one of OwnerRoles
func IsOwnerRole(s string) bool {
	for _, r := range OwnerRoles {
		if r == s {
			return true
		}
	}
	return false
}
