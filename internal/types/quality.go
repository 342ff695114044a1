package types

// QualityScore is the continuity quality of an assembled handoff
type QualityScore struct {
	PrimerCoverage  float64 `json:"primer_coverage"`
	ActionValidity  float64 `json:"action_validity"`
	EvidenceDensity float64 `json:"evidence_density"`
	// GenericPenalty is 1 when a generic phrase leaked into the text
	GenericPenalty float64 `json:"generic_penalty"`
	// GenericScore is 1 - GenericPenalty
	GenericScore float64 `json:"generic_score"`
	Composite    float64 `json:"composite"`
}

// GateResult is the verdict of the quality gate
type GateResult struct {
	Pass    bool     `json:"pass"`
	Reasons []string `json:"reasons,omitempty"`
}
