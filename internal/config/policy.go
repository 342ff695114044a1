package config

import (
	"fmt"
	"time"
)

// Policy holds the tunable pipeline parameters. Zero values mean "use the default".
type Policy struct {
	// Input filtering
	DisableNoiseFilter bool      `json:"disable_noise_filter,omitempty"`
	DisableTopicAnchor bool      `json:"disable_topic_anchor,omitempty"`
	AnchorThresholds   []float64 `json:"anchor_thresholds,omitempty"` // tried in order while too few chunks pass
	AnchorMinKeep      int       `json:"anchor_min_keep,omitempty"`
	AnchorFallbackTop  int       `json:"anchor_fallback_top,omitempty"` // top-by-anchor and most-recent counts for the union fallback
	AnchorMaxKeep      int       `json:"anchor_max_keep,omitempty"`

	// Selection
	SelectionK           int     `json:"selection_k,omitempty"`
	SelectionTokenBudget int     `json:"selection_token_budget,omitempty"` // bounded variant sizes k from this
	MMRLambda            float64 `json:"mmr_lambda,omitempty"`

	// Extraction
	ExtractConcurrency int     `json:"extract_concurrency,omitempty"`
	ExtractTimeoutMS   int     `json:"extract_timeout_ms,omitempty"`
	EvidenceQuota      int     `json:"evidence_quota,omitempty"`
	RecallThreshold    float64 `json:"recall_threshold,omitempty"`
	RecallPoolSize     int     `json:"recall_pool_size,omitempty"`

	// Compression
	CompressMaxTokens     int     `json:"compress_max_tokens,omitempty"`
	CompressTimeoutMS     int     `json:"compress_timeout_ms,omitempty"`
	CompressTargetTokens  int     `json:"compress_target_tokens,omitempty"`
	CompressCeilingTokens int     `json:"compress_ceiling_tokens,omitempty"`
	CompressDropRatio     float64 `json:"compress_drop_ratio,omitempty"`

	// Embedding
	EmbedTimeoutMS int `json:"embed_timeout_ms,omitempty"`

	// Primer, enforcement and gate
	PrimerTimeoutMS int     `json:"primer_timeout_ms,omitempty"`
	MaxRepairCalls  int     `json:"max_repair_calls,omitempty"`
	MinNextActions  int     `json:"min_next_actions,omitempty"`
	GateThreshold   float64 `json:"gate_threshold,omitempty"`

	// Budget
	BudgetMS        int `json:"budget_ms,omitempty"`
	FastPathMS      int `json:"fast_path_ms,omitempty"`
	FastPathBullets int `json:"fast_path_bullets,omitempty"`

	// Assembly
	AssemblyCapTokens int `json:"assembly_cap_tokens,omitempty"`
	InjectionMaxChars int `json:"injection_max_chars,omitempty"`

	// Map-reduce
	MapConcurrency int `json:"map_concurrency,omitempty"`

	// Result fetch
	ResultTimeoutMS int `json:"result_timeout_ms,omitempty"`
	ResultPollMS    int `json:"result_poll_ms,omitempty"`
}

// DefaultPolicy returns the production pipeline parameters
func DefaultPolicy() Policy {
	return Policy{
		AnchorThresholds:      []float64{0.35, 0.32, 0.30},
		AnchorMinKeep:         12,
		AnchorFallbackTop:     15,
		AnchorMaxKeep:         30,
		SelectionK:            30,
		SelectionTokenBudget:  60000,
		MMRLambda:             0.72,
		ExtractConcurrency:    8,
		ExtractTimeoutMS:      6000,
		EvidenceQuota:         12,
		RecallThreshold:       0.32,
		RecallPoolSize:        12,
		CompressMaxTokens:     2000,
		CompressTimeoutMS:     12000,
		CompressTargetTokens:  1900,
		CompressCeilingTokens: 4000,
		CompressDropRatio:     0.3,
		PrimerTimeoutMS:       8000,
		MaxRepairCalls:        12,
		MinNextActions:        6,
		GateThreshold:         0.9,
		BudgetMS:              60000,
		FastPathMS:            45000,
		FastPathBullets:       20,
		AssemblyCapTokens:     4000,
		InjectionMaxChars:     9000,
		MapConcurrency:        10,
		ResultTimeoutMS:       60000,
		ResultPollMS:          300,
	}
}

// MergeWithDefaults returns a new Policy with zero fields filled from defaults.
// Bool fields cannot distinguish unset from false, so they are never merged.
func (p Policy) MergeWithDefaults(defaults Policy) Policy {
	result := p

	if len(result.AnchorThresholds) == 0 {
		result.AnchorThresholds = append([]float64(nil), defaults.AnchorThresholds...)
	}
	mergeInt(&result.AnchorMinKeep, defaults.AnchorMinKeep)
	mergeInt(&result.AnchorFallbackTop, defaults.AnchorFallbackTop)
	mergeInt(&result.AnchorMaxKeep, defaults.AnchorMaxKeep)
	mergeInt(&result.SelectionK, defaults.SelectionK)
	mergeInt(&result.SelectionTokenBudget, defaults.SelectionTokenBudget)
	mergeFloat(&result.MMRLambda, defaults.MMRLambda)
	mergeInt(&result.ExtractConcurrency, defaults.ExtractConcurrency)
	mergeInt(&result.ExtractTimeoutMS, defaults.ExtractTimeoutMS)
	mergeInt(&result.EvidenceQuota, defaults.EvidenceQuota)
	mergeFloat(&result.RecallThreshold, defaults.RecallThreshold)
	mergeInt(&result.RecallPoolSize, defaults.RecallPoolSize)
	mergeInt(&result.CompressMaxTokens, defaults.CompressMaxTokens)
	mergeInt(&result.CompressTimeoutMS, defaults.CompressTimeoutMS)
	mergeInt(&result.CompressTargetTokens, defaults.CompressTargetTokens)
	mergeInt(&result.CompressCeilingTokens, defaults.CompressCeilingTokens)
	mergeFloat(&result.CompressDropRatio, defaults.CompressDropRatio)
	mergeInt(&result.EmbedTimeoutMS, defaults.EmbedTimeoutMS)
	mergeInt(&result.PrimerTimeoutMS, defaults.PrimerTimeoutMS)
	mergeInt(&result.MaxRepairCalls, defaults.MaxRepairCalls)
	mergeInt(&result.MinNextActions, defaults.MinNextActions)
	mergeFloat(&result.GateThreshold, defaults.GateThreshold)
	mergeInt(&result.BudgetMS, defaults.BudgetMS)
	mergeInt(&result.FastPathMS, defaults.FastPathMS)
	mergeInt(&result.FastPathBullets, defaults.FastPathBullets)
	mergeInt(&result.AssemblyCapTokens, defaults.AssemblyCapTokens)
	mergeInt(&result.InjectionMaxChars, defaults.InjectionMaxChars)
	mergeInt(&result.MapConcurrency, defaults.MapConcurrency)
	mergeInt(&result.ResultTimeoutMS, defaults.ResultTimeoutMS)
	mergeInt(&result.ResultPollMS, defaults.ResultPollMS)

	return result
}

// Validate checks parameter ranges
func (p Policy) Validate() error {
	if p.MMRLambda < 0 || p.MMRLambda > 1 {
		return fmt.Errorf("config error: 'mmr_lambda' must be in [0,1]")
	}
	if p.GateThreshold < 0 || p.GateThreshold > 1 {
		return fmt.Errorf("config error: 'gate_threshold' must be in [0,1]")
	}
	if p.RecallThreshold < 0 || p.RecallThreshold > 1 {
		return fmt.Errorf("config error: 'recall_threshold' must be in [0,1]")
	}
	if p.CompressDropRatio < 0 || p.CompressDropRatio >= 1 {
		return fmt.Errorf("config error: 'compress_drop_ratio' must be in [0,1)")
	}
	for _, th := range p.AnchorThresholds {
		if th < 0 || th > 1 {
			return fmt.Errorf("config error: anchor threshold %v must be in [0,1]", th)
		}
	}
	if p.EmbedTimeoutMS < 0 || p.PrimerTimeoutMS < 0 || p.ExtractTimeoutMS < 0 || p.CompressTimeoutMS < 0 {
		return fmt.Errorf("config error: timeouts must be non-negative")
	}
	if p.SelectionK < 0 || p.ExtractConcurrency < 0 || p.MapConcurrency < 0 || p.MaxRepairCalls < 0 {
		return fmt.Errorf("config error: counts must be non-negative")
	}
	if p.FastPathMS > 0 && p.BudgetMS > 0 && p.FastPathMS > p.BudgetMS {
		return fmt.Errorf("config error: 'fast_path_ms' must not exceed 'budget_ms'")
	}
	if p.CompressTargetTokens > 0 && p.CompressCeilingTokens > 0 && p.CompressTargetTokens > p.CompressCeilingTokens {
		return fmt.Errorf("config error: 'compress_target_tokens' must not exceed 'compress_ceiling_tokens'")
	}
	return nil
}

// Duration converts a millisecond field to a time.Duration
func Duration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func mergeInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func mergeFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}
