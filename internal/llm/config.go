// Package llm provides model chain configuration and client abstractions for the
// completion providers used by the handoff pipeline.
package llm

import "strings"

// ModelTier represents the complexity/capability level a call site needs
type ModelTier string

const (
	// TierLite is for high-volume, short calls: extractive bullets, map digests
	TierLite ModelTier = "lite"
	// TierStandard is for moderate reasoning: compression, reduce, deep context
	TierStandard ModelTier = "standard"
	// TierAdvanced is for the primer bundle and repair passes
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is any OpenAI-compatible endpoint (OpenAI, Groq)
	ProviderOpenAI Provider = "openai"
)

// Plan names recognised when building chains
const (
	PlanFree  = "free"
	PlanVault = "vault"
)

// ModelRef names one model on one provider
type ModelRef struct {
	Provider Provider `json:"provider"`
	Name     string   `json:"name"`
}

func (m ModelRef) String() string {
	return string(m.Provider) + ":" + m.Name
}

// Chain is an ordered list of acceptable models for one call site
type Chain []ModelRef

// Config holds the model chains for each tier
type Config struct {
	Plan   string
	Chains map[ModelTier]Chain
}

var (
	groqInstant   = ModelRef{ProviderOpenAI, "llama-3.1-8b-instant"}
	groqVersatile = ModelRef{ProviderOpenAI, "llama-3.3-70b-versatile"}
	geminiLite    = ModelRef{ProviderGemini, "gemini-2.5-flash-lite"}
	geminiFlash   = ModelRef{ProviderGemini, "gemini-2.5-flash"}
	geminiPro     = ModelRef{ProviderGemini, "gemini-2.5-pro"}
)

// DefaultConfig returns the chains for a plan. Unknown plans get the free chains.
func DefaultConfig(plan string) *Config {
	if strings.EqualFold(plan, PlanVault) {
		return &Config{
			Plan: PlanVault,
			Chains: map[ModelTier]Chain{
				TierLite:     {groqInstant, geminiLite},
				TierStandard: {groqVersatile, groqInstant, geminiFlash},
				TierAdvanced: {groqVersatile, geminiPro, geminiFlash, groqInstant},
			},
		}
	}
	return &Config{
		Plan: PlanFree,
		Chains: map[ModelTier]Chain{
			TierLite:     {groqInstant, geminiLite},
			TierStandard: {groqInstant, geminiFlash},
			TierAdvanced: {groqVersatile, groqInstant, geminiFlash},
		},
	}
}

// GetChain returns the chain for a given tier
func (c *Config) GetChain(tier ModelTier) Chain {
	if chain, ok := c.Chains[tier]; ok && len(chain) > 0 {
		return chain
	}
	// Fallback chain: try standard, then lite
	if chain, ok := c.Chains[TierStandard]; ok && len(chain) > 0 {
		return chain
	}
	if chain, ok := c.Chains[TierLite]; ok && len(chain) > 0 {
		return chain
	}
	return nil
}

// GetModel returns the first model name for a tier, or "" when none is configured
func (c *Config) GetModel(tier ModelTier) string {
	chain := c.GetChain(tier)
	if len(chain) == 0 {
		return ""
	}
	return chain[0].Name
}

// WithChain returns a new Config with a specific chain for a tier
func (c *Config) WithChain(tier ModelTier, chain Chain) *Config {
	newConfig := &Config{
		Plan:   c.Plan,
		Chains: make(map[ModelTier]Chain, len(c.Chains)+1),
	}
	for k, v := range c.Chains {
		newConfig.Chains[k] = append(Chain(nil), v...)
	}
	newConfig.Chains[tier] = append(Chain(nil), chain...)
	return newConfig
}

// Restrict returns a copy keeping only models whose provider is available.
// Tiers left empty are dropped.
func (c *Config) Restrict(available map[Provider]bool) *Config {
	newConfig := &Config{Plan: c.Plan, Chains: make(map[ModelTier]Chain)}
	for tier, chain := range c.Chains {
		var kept Chain
		for _, ref := range chain {
			if available[ref.Provider] {
				kept = append(kept, ref)
			}
		}
		if len(kept) > 0 {
			newConfig.Chains[tier] = kept
		}
	}
	return newConfig
}
