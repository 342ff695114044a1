// Package compress collapses extractive bullets into one dense recap under a
// hard token ceiling.
package compress

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/prompts"
	"github.com/jonathan/continuity-handoff/internal/selection"
	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/types"
)

const (
	promptFile = prompts.Continuity
	// fallbackBullets is how many bullets the recap keeps when the first pass fails
	fallbackBullets = 15
)

// Options bounds the shrink loop
type Options struct {
	MaxTokens     int     // first-pass output cap
	TargetTokens  int     // a recap above this triggers the aggressive pass
	CeilingTokens int     // absolute maximum
	DropRatio     float64 // share of lowest-weighted bullets dropped before the last pass
	Timeout       time.Duration
}

// Result is a compressed recap
type Result struct {
	Recap    string
	Tokens   int
	Passes   int  // completion calls made
	Dropped  int  // bullets dropped before the last pass
	Fallback bool // first pass failed and the recap was built from raw bullets
}

// Compressor runs the bounded shrink loop
type Compressor struct {
	caller *llm.Caller
	opts   Options
	log    *logger.Logger
}

// New creates a Compressor
func New(caller *llm.Caller, opts Options, log *logger.Logger) *Compressor {
	if log == nil {
		log = logger.Nop()
	}
	return &Compressor{caller: caller, opts: opts, log: log}
}

// Compress produces the dense recap. It makes at most three calls: the first
// pass, an aggressive pass when the recap is over TargetTokens, and one more
// aggressive pass over a reduced bullet set when still over CeilingTokens.
// The returned recap never exceeds CeilingTokens and never contains ellipses.
func (c *Compressor) Compress(ctx context.Context, bullets []types.ExtractiveBullet, title string) Result {
	res := Result{}

	recap, err := c.pass(ctx, bullets, title, false, c.opts.MaxTokens)
	res.Passes++
	if err != nil || strings.TrimSpace(recap) == "" {
		c.log.Warn("compression failed, using raw bullets", "error", errString(err))
		recap = FallbackRecap(bullets, fallbackBullets)
		res.Fallback = true
	}

	if !res.Fallback && textutil.EstimateTokens(recap) > c.opts.TargetTokens {
		second, err := c.pass(ctx, bullets, title, true, c.opts.TargetTokens)
		res.Passes++
		if err == nil && strings.TrimSpace(second) != "" {
			recap = second
		}

		if textutil.EstimateTokens(recap) > c.opts.CeilingTokens {
			kept := DropLowestWeighted(bullets, c.opts.DropRatio)
			res.Dropped = len(bullets) - len(kept)
			third, err := c.pass(ctx, kept, title, true, c.opts.TargetTokens)
			res.Passes++
			if err == nil && strings.TrimSpace(third) != "" {
				recap = third
			}
		}
	}

	recap = StripEllipses(recap)
	if textutil.EstimateTokens(recap) > c.opts.CeilingTokens {
		recap = textutil.TruncateTokens(recap, c.opts.CeilingTokens)
	}
	res.Recap = recap
	res.Tokens = textutil.EstimateTokens(recap)
	return res
}

func (c *Compressor) pass(ctx context.Context, bullets []types.ExtractiveBullet, title string, second bool, maxTokens int) (string, error) {
	vars := map[string]string{
		"Title":        title,
		"Bullets":      FormatBullets(bullets),
		"MaxTokens":    strconv.Itoa(c.opts.MaxTokens),
		"TargetTokens": strconv.Itoa(c.opts.TargetTokens),
	}
	system := "compress-system"
	if second {
		system = "compress-second-system"
	}
	req := llm.Request{
		System:    prompts.Format(prompts.MustGet(promptFile, system), vars),
		Prompt:    prompts.Format(prompts.MustGet(promptFile, "compress-user"), vars),
		MaxTokens: maxTokens,
	}

	res, err := c.caller.Call(ctx, llm.TierStandard, req, c.opts.Timeout)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Content), nil
}

// FormatBullets renders one "text quote id" line per bullet
func FormatBullets(bullets []types.ExtractiveBullet) string {
	lines := make([]string, 0, len(bullets))
	for _, b := range bullets {
		parts := []string{b.Text}
		if b.Quote != "" {
			parts = append(parts, b.Quote)
		}
		parts = append(parts, b.SourceID)
		lines = append(lines, strings.Join(parts, " "))
	}
	return strings.Join(lines, "\n")
}

// FallbackRecap renders the first n bullets as "text id" lines
func FallbackRecap(bullets []types.ExtractiveBullet, n int) string {
	if len(bullets) > n {
		bullets = bullets[:n]
	}
	lines := make([]string, 0, len(bullets))
	for _, b := range bullets {
		lines = append(lines, strings.TrimSpace(b.Text+" "+b.SourceID))
	}
	return strings.Join(lines, "\n")
}

// DropLowestWeighted removes floor(len*ratio) bullets with the lowest
// category weight. Equal weights drop later bullets first; order is preserved.
func DropLowestWeighted(bullets []types.ExtractiveBullet, ratio float64) []types.ExtractiveBullet {
	drop := int(float64(len(bullets)) * ratio)
	if drop <= 0 {
		return bullets
	}

	idx := make([]int, len(bullets))
	weights := make([]float64, len(bullets))
	for i, b := range bullets {
		idx[i] = i
		weights[i] = selection.BaseWeight(b.Text)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if weights[idx[a]] != weights[idx[b]] {
			return weights[idx[a]] < weights[idx[b]]
		}
		return idx[a] > idx[b]
	})

	dropped := make(map[int]bool, drop)
	for _, i := range idx[:drop] {
		dropped[i] = true
	}
	kept := make([]types.ExtractiveBullet, 0, len(bullets)-drop)
	for i, b := range bullets {
		if !dropped[i] {
			kept = append(kept, b)
		}
	}
	return kept
}

// StripEllipses removes "..." and "…" placeholders
func StripEllipses(text string) string {
	text = strings.ReplaceAll(text, "...", "")
	return strings.ReplaceAll(text, "…", "")
}

func errString(err error) string {
	if err == nil {
		return "empty output"
	}
	return err.Error()
}
