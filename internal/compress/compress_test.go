package compress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/llm/llmtest"
	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/types"
)

var defaultOpts = Options{
	MaxTokens:     2000,
	TargetTokens:  1900,
	CeilingTokens: 4000,
	DropRatio:     0.3,
	Timeout:       time.Second,
}

func sampleBullets(n int) []types.ExtractiveBullet {
	out := make([]types.ExtractiveBullet, n)
	for i := range out {
		out[i] = types.ExtractiveBullet{
			Text:     fmt.Sprintf("Point %d", i+1),
			Quote:    fmt.Sprintf("quote %d", i+1),
			SourceID: fmt.Sprintf("[C%d]", i+1),
		}
	}
	return out
}

// tokensOf returns text estimated at roughly n tokens by whichever counter
// textutil is using
func tokensOf(n int) string {
	perWord := float64(textutil.EstimateTokens(strings.Repeat("word ", 1000))) / 1000
	return strings.Repeat("word ", int(float64(n)/perWord))
}

func newCompressor(respond func(model string, req llm.Request) (string, error)) (*Compressor, *llmtest.Client) {
	client := llmtest.New(llm.ProviderOpenAI)
	client.Respond = respond
	return New(llm.NewCaller(client.Clients(), nil, nil), defaultOpts, nil), client
}

func isSecondPass(req llm.Request) bool {
	return strings.HasPrefix(req.System, "SECOND COMPRESSION PASS")
}

func TestCompress_SinglePass(t *testing.T) {
	c, client := newCompressor(func(_ string, req llm.Request) (string, error) {
		return "Key Facts: beta ships Friday... [C1]\nNext: write plan… now", nil
	})

	res := c.Compress(context.Background(), sampleBullets(5), "Launch")
	assert.Equal(t, 1, res.Passes)
	assert.False(t, res.Fallback)
	assert.NotContains(t, res.Recap, "...")
	assert.NotContains(t, res.Recap, "…")
	assert.Contains(t, res.Recap, "[C1]")

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 2000, calls[0].Request.MaxTokens)
	assert.Contains(t, calls[0].Request.Prompt, "Title: Launch")
	assert.Contains(t, calls[0].Request.Prompt, "Point 1 quote 1 [C1]")
}

func TestCompress_SecondPassWhenOverTarget(t *testing.T) {
	c, _ := newCompressor(func(_ string, req llm.Request) (string, error) {
		if isSecondPass(req) {
			return tokensOf(1200), nil
		}
		return tokensOf(2500), nil
	})

	res := c.Compress(context.Background(), sampleBullets(10), "Launch")
	assert.Equal(t, 2, res.Passes)
	assert.Zero(t, res.Dropped)
	assert.LessOrEqual(t, res.Tokens, 1900)
}

func TestCompress_DropsBulletsWhenOverCeiling(t *testing.T) {
	var seconds atomic.Int32
	c, client := newCompressor(func(_ string, req llm.Request) (string, error) {
		if !isSecondPass(req) {
			return tokensOf(6000), nil
		}
		if seconds.Add(1) == 1 {
			return tokensOf(5000), nil
		}
		return tokensOf(1500), nil
	})

	res := c.Compress(context.Background(), sampleBullets(10), "Launch")
	assert.Equal(t, 3, res.Passes)
	assert.Equal(t, 3, res.Dropped)
	assert.LessOrEqual(t, res.Tokens, 1900)

	last := client.Calls()[2].Request.Prompt
	assert.Contains(t, last, "Point 7 quote 7 [C7]")
	assert.NotContains(t, last, "[C8]")
}

func TestCompress_NeverExceedsCeiling(t *testing.T) {
	c, _ := newCompressor(func(_ string, req llm.Request) (string, error) {
		return tokensOf(9000), nil
	})

	res := c.Compress(context.Background(), sampleBullets(10), "Launch")
	assert.Equal(t, 3, res.Passes)
	assert.LessOrEqual(t, res.Tokens, 4000)
	assert.LessOrEqual(t, textutil.EstimateTokens(res.Recap), 4000)
}

func TestCompress_FailureFallsBackToRawBullets(t *testing.T) {
	c, client := newCompressor(func(_ string, req llm.Request) (string, error) {
		return "", errors.New("upstream down")
	})

	res := c.Compress(context.Background(), sampleBullets(20), "Launch")
	assert.True(t, res.Fallback)
	assert.Equal(t, 1, client.CallCount())

	lines := strings.Split(res.Recap, "\n")
	assert.Len(t, lines, 15)
	assert.Equal(t, "Point 1 [C1]", lines[0])
}

func TestFormatBullets_SkipsEmptyQuote(t *testing.T) {
	out := FormatBullets([]types.ExtractiveBullet{
		{Text: "A", Quote: "q", SourceID: "[C1]"},
		{Text: "B", SourceID: "[C2]"},
	})
	assert.Equal(t, "A q [C1]\nB [C2]", out)
}

func TestDropLowestWeighted(t *testing.T) {
	bullets := []types.ExtractiveBullet{
		{Text: "We decided to ship"},
		{Text: "code snippet"},
		{Text: "a fact"},
		{Text: "thanks hello code"},
	}

	kept := DropLowestWeighted(bullets, 0.5)
	require.Len(t, kept, 2)
	assert.Equal(t, "We decided to ship", kept[0].Text)
	assert.Equal(t, "a fact", kept[1].Text)

	assert.Len(t, DropLowestWeighted(bullets, 0), 4)
	assert.Len(t, DropLowestWeighted(bullets[:1], 0.3), 1)
}

func TestDropLowestWeighted_EqualWeightsDropLater(t *testing.T) {
	bullets := sampleBullets(10)
	kept := DropLowestWeighted(bullets, 0.3)
	require.Len(t, kept, 7)
	assert.Equal(t, "Point 1", kept[0].Text)
	assert.Equal(t, "Point 7", kept[6].Text)
}

func TestStripEllipses(t *testing.T) {
	assert.Equal(t, "a b", StripEllipses("a... b…"))
}
