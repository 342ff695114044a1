// Package extract runs the extractive pass: one short completion per chunk
// yielding evidence-tagged bullets whose quotes come verbatim from the chunk.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/prompts"
	"github.com/jonathan/continuity-handoff/internal/textutil"
	"github.com/jonathan/continuity-handoff/internal/types"
)

const (
	promptFile     = prompts.Continuity
	maxOutputToken = 320
	maxBullets     = 2
)

// Options controls the extractive pass
type Options struct {
	Concurrency int
	Timeout     time.Duration
	Quota       int // minimum bullets before recall backfill stops
}

// Extractor calls the completion service for each chunk
type Extractor struct {
	caller *llm.Caller
	opts   Options
	log    *logger.Logger
}

// Batch is the result of extracting a set of chunks
type Batch struct {
	Bullets []types.ExtractiveBullet
	// PerChunk counts bullets produced by each input chunk, in input order
	PerChunk []int
}

// Covered returns how many chunks produced at least one bullet
func (b Batch) Covered() int {
	n := 0
	for _, c := range b.PerChunk {
		if c > 0 {
			n++
		}
	}
	return n
}

// New creates an Extractor
func New(caller *llm.Caller, opts Options, log *logger.Logger) *Extractor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{caller: caller, opts: opts, log: log}
}

// ChunkID formats the evidence tag for a 1-based chunk number
func ChunkID(n int) string {
	return "[C" + strconv.Itoa(n) + "]"
}

// Chunk extracts up to two bullets from one chunk. Timeouts, chain failures
// and malformed JSON all yield an empty list.
func (e *Extractor) Chunk(ctx context.Context, chunk string, chunkNum int) []types.ExtractiveBullet {
	vars := map[string]string{"ChunkID": strconv.Itoa(chunkNum), "Chunk": chunk}
	req := llm.Request{
		System:    prompts.Format(prompts.MustGet(promptFile, "extractive-system"), vars),
		Prompt:    prompts.Format(prompts.MustGet(promptFile, "extractive-user"), vars),
		MaxTokens: maxOutputToken,
		JSON:      true,
	}

	res, err := e.caller.Call(ctx, llm.TierLite, req, e.opts.Timeout)
	if err != nil {
		e.log.Debug("extractive call failed", "chunk", chunkNum, "error", err.Error())
		return nil
	}

	bullets, err := ParseBullets(res.Content, chunk, chunkNum)
	if err != nil {
		e.log.Debug("extractive output unparseable", "chunk", chunkNum, "error", err.Error())
		return nil
	}
	return bullets
}

// Run extracts every chunk with at most Concurrency calls in flight. Chunks
// are numbered from firstNum. onDone, when set, is called after each chunk.
func (e *Extractor) Run(ctx context.Context, chunks []string, firstNum int, onDone func(done, total int)) Batch {
	results := make([][]types.ExtractiveBullet, len(chunks))
	var done atomic.Int32

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = e.Chunk(gCtx, chunk, firstNum+i)
			n := done.Add(1)
			if onDone != nil {
				onDone(int(n), len(chunks))
			}
			return nil // a failed chunk never fails the batch
		})
	}
	_ = g.Wait()

	batch := Batch{PerChunk: make([]int, len(chunks))}
	for i, r := range results {
		batch.PerChunk[i] = len(r)
		batch.Bullets = append(batch.Bullets, r...)
	}
	return batch
}

// Backfill extracts recall chunks one at a time until the batch holds at
// least Quota bullets or the pool is exhausted. Recall chunks are numbered
// after the selected chunks. The second result is how many recall chunks
// were used.
func (e *Extractor) Backfill(ctx context.Context, batch Batch, recall []string) (Batch, int) {
	used := 0
	next := len(batch.PerChunk) + 1
	for _, chunk := range recall {
		if len(batch.Bullets) >= e.opts.Quota || ctx.Err() != nil {
			break
		}
		bullets := e.Chunk(ctx, chunk, next)
		batch.Bullets = append(batch.Bullets, bullets...)
		batch.PerChunk = append(batch.PerChunk, len(bullets))
		next++
		used++
	}
	return batch, used
}

type rawBullet struct {
	Text  string `json:"text"`
	Quote string `json:"quote"`
	ID    string `json:"id"`
}

// ParseBullets decodes {"bullets":[...]} output. Each bullet is tagged with
// the chunk's id, its quote is capped at types.MaxQuoteChars and replaced by
// "" when it cannot be found in the chunk.
func ParseBullets(raw, chunk string, chunkNum int) ([]types.ExtractiveBullet, error) {
	var payload struct {
		Bullets []rawBullet `json:"bullets"`
	}
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse bullets JSON: %w", err)
	}

	id := ChunkID(chunkNum)
	out := make([]types.ExtractiveBullet, 0, len(payload.Bullets))
	for _, b := range payload.Bullets {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		quote, ok := LocateQuote(chunk, strings.TrimSpace(b.Quote))
		out = append(out, types.ExtractiveBullet{
			Text:     text,
			Quote:    quote,
			SourceID: id,
			Verified: ok,
		})
		if len(out) == maxBullets {
			break
		}
	}
	return out, nil
}

// LocateQuote returns the exact chunk text matching quote, capped at
// types.MaxQuoteChars runes. It falls back to an ASCII case-insensitive match
// and returns ("", false) when the quote is not in the chunk.
func LocateQuote(chunk, quote string) (string, bool) {
	if quote == "" {
		return "", false
	}
	quote = textutil.TruncateRunes(quote, types.MaxQuoteChars)

	if strings.Contains(chunk, quote) {
		return quote, true
	}

	lowerChunk := strings.ToLower(chunk)
	lowerQuote := strings.ToLower(quote)
	if len(lowerChunk) != len(chunk) || len(lowerQuote) != len(quote) {
		return "", false
	}
	if idx := strings.Index(lowerChunk, lowerQuote); idx >= 0 {
		return chunk[idx : idx+len(quote)], true
	}
	return "", false
}
