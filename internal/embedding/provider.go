// Package embedding turns text into fixed-size vectors, via Gemini embeddings
// when configured and a deterministic hashed bag-of-words otherwise.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/textutil"
)

// Provider embeds a batch of texts. The result has the same length and order as texts.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// DefaultEmbeddingModel is the Gemini embedding model used by GeminiProvider
const DefaultEmbeddingModel = "text-embedding-004"

// DefaultEmbedTimeout bounds one preferred-provider call inside FallbackProvider
const DefaultEmbedTimeout = 5 * time.Second

// MaxEmbedTokens caps each text before it is sent to the embedding service
const MaxEmbedTokens = 512

// GeminiProvider calls the Gemini embedding API
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini embedding provider
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: DefaultEmbeddingModel}, nil
}

// Name identifies the provider in logs
func (p *GeminiProvider) Name() string { return "gemini:" + p.model }

// Embed sends normalized, length-capped texts in one batch request
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	em := p.client.EmbeddingModel(p.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(textutil.TruncateTokens(textutil.Normalize(t), MaxEmbedTokens)))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		out[i] = L2Normalize(append([]float32(nil), e.Values...))
	}
	return out, nil
}

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// FallbackProvider tries a preferred provider and degrades silently to
// hashed embeddings on absence, error or timeout. It never returns an error.
// Once degraded it stays on the hash path so all vectors share a dimension;
// create one per pipeline run.
type FallbackProvider struct {
	preferred Provider
	hash      *HashProvider
	timeout   time.Duration
	log       *logger.Logger

	mu       sync.Mutex
	degraded bool
}

// NewFallbackProvider wraps preferred (which may be nil) with the hash
// fallback. Each preferred call is bounded by timeout; zero selects
// DefaultEmbedTimeout.
func NewFallbackProvider(preferred Provider, timeout time.Duration, log *logger.Logger) *FallbackProvider {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultEmbedTimeout
	}
	return &FallbackProvider{preferred: preferred, hash: NewHashProvider(), timeout: timeout, log: log}
}

// Name reports the preferred provider, if any
func (p *FallbackProvider) Name() string {
	if p.preferred == nil {
		return p.hash.Name()
	}
	return p.preferred.Name() + "+hash"
}

// Embed returns vectors of a single dimension for the whole batch
func (p *FallbackProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.preferred != nil && len(texts) > 0 && !p.isDegraded() {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		vectors, err := p.preferred.Embed(callCtx, texts)
		cancel()
		if err == nil && len(vectors) == len(texts) {
			return vectors, nil
		}
		p.mu.Lock()
		p.degraded = true
		p.mu.Unlock()
		p.log.Warn("embedding provider failed, using hashed fallback",
			"provider", p.preferred.Name(), "error", err)
	}
	return p.hash.Embed(ctx, texts)
}

// Degraded reports whether the provider has switched to hashed embeddings
func (p *FallbackProvider) Degraded() bool {
	return p.isDegraded()
}

func (p *FallbackProvider) isDegraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}
