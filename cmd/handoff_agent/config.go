package main

import (
	"context"
	"fmt"

	"github.com/jonathan/continuity-handoff/internal/config"
	"github.com/jonathan/continuity-handoff/internal/embedding"
	"github.com/jonathan/continuity-handoff/internal/llm"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/pipeline"
	"github.com/jonathan/continuity-handoff/internal/prompts"
)

// loadConfig reads the optional config file, fills gaps from the environment
// and defaults, then validates the result.
func loadConfig(path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	cfg.ApplyEnv()
	cfg = cfg.MergeWithDefaults(config.Default())
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// backend holds the collaborators every command builds from a Config
type backend struct {
	clients  map[llm.Provider]llm.Client
	embedder embedding.Provider
	closers  []func() error
}

func newBackend(ctx context.Context, cfg config.Config, log *logger.Logger) (*backend, error) {
	for _, set := range []string{prompts.Continuity, prompts.MapReduce} {
		keys, err := prompts.List(set)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		log.Debug("prompt set loaded", "set", set, "prompts", len(keys))
	}

	clients, err := llm.NewClients(ctx, llm.Keys{
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM clients: %w", err)
	}
	if len(clients) == 0 {
		log.Warn("no LLM credentials configured, handoffs will use extractive fallbacks")
	}

	b := &backend{clients: clients, embedder: embedding.NewHashProvider()}
	for _, c := range clients {
		b.closers = append(b.closers, c.Close)
	}

	if cfg.GeminiAPIKey != "" {
		gp, err := embedding.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Warn("embedding provider unavailable, using hashed embeddings", "error", err)
		} else {
			b.embedder = gp
			b.closers = append(b.closers, gp.Close)
		}
	}
	return b, nil
}

func (b *backend) runner(cfg config.Config, log *logger.Logger) *pipeline.Runner {
	return pipeline.NewRunner(pipeline.Deps{
		Clients:  b.clients,
		Embedder: b.embedder,
		Policy:   cfg.Pipeline,
		Log:      log,
	})
}

func (b *backend) Close() {
	for _, c := range b.closers {
		_ = c()
	}
}
