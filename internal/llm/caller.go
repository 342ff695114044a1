package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/continuity-handoff/internal/logger"
)

// Result is a successful completion and the model that produced it
type Result struct {
	Content string
	Model   ModelRef
}

// Caller runs requests through model chains for one pipeline run.
// All calls made through a Caller share its Backoff.
type Caller struct {
	clients map[Provider]Client
	config  *Config
	backoff *Backoff
	log     *logger.Logger
}

// NewCaller creates a Caller with a fresh Backoff
func NewCaller(clients map[Provider]Client, config *Config, log *logger.Logger) *Caller {
	if config == nil {
		config = DefaultConfig(PlanFree)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Caller{
		clients: clients,
		config:  config,
		backoff: NewBackoff(),
		log:     log,
	}
}

// Backoff returns the run's shared backoff
func (c *Caller) Backoff() *Backoff {
	return c.backoff
}

// Config returns the chain configuration
func (c *Caller) Config() *Config {
	return c.config
}

// Available reports whether any model in the tier's chain has a client
func (c *Caller) Available(tier ModelTier) bool {
	for _, ref := range c.config.GetChain(tier) {
		if _, ok := c.clients[ref.Provider]; ok {
			return true
		}
	}
	return false
}

// DefaultCallTimeout bounds an attempt when the caller passes no timeout
const DefaultCallTimeout = 12 * time.Second

// Call runs req on the tier's chain with a per-attempt timeout
// (DefaultCallTimeout when zero)
func (c *Caller) Call(ctx context.Context, tier ModelTier, req Request, timeout time.Duration) (Result, error) {
	return c.CallChain(ctx, c.config.GetChain(tier), req, timeout)
}

// CallChain tries each model in order. Errors, empty output and inline error
// markers advance to the next model; only exhausting the chain is an error.
func (c *Caller) CallChain(ctx context.Context, chain Chain, req Request, timeout time.Duration) (Result, error) {
	chainErr := &ChainError{}

	for _, ref := range chain {
		client, ok := c.clients[ref.Provider]
		if !ok {
			continue
		}

		if err := c.backoff.Wait(ctx); err != nil {
			chainErr.Cause = err
			return Result{}, chainErr
		}

		out, err := c.generate(ctx, client, ref, req, timeout)
		if err == nil && IsErrorShaped(out) {
			err = ErrEmptyOutput
		}
		if err == nil {
			c.backoff.Drop()
			return Result{Content: out, Model: ref}, nil
		}

		chainErr.Attempts = append(chainErr.Attempts, Attempt{Model: ref, Err: err})
		if IsRateLimited(err) {
			c.backoff.Bump()
			c.log.Warn("model rate limited", "model", ref.String(), "backoff_ms", c.backoff.Current().Milliseconds())
		} else {
			c.backoff.Drop()
			c.log.Debug("model attempt failed", "model", ref.String(), "error", err.Error())
		}

		if ctx.Err() != nil {
			chainErr.Cause = ctx.Err()
			return Result{}, chainErr
		}
	}

	return Result{}, chainErr
}

func (c *Caller) generate(ctx context.Context, client Client, ref ModelRef, req Request, timeout time.Duration) (out string, err error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return client.Generate(callCtx, ref.Name, req)
}
