// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/jonathan/continuity-handoff/internal/llm"
)

// Call records one Generate invocation
type Call struct {
	Model   string
	Request llm.Request
}

// Rule answers requests whose system or prompt text contains Match
type Rule struct {
	Match    string
	Response string
	Err      error
}

// Client is a fake llm.Client. When Respond is set it answers every request;
// otherwise Rules are checked in order and unmatched requests get Default.
type Client struct {
	ProviderName llm.Provider
	Respond      func(model string, req llm.Request) (string, error)
	Rules        []Rule
	Default      string

	mu    sync.Mutex
	calls []Call
}

// New returns a fake client for the given provider
func New(provider llm.Provider, rules ...Rule) *Client {
	return &Client{ProviderName: provider, Rules: rules}
}

// Generate implements llm.Client
func (c *Client) Generate(ctx context.Context, model string, req llm.Request) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Model: model, Request: req})
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Respond != nil {
		return c.Respond(model, req)
	}
	for _, r := range c.Rules {
		if strings.Contains(req.System, r.Match) || strings.Contains(req.Prompt, r.Match) {
			return r.Response, r.Err
		}
	}
	return c.Default, nil
}

// Provider implements llm.Client
func (c *Client) Provider() llm.Provider {
	if c.ProviderName == "" {
		return llm.ProviderOpenAI
	}
	return c.ProviderName
}

// Close implements llm.Client
func (c *Client) Close() error {
	return nil
}

// Calls returns a copy of the recorded calls
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallCount returns the number of recorded calls
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Clients wraps c in the map form expected by llm.NewCaller
func (c *Client) Clients() map[llm.Provider]llm.Client {
	return map[llm.Provider]llm.Client{c.Provider(): c}
}
