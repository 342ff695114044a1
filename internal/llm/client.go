package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultTemperature keeps completions close to the source text
const DefaultTemperature float32 = 0.2

// Request is one completion request
type Request struct {
	System      string  // system instruction
	Prompt      string  // user content
	MaxTokens   int     // output cap; 0 leaves the provider default
	Temperature float32 // 0 uses DefaultTemperature
	JSON        bool    // ask the provider for a JSON response
}

// Client is an abstraction over LLM providers
type Client interface {
	// Generate runs one completion against the named model
	Generate(ctx context.Context, model string, req Request) (string, error)
	// Provider reports which provider serves this client
	Provider() Provider
	// Close releases any resources held by the client
	Close() error
}

// Keys holds provider credentials
type Keys struct {
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewClients creates a client for every provider that has credentials.
// An empty map is valid; the pipeline then degrades to its non-LLM fallbacks.
func NewClients(ctx context.Context, keys Keys) (map[Provider]Client, error) {
	clients := make(map[Provider]Client)
	if keys.GeminiAPIKey != "" {
		c, err := NewGeminiClient(ctx, keys.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		clients[ProviderGemini] = c
	}
	if keys.OpenAIAPIKey != "" {
		c, err := NewOpenAIClient(ctx, keys.OpenAIAPIKey, keys.OpenAIBaseURL)
		if err != nil {
			closeAll(clients)
			return nil, err
		}
		clients[ProviderOpenAI] = c
	}
	return clients, nil
}

func closeAll(clients map[Provider]Client) {
	for _, c := range clients {
		_ = c.Close()
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client}, nil
}

// Generate runs a completion on the named Gemini model
func (c *GeminiClient) Generate(ctx context.Context, modelName string, req Request) (string, error) {
	if modelName == "" {
		return "", fmt.Errorf("model name is required")
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(temperature(req))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", classifyError(fmt.Errorf("failed to generate content: %w", err))
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}
	if req.JSON {
		return CleanJSONBlock(text), nil
	}
	return text, nil
}

// Provider returns ProviderGemini
func (c *GeminiClient) Provider() Provider {
	return ProviderGemini
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}

func temperature(req Request) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return DefaultTemperature
}

// classifyError attaches an HTTP status to provider errors when one can be found
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &HTTPStatusError{StatusCode: gerr.Code, Cause: err}
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return &HTTPStatusError{StatusCode: 429, Cause: err}
	}
	return err
}
