package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// DefaultOpenAIBaseURL points the OpenAI-compatible client at Groq
const DefaultOpenAIBaseURL = "https://api.groq.com/openai/v1"

// OpenAIClient implements Client for any OpenAI-compatible chat endpoint
type OpenAIClient struct {
	chat *openai.ChatModel
}

// NewOpenAIClient creates a chat client. An empty baseURL uses DefaultOpenAIBaseURL.
func NewOpenAIClient(ctx context.Context, apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   groqInstant.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return &OpenAIClient{chat: chat}, nil
}

// Generate runs a chat completion on the named model
func (c *OpenAIClient) Generate(ctx context.Context, modelName string, req Request) (string, error) {
	if modelName == "" {
		return "", fmt.Errorf("model name is required")
	}

	msgs := make([]*schema.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))

	opts := []model.Option{
		model.WithModel(modelName),
		model.WithTemperature(temperature(req)),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	out, err := c.chat.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", classifyError(fmt.Errorf("chat completion failed: %w", err))
	}
	if out == nil {
		return "", fmt.Errorf("empty chat response")
	}
	if req.JSON {
		return CleanJSONBlock(out.Content), nil
	}
	return out.Content, nil
}

// Provider returns ProviderOpenAI
func (c *OpenAIClient) Provider() Provider {
	return ProviderOpenAI
}

// Close is a no-op; the HTTP client is shared
func (c *OpenAIClient) Close() error {
	return nil
}
