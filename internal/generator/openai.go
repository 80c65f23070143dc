package generator

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when a request names no model.
const DefaultOpenAIModel = openai.ChatModelGPT4oMini

// completionClient is the subset of the Chat Completions API the adapter
// calls.
type completionClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI generates through the OpenAI Chat Completions API.
type OpenAI struct {
	completions completionClient
}

// NewOpenAI creates an adapter authenticated with apiKey.
func NewOpenAI(apiKey string, opts ...option.RequestOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(clientOpts...)
	return NewOpenAIFromClient(&client), nil
}

// NewOpenAIFromClient wraps an existing client.
func NewOpenAIFromClient(client *openai.Client) *OpenAI {
	return &OpenAI{completions: &client.Chat.Completions}
}

// Generate sends req as an optional system message plus one user message.
func (o *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               model,
		MaxCompletionTokens: openai.Int(req.maxTokens()),
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
