package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when a request names no model.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// messageClient is the subset of the Messages API the adapter calls.
type messageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Anthropic generates through the Anthropic Messages API.
type Anthropic struct {
	messages messageClient
}

// NewAnthropic creates an adapter authenticated with apiKey. Extra request
// options (base URL, retries) are applied to the underlying client.
func NewAnthropic(apiKey string, opts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(clientOpts...)
	return NewAnthropicFromClient(&client), nil
}

// NewAnthropicFromClient wraps an existing client.
func NewAnthropicFromClient(client *anthropic.Client) *Anthropic {
	return &Anthropic{messages: &client.Messages}
}

// Generate sends req as a single user turn.
func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: req.maxTokens(),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		if t := block.AsText().Text; t != "" {
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(t)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}

	return &Response{
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}
