package ai

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessagesClient is the subset of the Anthropic SDK the analyzer uses.
// Satisfied by *sdk.MessageService; tests substitute a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Completion is one model response: the concatenated text content plus the
// token counts the provider reported.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// LLM issues single-turn analysis requests against the Messages API.
type LLM struct {
	msg       MessagesClient
	model     string
	maxTokens int64
}

// NewLLM creates a model client from an API key.
func NewLLM(apiKey, model string, maxTokens int64) *LLM {
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewLLMWithClient(&ac.Messages, model, maxTokens)
}

// NewLLMWithClient injects the messages client, for tests.
func NewLLMWithClient(msg MessagesClient, model string, maxTokens int64) *LLM {
	return &LLM{msg: msg, model: model, maxTokens: maxTokens}
}

// Complete sends one system+user exchange and returns the text content.
// The provider's default request timeout applies; callers do not retry.
func (l *LLM) Complete(ctx context.Context, system, user string) (*Completion, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(l.model),
		MaxTokens: l.maxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
	}

	msg, err := l.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Completion{
		Text:         text.String(),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}
