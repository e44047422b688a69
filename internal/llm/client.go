package llm

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Client generates text with a named remote model. Every error it returns is an *Error.
// Implementations never retry; primary/fallback policy belongs to the caller.
type Client interface {
	Generate(ctx context.Context, modelID string, msgs []*schema.Message, opts ...model.Option) (string, error)
}

// Provider is one concrete binding behind the router (OpenAI, DeepSeek, OpenRouter).
type Provider interface {
	Name() string
	Generate(ctx context.Context, modelID string, msgs []*schema.Message, opts ...model.Option) (string, error)
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, modelID string, msgs []*schema.Message, opts ...model.Option) (string, error)

func (f ClientFunc) Generate(ctx context.Context, modelID string, msgs []*schema.Message, opts ...model.Option) (string, error) {
	return f(ctx, modelID, msgs, opts...)
}
