package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

// ModelFactory builds an eino chat model for one model id.
type ModelFactory func(ctx context.Context, modelID string) (model.BaseChatModel, error)

// EinoProvider adapts eino chat models to Provider. Models are built lazily and cached per id.
type EinoProvider struct {
	name    string
	factory ModelFactory
	handler callbacks.Handler

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

func NewEinoProvider(name string, factory ModelFactory, log logrus.FieldLogger) *EinoProvider {
	return &EinoProvider{
		name:    name,
		factory: factory,
		handler: newLogHandler(log),
		models:  make(map[string]model.BaseChatModel),
	}
}

func (p *EinoProvider) Name() string {
	return p.name
}

func (p *EinoProvider) Generate(ctx context.Context, modelID string, msgs []*schema.Message, opts ...model.Option) (string, error) {
	if p.factory == nil {
		return "", newError(KindAuth, p.name, modelID, errMissingKey(p.name))
	}
	cm, err := p.chatModel(ctx, modelID)
	if err != nil {
		return "", Classify(p.name, modelID, err)
	}

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      modelID,
		Type:      p.name,
		Component: components.ComponentOfChatModel,
	}, p.handler)

	msg, err := cm.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", Classify(p.name, modelID, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", newError(KindMalformed, p.name, modelID, errors.New("empty completion"))
	}
	return msg.Content, nil
}

func (p *EinoProvider) chatModel(ctx context.Context, modelID string) (model.BaseChatModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cm, ok := p.models[modelID]; ok {
		return cm, nil
	}
	cm, err := p.factory(ctx, modelID)
	if err != nil {
		return nil, err
	}
	p.models[modelID] = cm
	return cm, nil
}

type OpenAIOptions struct {
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// NewOpenAIProvider binds gpt-* and o-series models through the eino OpenAI component.
// Without an API key every call fails with ErrAuth.
func NewOpenAIProvider(opts OpenAIOptions, log logrus.FieldLogger) *EinoProvider {
	var factory ModelFactory
	if opts.APIKey != "" {
		factory = func(ctx context.Context, modelID string) (model.BaseChatModel, error) {
			maxTokens := opts.MaxTokens
			return openai.NewChatModel(ctx, &openai.ChatModelConfig{
				BaseURL:   opts.BaseURL,
				APIKey:    opts.APIKey,
				Model:     modelID,
				MaxTokens: &maxTokens,
				Timeout:   opts.Timeout,
			})
		}
	}
	return NewEinoProvider("openai", factory, log)
}

type DeepSeekOptions struct {
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

func NewDeepSeekProvider(opts DeepSeekOptions, log logrus.FieldLogger) *EinoProvider {
	var factory ModelFactory
	if opts.APIKey != "" {
		factory = func(ctx context.Context, modelID string) (model.BaseChatModel, error) {
			return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
				APIKey:    opts.APIKey,
				Model:     modelID,
				MaxTokens: opts.MaxTokens,
				Timeout:   opts.Timeout,
			})
		}
	}
	return NewEinoProvider("deepseek", factory, log)
}

type runStartKey struct{}

// newLogHandler logs chat model start, end and error events at debug level.
func newLogHandler(log logrus.FieldLogger) callbacks.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			fields := logrus.Fields{"provider": info.Type, "model": info.Name}
			if in := model.ConvCallbackInput(input); in != nil {
				fields["messages"] = len(in.Messages)
			}
			log.WithFields(fields).Debug("model call started")
			return context.WithValue(ctx, runStartKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			fields := logrus.Fields{"provider": info.Type, "model": info.Name}
			if start, ok := ctx.Value(runStartKey{}).(time.Time); ok {
				fields["elapsed"] = time.Since(start).Round(time.Millisecond)
			}
			if out := model.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
				fields["prompt_tokens"] = out.TokenUsage.PromptTokens
				fields["completion_tokens"] = out.TokenUsage.CompletionTokens
			}
			log.WithFields(fields).Debug("model call finished")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			log.WithFields(logrus.Fields{"provider": info.Type, "model": info.Name}).WithError(err).Debug("model call failed")
			return ctx
		}).
		Build()
}
