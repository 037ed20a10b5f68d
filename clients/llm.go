package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/maastricht-university/harmon/config"
	"github.com/maastricht-university/harmon/types"
	"github.com/maastricht-university/harmon/types/interfaces"
)

var errNoChoices = errors.New("no response choices")

// ErrNoAPIKey is returned by NewGenerator when a hosted provider has no key.
var ErrNoAPIKey = errors.New("llm: api key not configured")

// ChatCompletions talks to any OpenAI-compatible chat endpoint, Cerebras included.
type ChatCompletions struct {
	client *goopenai.Client
	model  string
}

func NewChatCompletions(apiKey, baseURL, model string) *ChatCompletions {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &ChatCompletions{client: goopenai.NewClientWithConfig(cfg), model: model}
}

func (c *ChatCompletions) Generate(ctx context.Context, system, user string, opts types.GenerateOptions) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", types.NewProviderError(config.ProviderOpenAI, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewProviderError(config.ProviderOpenAI, "chat completion", errNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAISDK uses the official OpenAI client.
type OpenAISDK struct {
	client openai.Client
	model  string
}

func NewOpenAISDK(apiKey, baseURL, model string) *OpenAISDK {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAISDK{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAISDK) Generate(ctx context.Context, system, user string, opts types.GenerateOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", types.NewProviderError(config.ProviderOpenAISDK, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewProviderError(config.ProviderOpenAISDK, "chat completion", errNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

// LangChain adapts a langchaingo model, used for local Ollama servers.
type LangChain struct {
	llm      llms.Model
	provider string
}

func NewLangChain(provider string, llm llms.Model) *LangChain {
	return &LangChain{llm: llm, provider: provider}
}

func (l *LangChain) Generate(ctx context.Context, system, user string, opts types.GenerateOptions) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	var callOpts []llms.CallOption
	if opts.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(*opts.Temperature))
	}
	resp, err := l.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", types.NewProviderError(l.provider, "generate content", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewProviderError(l.provider, "generate content", errNoChoices)
	}
	return resp.Choices[0].Content, nil
}

// NewGenerator builds the configured LLM collaborator. The "none" provider
// returns nil: interventions then use canned text and LLM commands fail.
func NewGenerator(cfg config.LLM) (interfaces.Generator, error) {
	var gen interfaces.Generator
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrNoAPIKey)
		}
		gen = NewChatCompletions(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case config.ProviderOpenAISDK:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrNoAPIKey)
		}
		gen = NewOpenAISDK(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		gen = NewLangChain(config.ProviderOllama, m)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
	if cfg.RequestsPerSecond > 0 {
		gen = NewLimited(gen, cfg.RequestsPerSecond, cfg.Burst)
	}
	return gen, nil
}
