// Package llm talks to the configured language-model provider. OpenAI,
// OpenRouter and Anthropic go through the jetify ai SDK; OpenAI-compatible
// servers get a bare openai-go chat completions client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"

	appcfg "github.com/bookbridge/core/internal/config"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultMaxTokens      = 2048
	openRouterBaseURL     = "https://openrouter.ai/api/v1"
)

// ErrNoProvider is returned when no enabled provider is configured.
var ErrNoProvider = errors.New("no enabled AI provider")

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from AI")

// Client generates text with one provider/model pair.
type Client struct {
	provider  appcfg.AIProvider
	model     jetapi.LanguageModel
	compat    openaiclient.Client
	maxTokens int
}

// New selects the provider named by assignment (or the first enabled one) and
// prepares the SDK client for it.
func New(cfg appcfg.AIConfig, assignment *appcfg.AIModelAssignment) (*Client, error) {
	provider := selectProvider(cfg, assignment)
	if provider == nil {
		return nil, ErrNoProvider
	}
	return NewForProvider(*provider)
}

func NewForProvider(provider appcfg.AIProvider) (*Client, error) {
	if strings.TrimSpace(provider.APIKey) == "" {
		return nil, fmt.Errorf("AI provider %q api key is empty", provider.ID)
	}
	c := &Client{provider: provider, maxTokens: defaultMaxTokens}
	if kindOf(provider.Type) == kindCompatible {
		c.compat = newCompatibleClient(provider)
		return c, nil
	}
	model, err := buildLanguageModel(&c.provider)
	if err != nil {
		return nil, err
	}
	c.model = model
	return c, nil
}

// ModelID identifies the provider and model, e.g. "openai:gpt-4o-mini".
func (c *Client) ModelID() string {
	return normalizeProviderType(c.provider.Type) + ":" + modelName(c.provider)
}

// Generate returns the model's text reply to a system + user prompt pair.
func (c *Client) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if kindOf(c.provider.Type) == kindCompatible {
		return c.chatCompletions(ctx, systemPrompt, prompt)
	}

	resp, err := jetai.GenerateText(
		ctx,
		buildPromptMessages(systemPrompt, prompt),
		jetai.WithModel(c.model),
		jetai.WithMaxOutputTokens(c.maxTokens),
	)
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

func buildPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractText(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func buildLanguageModel(provider *appcfg.AIProvider) (jetapi.LanguageModel, error) {
	apiKey := strings.TrimSpace(provider.APIKey)
	endpoint := strings.TrimSpace(provider.Endpoint)

	if kindOf(provider.Type) == kindAnthropic {
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		return jetanthropic.NewLanguageModel(modelName(*provider), jetanthropic.WithClient(client)), nil
	}

	if endpoint == "" && kindOf(provider.Type) == kindOpenRouter {
		endpoint = openRouterBaseURL
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	client := openaiclient.NewClient(opts...)
	return jetopenai.NewLanguageModel(modelName(*provider), jetopenai.WithClient(client)), nil
}

func modelName(provider appcfg.AIProvider) string {
	if m := strings.TrimSpace(provider.DefaultModel); m != "" {
		return m
	}
	if kindOf(provider.Type) == kindAnthropic {
		return defaultAnthropicModel
	}
	return defaultOpenAIModel
}

func selectProvider(cfg appcfg.AIConfig, assignment *appcfg.AIModelAssignment) *appcfg.AIProvider {
	var providerID, overrideModel string
	if assignment != nil {
		providerID = strings.TrimSpace(assignment.ProviderID)
		overrideModel = strings.TrimSpace(assignment.Model)
	}

	pick := func(provider appcfg.AIProvider) *appcfg.AIProvider {
		selected := provider
		if overrideModel != "" {
			selected.DefaultModel = overrideModel
		}
		return &selected
	}

	if providerID != "" {
		for _, provider := range cfg.Providers {
			if provider.Enabled && strings.TrimSpace(provider.ID) == providerID {
				return pick(provider)
			}
		}
	}
	for _, provider := range cfg.Providers {
		if provider.Enabled {
			return pick(provider)
		}
	}
	return nil
}
