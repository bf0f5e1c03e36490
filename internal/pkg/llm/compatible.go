package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"

	appcfg "github.com/bookbridge/core/internal/config"
)

type providerKind int

const (
	kindOpenAI providerKind = iota
	kindCompatible
	kindOpenRouter
	kindAnthropic
)

func kindOf(rawType string) providerKind {
	switch normalizeProviderType(rawType) {
	case "openai-compatible", "openaicompatible":
		return kindCompatible
	case "openrouter":
		return kindOpenRouter
	case "anthropic":
		return kindAnthropic
	default:
		return kindOpenAI
	}
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	return strings.ReplaceAll(t, " ", "")
}

// newCompatibleClient targets self-hosted servers (Ollama, vLLM, llama.cpp)
// that implement only the chat completions route.
func newCompatibleClient(provider appcfg.AIProvider) openaiclient.Client {
	return openaiclient.NewClient(
		openaioption.WithAPIKey(strings.TrimSpace(provider.APIKey)),
		openaioption.WithBaseURL(normalizeOpenAICompatibleEndpoint(provider.Endpoint)+"/v1/"),
		openaioption.WithMaxRetries(0),
		openaioption.WithRequestTimeout(90*time.Second),
	)
}

func (c *Client) chatCompletions(ctx context.Context, systemPrompt, prompt string) (string, error) {
	messages := make([]openaiclient.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openaiclient.SystemMessage(systemPrompt))
	}
	messages = append(messages, openaiclient.UserMessage(prompt))

	resp, err := c.compat.Chat.Completions.New(ctx, openaiclient.ChatCompletionNewParams{
		Model:     openaiclient.ChatModel(modelName(c.provider)),
		Messages:  messages,
		MaxTokens: openaiclient.Int(int64(c.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai-compatible: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// UnmarshalJSON decodes a model reply that should be a JSON object. Code
// fences and prose around the object are ignored.
func UnmarshalJSON(raw string, out interface{}) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{}") {
			s = s[nl+1:]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	if json.Unmarshal([]byte(s), out) == nil {
		return nil
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		if json.Unmarshal([]byte(s[start:end+1]), out) == nil {
			return nil
		}
	}
	return errors.New("invalid JSON response from AI")
}

// normalizeOpenAIBaseURL makes sure the SDK base URL ends in /v1.
func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	u, err := neturl.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(base, "/")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(u.Path, "/v1") {
		u.Path += "/v1"
	}
	return strings.TrimRight(u.String(), "/")
}

// normalizeOpenAICompatibleEndpoint strips a trailing /v1 so it can be added
// back exactly once.
func normalizeOpenAICompatibleEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}
	u, err := neturl.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimSuffix(strings.TrimRight(base, "/"), "/v1")
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/v1")
	return strings.TrimRight(u.String(), "/")
}
