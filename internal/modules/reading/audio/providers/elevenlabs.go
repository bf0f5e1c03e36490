package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	appcfg "github.com/bookbridge/core/internal/config"
	"github.com/bookbridge/core/internal/modules/reading/audio"
)

const (
	elevenLabsDefaultEndpoint = "https://api.elevenlabs.io"
	elevenLabsDefaultModel    = "eleven_multilingual_v2"
	elevenLabsDefaultMaxChars = 5000
	elevenLabsOutputFormat    = "mp3_44100_128"
)

// ElevenLabs calls the text-to-speech REST endpoint. Voice ids are passed
// through unchanged.
type ElevenLabs struct {
	name     string
	http     *http.Client
	endpoint string
	apiKey   string
	model    string
	maxChars int
}

func NewElevenLabs(cfg appcfg.TTSProvider, client *http.Client) (*ElevenLabs, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("tts provider %q api key is empty", cfg.ID)
	}
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = elevenLabsDefaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = elevenLabsDefaultModel
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = elevenLabsDefaultMaxChars
	}
	return &ElevenLabs{
		name:     nameOr(cfg.ID, "elevenlabs"),
		http:     client,
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		maxChars: maxChars,
	}, nil
}

func (e *ElevenLabs) Name() string  { return e.name }
func (e *ElevenLabs) MaxChars() int { return e.maxChars }

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) (*audio.Clip, error) {
	body, err := json.Marshal(map[string]interface{}{
		"text":     text,
		"model_id": e.model,
	})
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		e.endpoint, url.PathEscape(voiceID), elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, &audio.ProviderError{Provider: e.name, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &audio.ProviderError{Provider: e.name, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &audio.ProviderError{Provider: e.name, Status: resp.StatusCode, Err: fmt.Errorf("%s", msg)}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &audio.Clip{Data: data, ContentType: contentType}, nil
}
