package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"

	appcfg "github.com/bookbridge/core/internal/config"
	"github.com/bookbridge/core/internal/modules/reading/audio"
)

const (
	openAIDefaultModel    = "tts-1"
	openAIDefaultMaxChars = 4096
)

// OpenAI calls the audio/speech endpoint and returns MP3.
type OpenAI struct {
	name     string
	client   openaiclient.Client
	model    string
	maxChars int
}

func NewOpenAI(cfg appcfg.TTSProvider) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("tts provider %q api key is empty", cfg.ID)
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		// retries are handled by the audio generator
		openaioption.WithMaxRetries(0),
	}
	if endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"); endpoint != "" {
		if !strings.HasSuffix(endpoint, "/v1") {
			endpoint += "/v1"
		}
		opts = append(opts, openaioption.WithBaseURL(endpoint+"/"))
	}
	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = openAIDefaultMaxChars
	}
	return &OpenAI{
		name:     nameOr(cfg.ID, "openai"),
		client:   openaiclient.NewClient(opts...),
		model:    model,
		maxChars: maxChars,
	}, nil
}

func (o *OpenAI) Name() string  { return o.name }
func (o *OpenAI) MaxChars() int { return o.maxChars }

func (o *OpenAI) Synthesize(ctx context.Context, text, voiceID string) (*audio.Clip, error) {
	resp, err := o.client.Audio.Speech.New(ctx, openaiclient.AudioSpeechNewParams{
		Input:          text,
		Model:          openaiclient.SpeechModel(o.model),
		Voice:          openaiclient.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: openaiclient.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		var apiErr *openaiclient.Error
		if errors.As(err, &apiErr) {
			return nil, &audio.ProviderError{Provider: o.name, Status: apiErr.StatusCode, Err: err}
		}
		return nil, &audio.ProviderError{Provider: o.name, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &audio.ProviderError{Provider: o.name, Err: err}
	}
	return &audio.Clip{Data: data, ContentType: "audio/mpeg"}, nil
}
