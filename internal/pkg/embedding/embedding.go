// Package embedding computes semantic similarity between two texts from
// vector embeddings.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"

	appcfg "github.com/bookbridge/core/internal/config"
)

// Engine generates vector embeddings for text.
type Engine interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Name() string
}

// OpenAI embeds through the OpenAI embeddings endpoint, or any server that
// speaks it.
type OpenAI struct {
	client openaiclient.Client
	model  string
}

// NewOpenAI builds an engine from an AI provider entry.
func NewOpenAI(provider appcfg.AIProvider, model string) (*OpenAI, error) {
	apiKey := strings.TrimSpace(provider.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("embedding provider %q api key is empty", provider.ID)
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(1),
	}
	if endpoint := strings.TrimRight(strings.TrimSpace(provider.Endpoint), "/"); endpoint != "" {
		if !strings.HasSuffix(endpoint, "/v1") {
			endpoint += "/v1"
		}
		opts = append(opts, openaioption.WithBaseURL(endpoint+"/"))
	}
	if strings.TrimSpace(model) == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAI{client: openaiclient.NewClient(opts...), model: model}, nil
}

func (o *OpenAI) Name() string { return "openai:" + o.model }

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := o.client.Embeddings.New(ctx, openaiclient.EmbeddingNewParams{
		Input: openaiclient.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openaiclient.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// CosineSimilarity returns a value between -1 and 1. Zero vectors score 0.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	var dot, aMag, bMag float64
	for i := range a {
		dot += a[i] * b[i]
		aMag += a[i] * a[i]
		bMag += b[i] * b[i]
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// Similarity scores two texts in [0,1].
type Similarity struct {
	engine Engine
}

func NewSimilarity(engine Engine) *Similarity {
	return &Similarity{engine: engine}
}

func (s *Similarity) Similarity(ctx context.Context, a, b string) (float64, error) {
	if s.engine == nil {
		return 0, errors.New("no embedding engine configured")
	}
	vecs, err := s.engine.EmbedBatch(ctx, []string{a, b})
	if err != nil {
		return 0, fmt.Errorf("embed with %s: %w", s.engine.Name(), err)
	}
	if len(vecs) != 2 {
		return 0, fmt.Errorf("embed with %s: expected 2 vectors, got %d", s.engine.Name(), len(vecs))
	}
	sim, err := CosineSimilarity(vecs[0], vecs[1])
	if err != nil {
		return 0, err
	}
	return math.Max(0, math.Min(1, sim)), nil
}
