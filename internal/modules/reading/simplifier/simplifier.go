package simplifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/pkg/llm"
	"github.com/bookbridge/core/internal/pkg/logx"
)

// ErrGenerationBackend marks a failed, timed out or unusable model call.
var ErrGenerationBackend = errors.New("generation backend failure")

// ErrInvalidLevel is returned for levels that cannot be generated.
var ErrInvalidLevel = errors.New("invalid level")

type Strength string

const (
	StrengthNormal Strength = "normal"
	StrengthStrong Strength = "strong"
)

// Request selects the target level and rewrite strength.
type Request struct {
	Level    cefr.Level
	Strength Strength
}

// Candidate is an unvalidated rewrite.
type Candidate struct {
	Text             string
	Level            cefr.Level
	Strength         Strength
	GeneratorVersion string
}

// Backend is a text-generation model.
type Backend interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
	ModelID() string
}

type Options struct {
	Timeout           time.Duration
	PromptVersion     string
	Retries           int
	RetryInitial      time.Duration
	RequestsPerSecond float64
	Burst             int
}

type Simplifier struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(backend Backend, opts Options, log *zap.Logger) *Simplifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 500 * time.Millisecond
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	return &Simplifier{
		backend: backend,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		log:     logx.OrNop(log).Named("simplifier"),
	}
}

// Version identifies the model and prompt revision. Cached rewrites from any
// other version are stale.
func (s *Simplifier) Version() string {
	return s.backend.ModelID() + "+" + s.opts.PromptVersion
}

// Simplify rewrites chunkText at the requested level. Backend failures are
// retried with exponential backoff; once retries run out the error wraps
// ErrGenerationBackend.
func (s *Simplifier) Simplify(ctx context.Context, chunkText string, req Request) (Candidate, error) {
	c, ok := cefr.ConstraintsFor(req.Level)
	if !ok {
		return Candidate{}, fmt.Errorf("%w: %q", ErrInvalidLevel, req.Level)
	}
	if req.Strength == "" {
		req.Strength = StrengthNormal
	}
	system, prompt := BuildPrompt(c, req.Strength, chunkText)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInitial

	attempt := 0
	text, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		out, err := s.generateOnce(ctx, system, prompt)
		if err != nil && ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.opts.Retries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("simplify attempt failed, retrying",
				zap.String("level", req.Level.String()),
				zap.String("strength", string(req.Strength)),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: level %s after %d attempts: %w", ErrGenerationBackend, req.Level, attempt, err)
	}

	return Candidate{
		Text:             text,
		Level:            req.Level,
		Strength:         req.Strength,
		GeneratorVersion: s.Version(),
	}, nil
}

func (s *Simplifier) generateOnce(ctx context.Context, system, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	raw, err := s.backend.Generate(callCtx, system, prompt)
	if err != nil {
		return "", err
	}
	return parseOutput(raw)
}

func parseOutput(raw string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := llm.UnmarshalJSON(raw, &out); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", errors.New("empty text in AI response")
	}
	return text, nil
}
