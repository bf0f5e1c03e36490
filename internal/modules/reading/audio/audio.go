// Package audio synthesizes narration for chunk text through an ordered
// chain of text-to-speech providers.
package audio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bookbridge/core/internal/pkg/logx"
)

var (
	// ErrGenerationBackend is returned when every provider in the chain failed.
	ErrGenerationBackend = errors.New("audio generation backend failure")
	ErrNoProviders       = errors.New("no tts providers configured")
	ErrCoolingDown       = errors.New("provider cooling down")
	ErrEmptyText         = errors.New("nothing to synthesize")
)

// Clip is one provider response.
type Clip struct {
	Data         []byte
	ContentType  string
	DurationMs   int64
	ClientSpeech bool
}

// Provider is a text-to-speech backend.
type Provider interface {
	Name() string
	// MaxChars is the longest input accepted per call; 0 means no limit.
	MaxChars() int
	Synthesize(ctx context.Context, text, voiceID string) (*Clip, error)
}

// ProviderError carries the HTTP status of a failed provider call. Client
// errors other than 429 are not retried.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Audio is the result of a synthesis.
type Audio struct {
	Data         []byte
	ContentType  string
	DurationMs   int64
	Provider     string
	ClientSpeech bool
	Attempts     []Attempt
}

// Attempt records the outcome of one provider in the chain.
type Attempt struct {
	Provider string
	Audio    *Audio
	Err      error
}

type Options struct {
	Timeout           time.Duration
	Retries           int
	RetryInitial      time.Duration
	FailureThreshold  int
	Cooldown          time.Duration
	RequestsPerSecond float64
	Burst             int
}

type Generator struct {
	providers []Provider
	limiters  map[string]*rate.Limiter
	health    *healthBook
	opts      Options
	log       *zap.Logger
}

func New(providers []Provider, opts Options, log *zap.Logger) (*Generator, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
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
	burst := max(opts.Burst, 1)

	limiters := make(map[string]*rate.Limiter, len(providers))
	for _, p := range providers {
		limiters[p.Name()] = rate.NewLimiter(limit, burst)
	}
	return &Generator{
		providers: providers,
		limiters:  limiters,
		health:    newHealthBook(opts.FailureThreshold, opts.Cooldown),
		opts:      opts,
		log:       logx.OrNop(log).Named("audio"),
	}, nil
}

// Providers lists the chain in order.
func (g *Generator) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Synthesize walks the provider chain until one succeeds. Providers over the
// failure threshold are skipped while cooling down.
func (g *Generator) Synthesize(ctx context.Context, text, voiceID string) (*Audio, error) {
	if len(Split(text, 0)) == 0 {
		return nil, ErrEmptyText
	}
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	attempts := make([]Attempt, 0, len(g.providers))
	var errs []error
	for _, p := range g.providers {
		name := p.Name()
		if !g.health.allow(name) {
			attempts = append(attempts, Attempt{Provider: name, Err: ErrCoolingDown})
			continue
		}

		out, err := g.synthesizeWith(ctx, p, text, voiceID)
		attempts = append(attempts, Attempt{Provider: name, Audio: out, Err: err})
		if err == nil {
			g.health.success(name)
			out.Attempts = attempts
			if len(attempts) > 1 {
				g.log.Info("tts fell back", zap.String("provider", name), zap.Int("attempts", len(attempts)))
			}
			return out, nil
		}

		g.health.failure(name)
		errs = append(errs, err)
		g.log.Warn("tts provider failed",
			zap.String("provider", name),
			zap.Int("consecutive_failures", g.health.failuresOf(name)),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		errs = append(errs, ErrCoolingDown)
	}
	return nil, fmt.Errorf("%w: %d providers tried: %w", ErrGenerationBackend, len(attempts), errors.Join(errs...))
}

func (g *Generator) synthesizeWith(ctx context.Context, p Provider, text, voiceID string) (*Audio, error) {
	out := &Audio{Provider: p.Name()}
	for _, seg := range Split(text, p.MaxChars()) {
		clip, err := g.callWithRetry(ctx, p, seg, voiceID)
		if err != nil {
			return nil, err
		}
		if clip.ClientSpeech {
			// the client speaks the whole text itself
			return &Audio{
				Provider:     p.Name(),
				ContentType:  clip.ContentType,
				DurationMs:   EstimateDurationMs(text),
				ClientSpeech: true,
			}, nil
		}
		if out.ContentType == "" {
			out.ContentType = clip.ContentType
		}
		out.Data = append(out.Data, clip.Data...)
		dur := clip.DurationMs
		if dur <= 0 {
			dur = EstimateDurationMs(seg)
		}
		out.DurationMs += dur
	}
	if len(out.Data) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: errors.New("empty audio")}
	}
	return out, nil
}

func (g *Generator) callWithRetry(ctx context.Context, p Provider, text, voiceID string) (*Clip, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.opts.RetryInitial

	return backoff.Retry(ctx, func() (*Clip, error) {
		if err := g.limiters[p.Name()].Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		clip, err := p.Synthesize(ctx, text, voiceID)
		if err == nil {
			return clip, nil
		}
		var perr *ProviderError
		if ctx.Err() != nil || (errors.As(err, &perr) && !perr.Temporary()) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(g.opts.Retries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.log.Debug("tts call failed, retrying",
				zap.String("provider", p.Name()), zap.Duration("next", next), zap.Error(err))
		}),
	)
}
