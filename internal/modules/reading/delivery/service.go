// Package delivery assembles the text, audio and highlighting data of one
// chunk for the reader, degrading instead of failing when generation does.
package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/modules/reading/simplification"
	"github.com/bookbridge/core/internal/pkg/lease"
	"github.com/bookbridge/core/internal/pkg/logx"
	"github.com/bookbridge/core/internal/pkg/objectstore"
)

// originalVersion tags audio made from unsimplified text.
const originalVersion = "original"

type Deps struct {
	Chunks     ChunkSource
	Cache      TextCache
	Simplifier TextSimplifier
	Gate       Validator
	// Audio may be nil, in which case bundles carry text only.
	Audio   Synthesizer
	Assets  AssetStore
	Paths   PathClaimer
	Objects objectstore.Store
	Leases  lease.Manager
	Log     *zap.Logger
}

type Options struct {
	DefaultVoice string
	// LevelAttempts is how many rewrites are tried at the requested level
	// before falling back to the next harder one.
	LevelAttempts int
	AudioLeaseTTL time.Duration
	PollInterval  time.Duration
}

type Service struct {
	deps       Deps
	opts       Options
	audioGroup singleflight.Group
	tracer     trace.Tracer
	log        *zap.Logger
}

func NewService(deps Deps, opts Options) *Service {
	if opts.DefaultVoice == "" {
		opts.DefaultVoice = "nova"
	}
	if opts.LevelAttempts <= 0 {
		opts.LevelAttempts = 2
	}
	if opts.AudioLeaseTTL <= 0 {
		opts.AudioLeaseTTL = 150 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if deps.Leases == nil {
		deps.Leases = lease.NewMemory()
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		tracer: otel.Tracer("github.com/bookbridge/core/delivery"),
		log:    logx.OrNop(deps.Log).Named("delivery"),
	}
}

// GetReadableChunk returns the bundle for req. Generation failures degrade
// the bundle; only unknown chunks and malformed requests are errors.
func (s *Service) GetReadableChunk(ctx context.Context, req Request) (*Bundle, error) {
	if req.BookID == "" || req.ChunkIndex < 0 || !(req.Level.Valid() || req.Level == cefr.Original) {
		return nil, fmt.Errorf("%w: book %q chunk %d level %q", ErrInvalidRequest, req.BookID, req.ChunkIndex, req.Level)
	}
	if req.VoiceID == "" {
		req.VoiceID = s.opts.DefaultVoice
	}

	ctx, span := s.tracer.Start(ctx, "delivery.GetReadableChunk", trace.WithAttributes(
		attribute.String("book.id", req.BookID),
		attribute.Int("chunk.index", req.ChunkIndex),
		attribute.String("level", string(req.Level)),
	))
	defer span.End()

	chunk, err := s.deps.Chunks.Chunk(ctx, req.BookID, req.ChunkIndex)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load chunk")
		return nil, fmt.Errorf("load chunk: %w", err)
	}
	if chunk == nil {
		return nil, fmt.Errorf("%w: %s/%d", ErrChunkNotFound, req.BookID, req.ChunkIndex)
	}

	b := &Bundle{
		BookID:           req.BookID,
		ChunkIndex:       req.ChunkIndex,
		Level:            req.Level,
		Text:             chunk.Text,
		GeneratorVersion: originalVersion,
	}

	if req.Level != cefr.Original {
		key := simplification.Key{BookID: req.BookID, ChunkIndex: req.ChunkIndex, Level: req.Level}
		row, err := s.deps.Cache.GetOrGenerate(ctx, key, s.generator(chunk, req.Level))
		switch {
		case err == nil:
			b.Text = row.Text
			b.Simplified = true
			b.QualityScore = row.QualityScore
			b.Strategy = row.Strategy
			b.GeneratorVersion = row.GeneratorVersion
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			span.RecordError(err)
			s.logDegraded(key, err)
			b.Notices = append(b.Notices, NoticeSimplificationUnavailable)
		}
	}
	span.SetAttributes(attribute.Bool("simplified", b.Simplified))

	s.attachAudio(ctx, b, req.VoiceID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	span.SetAttributes(attribute.Bool("audio.available", b.AudioAvailable))
	return b, nil
}

func (s *Service) logDegraded(key simplification.Key, err error) {
	fields := []zap.Field{zap.String("key", key.String()), zap.Error(err)}
	var rej *RejectedError
	if errors.As(err, &rej) {
		fields = append(fields, zap.String("reason", string(rej.Reason())))
	}
	s.log.Warn("serving original text", fields...)
}

// InvalidateSimplification drops one cached rewrite.
func (s *Service) InvalidateSimplification(ctx context.Context, bookID string, index int, level cefr.Level) (bool, error) {
	key := simplification.Key{BookID: bookID, ChunkIndex: index, Level: level}
	if !key.Valid() {
		return false, fmt.Errorf("%w: %s", ErrInvalidRequest, key)
	}
	return s.deps.Cache.Invalidate(ctx, key)
}

// TextHash is the hex sha256 of text; audio is reused only for the exact
// text it was made from.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EstimateTimings spreads durationMs over the words of text in proportion to
// their length.
func EstimateTimings(text string, durationMs int64) []WordTiming {
	words := strings.Fields(text)
	if len(words) == 0 || durationMs <= 0 {
		return nil
	}
	var total int64
	for _, w := range words {
		total += int64(len([]rune(w)))
	}
	out := make([]WordTiming, len(words))
	var acc int64
	for i, w := range words {
		start := acc * durationMs / total
		acc += int64(len([]rune(w)))
		out[i] = WordTiming{Word: w, StartMs: start, EndMs: acc * durationMs / total}
	}
	return out
}

// Simplify makes sure a validated rewrite of one chunk is cached, without
// touching audio.
func (s *Service) Simplify(ctx context.Context, bookID string, index int, level cefr.Level) (*models.SimplificationModel, error) {
	key := simplification.Key{BookID: bookID, ChunkIndex: index, Level: level}
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, key)
	}
	chunk, err := s.deps.Chunks.Chunk(ctx, bookID, index)
	if err != nil {
		return nil, fmt.Errorf("load chunk: %w", err)
	}
	if chunk == nil {
		return nil, fmt.Errorf("%w: %s/%d", ErrChunkNotFound, bookID, index)
	}
	return s.deps.Cache.GetOrGenerate(ctx, key, s.generator(chunk, level))
}
