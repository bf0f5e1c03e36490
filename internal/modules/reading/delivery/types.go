package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/audio"
	"github.com/bookbridge/core/internal/modules/reading/audiopath"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/modules/reading/quality"
	"github.com/bookbridge/core/internal/modules/reading/simplification"
	"github.com/bookbridge/core/internal/modules/reading/simplifier"
)

var (
	ErrChunkNotFound          = errors.New("chunk not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrSimplificationRejected = errors.New("simplification rejected")
)

// Notices shown next to degraded content.
const (
	NoticeSimplificationUnavailable = "simplification unavailable"
	NoticeAudioUnavailable          = "audio unavailable"
)

// Request asks for one chunk at a level. Level may be cefr.Original.
type Request struct {
	BookID     string
	ChunkIndex int
	Level      cefr.Level
	VoiceID    string
}

// Bundle is the text, audio and timing data the reader renders together.
type Bundle struct {
	BookID           string       `json:"book_id"`
	ChunkIndex       int          `json:"chunk_index"`
	Level            cefr.Level   `json:"level"`
	Text             string       `json:"text"`
	Simplified       bool         `json:"simplified"`
	QualityScore     float64      `json:"quality_score,omitempty"`
	Strategy         string       `json:"strategy,omitempty"`
	GeneratorVersion string       `json:"generator_version"`
	Audio            *AudioInfo   `json:"audio,omitempty"`
	AudioAvailable   bool         `json:"audio_available"`
	Timings          []WordTiming `json:"timings,omitempty"`
	Notices          []string     `json:"notices,omitempty"`
}

type AudioInfo struct {
	URL          string `json:"url,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	Provider     string `json:"provider"`
	ContentType  string `json:"content_type,omitempty"`
	ClientSpeech bool   `json:"client_speech"`
}

// WordTiming is the estimated span of one word in the narration.
type WordTiming struct {
	Word    string `json:"word"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// Rejection is one strategy whose candidate failed the quality gate.
type Rejection struct {
	Strategy string         `json:"strategy"`
	Reason   quality.Reason `json:"reason"`
	Semantic float64        `json:"semantic"`
	Surface  float64        `json:"surface"`
}

// RejectedError is returned when every strategy produced a rejected candidate.
type RejectedError struct {
	Level      cefr.Level
	Rejections []Rejection
}

func (e *RejectedError) Error() string {
	parts := make([]string, len(e.Rejections))
	for i, r := range e.Rejections {
		parts[i] = fmt.Sprintf("%s: %s", r.Strategy, r.Reason)
	}
	return fmt.Sprintf("simplification rejected at %s (%s)", e.Level, strings.Join(parts, ", "))
}

func (e *RejectedError) Is(target error) bool { return target == ErrSimplificationRejected }

// Reason is the reason of the last rejection.
func (e *RejectedError) Reason() quality.Reason {
	if len(e.Rejections) == 0 {
		return quality.ReasonNone
	}
	return e.Rejections[len(e.Rejections)-1].Reason
}

// ChunkSource loads chunks. A missing chunk is (nil, nil).
type ChunkSource interface {
	Chunk(ctx context.Context, bookID string, index int) (*models.ChunkModel, error)
}

type TextCache interface {
	GetOrGenerate(ctx context.Context, key simplification.Key, generate simplification.GenerateFunc) (*models.SimplificationModel, error)
	Invalidate(ctx context.Context, key simplification.Key) (bool, error)
}

type TextSimplifier interface {
	Simplify(ctx context.Context, chunkText string, req simplifier.Request) (simplifier.Candidate, error)
}

type Validator interface {
	Validate(ctx context.Context, original, candidate string, level cefr.Level) (quality.Verdict, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*audio.Audio, error)
}

type AssetStore interface {
	Find(ctx context.Context, key audiopath.Key) (*models.AudioAssetModel, error)
	Upsert(ctx context.Context, row *models.AudioAssetModel) error
}

type PathClaimer interface {
	Claim(ctx context.Context, key audiopath.Key, path string) error
}
