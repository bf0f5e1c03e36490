package delivery

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/modules/reading/simplification"
	"github.com/bookbridge/core/internal/modules/reading/simplifier"
)

type strategy struct {
	level    cefr.Level
	strength simplifier.Strength
}

func (s strategy) String() string { return string(s.level) + "/" + string(s.strength) }

// strategiesFor lists the attempts for a level in order: attempts tries at
// the level itself (normal first, then strong), then one normal try at the
// next harder level.
func strategiesFor(level cefr.Level, attempts int) []strategy {
	if attempts < 1 {
		attempts = 1
	}
	out := make([]strategy, 0, attempts+1)
	for i := 0; i < attempts; i++ {
		strength := simplifier.StrengthStrong
		if i == 0 {
			strength = simplifier.StrengthNormal
		}
		out = append(out, strategy{level: level, strength: strength})
	}
	if harder, ok := level.Harder(); ok {
		out = append(out, strategy{level: harder, strength: simplifier.StrengthNormal})
	}
	return out
}

// generator runs the strategies until a candidate passes the gate. Candidates
// are judged at the requested level: a C2 fallback for a C1 request is still
// rejected when it echoes the source.
func (s *Service) generator(chunk *models.ChunkModel, level cefr.Level) simplification.GenerateFunc {
	return func(ctx context.Context) (*models.SimplificationModel, error) {
		var rejections []Rejection
		var failures []error
		for _, st := range strategiesFor(level, s.opts.LevelAttempts) {
			cand, err := s.deps.Simplifier.Simplify(ctx, chunk.Text, simplifier.Request{Level: st.level, Strength: st.strength})
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				failures = append(failures, err)
				s.log.Warn("strategy failed", zap.String("strategy", st.String()), zap.Error(err))
				continue
			}

			verdict, err := s.deps.Gate.Validate(ctx, chunk.Text, cand.Text, level)
			if err != nil {
				failures = append(failures, err)
				s.log.Warn("quality gate failed", zap.String("strategy", st.String()), zap.Error(err))
				continue
			}
			if !verdict.Accepted {
				rejections = append(rejections, Rejection{
					Strategy: st.String(),
					Reason:   verdict.Reason,
					Semantic: verdict.Semantic,
					Surface:  verdict.Surface,
				})
				s.log.Info("candidate rejected",
					zap.String("book", chunk.BookID),
					zap.Int("chunk", chunk.Index),
					zap.String("strategy", st.String()),
					zap.String("reason", string(verdict.Reason)))
				continue
			}

			return &models.SimplificationModel{
				BookID:           chunk.BookID,
				ChunkIndex:       chunk.Index,
				Level:            string(level),
				Text:             cand.Text,
				QualityScore:     verdict.Semantic,
				SurfaceScore:     verdict.Surface,
				GeneratorVersion: cand.GeneratorVersion,
				Strategy:         st.String(),
			}, nil
		}

		if len(rejections) > 0 {
			return nil, &RejectedError{Level: level, Rejections: rejections}
		}
		return nil, errors.Join(failures...)
	}
}
