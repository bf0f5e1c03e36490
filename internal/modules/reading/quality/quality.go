// Package quality decides whether a candidate rewrite may be cached and shown.
package quality

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/bookbridge/core/internal/modules/reading/cefr"
)

// Reason explains a rejected candidate.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonEmpty             Reason = "Empty"
	ReasonTruncated         Reason = "Truncated"
	ReasonIdenticalToSource Reason = "IdenticalToSource"
	ReasonSemanticDrift     Reason = "SemanticDrift"
)

// Verdict is the outcome of one validation.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Semantic float64
	Surface  float64
}

// Similarity scores the meaning overlap of two texts in [0,1].
type Similarity interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Thresholds are tunables loaded from config.
type Thresholds struct {
	SimilarityFloor   float64
	IdentityThreshold float64
	MinLengthRatio    float64
}

// DefaultThresholds mirror the shipped configuration.
var DefaultThresholds = Thresholds{
	SimilarityFloor:   0.75,
	IdentityThreshold: 0.97,
	MinLengthRatio:    0.3,
}

type Gate struct {
	sim        Similarity
	thresholds Thresholds
}

func NewGate(sim Similarity, t Thresholds) *Gate {
	return &Gate{sim: sim, thresholds: t}
}

// Validate runs the checks cheapest first: empty, truncated, identical to the
// source, then semantic drift. Only the last one calls the similarity backend;
// its failure is returned as an error, not as a rejection.
func (g *Gate) Validate(ctx context.Context, original, candidate string, level cefr.Level) (Verdict, error) {
	candTokens := Tokens(candidate)
	if len(candTokens) == 0 {
		return Verdict{Reason: ReasonEmpty}, nil
	}

	origTokens := Tokens(original)
	if float64(len(candTokens)) < g.thresholds.MinLengthRatio*float64(len(origTokens)) {
		return Verdict{Reason: ReasonTruncated, Surface: SurfaceSimilarity(origTokens, candTokens)}, nil
	}

	surface := SurfaceSimilarity(origTokens, candTokens)
	if surface > g.thresholds.IdentityThreshold && level != cefr.C2 {
		return Verdict{Reason: ReasonIdenticalToSource, Surface: surface}, nil
	}

	semantic, err := g.sim.Similarity(ctx, original, candidate)
	if err != nil {
		return Verdict{Surface: surface}, fmt.Errorf("semantic similarity: %w", err)
	}
	if semantic < g.thresholds.SimilarityFloor {
		return Verdict{Reason: ReasonSemanticDrift, Semantic: semantic, Surface: surface}, nil
	}
	return Verdict{Accepted: true, Semantic: semantic, Surface: surface}, nil
}

// Tokens case-folds s and splits it into words with punctuation stripped.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// SurfaceSimilarity is 1 - (word-level edit distance / longer length).
func SurfaceSimilarity(a, b []string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b []string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
