package cefr

import (
	"fmt"
	"strings"
)

// Level is a CEFR difficulty level.
type Level string

const (
	A1 Level = "A1"
	A2 Level = "A2"
	B1 Level = "B1"
	B2 Level = "B2"
	C1 Level = "C1"
	C2 Level = "C2"

	// Original keys assets of the unsimplified chunk text. It is not a CEFR
	// level and is never passed to the simplifier.
	Original Level = "original"
)

// All lists the six levels from easiest to hardest.
var All = []Level{A1, A2, B1, B2, C1, C2}

// Parse accepts "b1", " B1 " etc. The pseudo-level "original" is accepted too.
func Parse(raw string) (Level, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if strings.EqualFold(v, string(Original)) {
		return Original, nil
	}
	for _, l := range All {
		if string(l) == v {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown CEFR level %q", raw)
}

// ParseList parses a comma separated list; empty input yields All.
func ParseList(raw string) ([]Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]Level(nil), All...), nil
	}
	seen := make(map[Level]struct{})
	out := make([]Level, 0, len(All))
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, err := Parse(part)
		if err != nil {
			return nil, err
		}
		if l == Original {
			return nil, fmt.Errorf("level %q cannot be generated", raw)
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out, nil
}

// Rank orders levels by difficulty, A1 = 0. Original ranks above C2.
func (l Level) Rank() int {
	for i, v := range All {
		if v == l {
			return i
		}
	}
	if l == Original {
		return len(All)
	}
	return -1
}

func (l Level) Valid() bool { return l.Rank() >= 0 && l != Original }

func (l Level) Less(other Level) bool { return l.Rank() < other.Rank() }

// Harder returns the adjacent, less aggressive level. C2 has none.
func (l Level) Harder() (Level, bool) {
	r := l.Rank()
	if r < 0 || r >= len(All)-1 {
		return "", false
	}
	return All[r+1], true
}

func (l Level) String() string { return string(l) }
