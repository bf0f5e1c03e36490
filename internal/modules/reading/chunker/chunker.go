package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMinWords = 150
	DefaultMaxWords = 400
)

// ErrInvalidSourceText is returned for empty or unparsable book text.
var ErrInvalidSourceText = errors.New("invalid source text")

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t\r\f\v]*\n\s*`)
	sentenceEnd    = regexp.MustCompile(`[.!?…]+["'”’)\]]*\s+`)
)

// abbreviations end in a period without ending the sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "st": true, "jr": true,
	"sr": true, "prof": true, "rev": true, "gen": true, "col": true, "capt": true,
	"lt": true, "sgt": true, "mt": true, "vs": true, "e.g": true,
	"i.e": true, "cf": true,
}

// Options bound the chunk size in words.
type Options struct {
	MinWords int
	MaxWords int
}

// Chunk is a span of the source text. Text == source[Start:End].
type Chunk struct {
	Index     int
	Start     int
	End       int
	Text      string
	WordCount int
}

type unit struct {
	start, end int
	words      int
}

func (o Options) normalized() Options {
	if o.MinWords <= 0 {
		o.MinWords = DefaultMinWords
	}
	if o.MaxWords <= 0 {
		o.MaxWords = DefaultMaxWords
	}
	if o.MaxWords < o.MinWords {
		o.MaxWords = o.MinWords
	}
	return o
}

// Chunk splits text into ordered, gapless spans. Paragraph boundaries are
// preferred; oversized paragraphs are split between sentences. Separators stay
// attached to the preceding span so that joining all chunks yields text.
func Chunk(text string, opts Options) ([]Chunk, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrInvalidSourceText)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidSourceText)
	}
	opts = opts.normalized()

	var units []unit
	for _, p := range paragraphs(text) {
		if p.words > opts.MaxWords {
			units = append(units, sentences(text, p)...)
			continue
		}
		units = append(units, p)
	}

	spans := pack(units, opts)
	out := make([]Chunk, 0, len(spans))
	for i, s := range spans {
		out = append(out, Chunk{
			Index:     i,
			Start:     s.start,
			End:       s.end,
			Text:      text[s.start:s.end],
			WordCount: s.words,
		})
	}
	return out, nil
}

func paragraphs(text string) []unit {
	var out []unit
	start := 0
	for _, m := range paragraphBreak.FindAllStringIndex(text, -1) {
		if m[1] <= start {
			continue
		}
		out = append(out, newUnit(text, start, m[1]))
		start = m[1]
	}
	if start < len(text) {
		out = append(out, newUnit(text, start, len(text)))
	}
	return out
}

func sentences(text string, p unit) []unit {
	body := text[p.start:p.end]
	var out []unit
	cur := 0
	for _, m := range sentenceEnd.FindAllStringIndex(body, -1) {
		if m[1] <= cur || abbreviationAt(body, m[0]) {
			continue
		}
		out = append(out, newUnit(text, p.start+cur, p.start+m[1]))
		cur = m[1]
	}
	if cur < len(body) {
		out = append(out, newUnit(text, p.start+cur, p.end))
	}
	return out
}

// abbreviationAt reports whether the single period at dot closes a known
// abbreviation or an initial ("J.") rather than a sentence.
func abbreviationAt(body string, dot int) bool {
	if body[dot] != '.' || (dot+1 < len(body) && body[dot+1] == '.') {
		return false
	}
	word := body[:dot]
	if i := strings.LastIndexFunc(word, wordBreak); i >= 0 {
		_, size := utf8.DecodeRuneInString(word[i:])
		word = word[i+size:]
	}
	if r, size := utf8.DecodeRuneInString(word); size > 0 && size == len(word) && unicode.IsUpper(r) {
		return true
	}
	return abbreviations[strings.ToLower(word)]
}

func wordBreak(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune("\"'(“‘", r)
}

func newUnit(text string, start, end int) unit {
	return unit{start: start, end: end, words: len(strings.Fields(text[start:end]))}
}

func pack(units []unit, opts Options) []unit {
	var (
		out     []unit
		pending unit
		open    bool
	)
	for _, u := range units {
		switch {
		case !open:
			pending, open = u, true
		case u.words == 0 || pending.words == 0:
			pending = merge(pending, u)
		case pending.words+u.words <= opts.MaxWords:
			pending = merge(pending, u)
		case pending.words < opts.MinWords && pending.words+u.words <= opts.MaxWords+opts.MinWords:
			pending = merge(pending, u)
		default:
			out = append(out, pending)
			pending = u
		}
	}
	if open {
		out = append(out, pending)
	}

	// fold a trailing runt into its predecessor
	if n := len(out); n >= 2 {
		last, prev := out[n-1], out[n-2]
		if last.words < opts.MinWords && prev.words+last.words <= opts.MaxWords+opts.MinWords {
			out[n-2] = merge(prev, last)
			out = out[:n-1]
		}
	}
	return out
}

func merge(a, b unit) unit {
	return unit{start: a.start, end: b.end, words: a.words + b.words}
}

// Join concatenates chunk texts in index order.
func Join(chunks []Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Text)
	}
	return sb.String()
}
