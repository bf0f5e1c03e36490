package audio

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentenceEnd = regexp.MustCompile(`[.!?…]+["'”’)\]]*\s+`)

// Split cuts text into segments of at most maxChars runes. Sentences are kept
// whole where possible; an oversized sentence is cut between words, and an
// oversized word between runes. maxChars <= 0 disables splitting.
func Split(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}

	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	add := func(piece string) {
		n := utf8.RuneCountInString(piece)
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+n > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(piece)
	}

	for _, sentence := range sentences(text) {
		if utf8.RuneCountInString(sentence) <= maxChars {
			add(sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			for _, part := range hardWrap(word, maxChars) {
				add(part)
			}
		}
	}
	flush()
	return out
}

func sentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

func hardWrap(word string, maxChars int) []string {
	if utf8.RuneCountInString(word) <= maxChars {
		return []string{word}
	}
	runes := []rune(word)
	var out []string
	for len(runes) > maxChars {
		out = append(out, string(runes[:maxChars]))
		runes = runes[maxChars:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// wordsPerMinute is the narration pace used when a provider does not report
// a duration.
const wordsPerMinute = 150

// EstimateDurationMs approximates the spoken length of text.
func EstimateDurationMs(text string) int64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int64(words) * 60_000 / wordsPerMinute
}
