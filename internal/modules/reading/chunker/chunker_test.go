package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentence(r *rand.Rand, words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", r.Intn(1000))
	}
	return strings.Join(parts, " ") + "."
}

func paragraph(r *rand.Rand, sentences, wordsPer int) string {
	out := make([]string, sentences)
	for i := range out {
		out[i] = sentence(r, wordsPer)
	}
	return strings.Join(out, " ")
}

func book(seed int64, paragraphs int) string {
	r := rand.New(rand.NewSource(seed))
	parts := make([]string, paragraphs)
	for i := range parts {
		parts[i] = paragraph(r, 1+r.Intn(12), 5+r.Intn(20))
	}
	return strings.Join(parts, "\n\n")
}

func TestChunkDeterministic(t *testing.T) {
	text := book(7, 60)
	a, err := Chunk(text, Options{})
	require.NoError(t, err)
	b, err := Chunk(text, Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestChunkReconstructsSource(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		text := "\n\n" + book(seed, 40) + "\n\n\n"
		chunks, err := Chunk(text, Options{MinWords: 50, MaxWords: 120})
		require.NoError(t, err)
		require.Equal(t, text, Join(chunks), "seed %d", seed)

		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, text[c.Start:c.End], c.Text)
			if i > 0 {
				assert.Equal(t, chunks[i-1].End, c.Start, "chunks must be gapless")
			}
		}
	}
}

func TestChunkNeverSplitsMidSentence(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	// one huge paragraph forces sentence-level splitting
	text := paragraph(r, 80, 15)
	chunks, err := Chunk(text, Options{MinWords: 40, MaxWords: 100})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(strings.TrimSpace(c.Text), "."), "chunk %d ends mid-sentence: %q", c.Index, c.Text)
		assert.LessOrEqual(t, c.WordCount, 100+40)
	}
}

func TestChunkRespectsBand(t *testing.T) {
	text := book(11, 200)
	chunks, err := Chunk(text, Options{MinWords: 150, MaxWords: 400})
	require.NoError(t, err)
	for i, c := range chunks {
		assert.LessOrEqual(t, c.WordCount, 550, "chunk %d", i)
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, c.WordCount, 150, "chunk %d", i)
		}
	}
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	text := "It was the best of times, it was the worst of times."
	chunks, err := Chunk(text, Options{})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 12, chunks[0].WordCount)
}

func TestChunkInvalidSource(t *testing.T) {
	for _, text := range []string{"", "   \n\n\t ", string([]byte{0xff, 0xfe, 'a'})} {
		_, err := Chunk(text, Options{})
		assert.ErrorIs(t, err, ErrInvalidSourceText)
	}
}

func TestChunkPrefersParagraphBoundaries(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	p1 := paragraph(r, 6, 10) // 60 words
	p2 := paragraph(r, 6, 10)
	p3 := paragraph(r, 6, 10)
	text := p1 + "\n\n" + p2 + "\n\n" + p3
	chunks, err := Chunk(text, Options{MinWords: 50, MaxWords: 130})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, p1+"\n\n"+p2+"\n\n", chunks[0].Text)
	assert.Equal(t, p3, chunks[1].Text)
}

func TestSentencesSkipAbbreviations(t *testing.T) {
	text := "Mr. Darcy bowed to Mrs. Bennet near St. Paul's. J. Austen wrote it, e.g. here. Dr. Watson agreed! Then... silence."
	var got []string
	for _, u := range sentences(text, newUnit(text, 0, len(text))) {
		got = append(got, text[u.start:u.end])
	}
	assert.Equal(t, []string{
		"Mr. Darcy bowed to Mrs. Bennet near St. Paul's. ",
		"J. Austen wrote it, e.g. here. ",
		"Dr. Watson agreed! ",
		"Then... ",
		"silence.",
	}, got)
}

func TestChunkDoesNotEndOnAbbreviation(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	parts := make([]string, 60)
	for i := range parts {
		parts[i] = "Mr. Smith met Dr. Jones. " + sentence(r, 12)
	}
	text := strings.Join(parts, " ")
	chunks, err := Chunk(text, Options{MinWords: 30, MaxWords: 80})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, text, Join(chunks))
	for _, c := range chunks {
		trimmed := strings.TrimSpace(c.Text)
		assert.False(t, strings.HasSuffix(trimmed, "Mr.") || strings.HasSuffix(trimmed, "Dr."), "chunk %d: %q", c.Index, trimmed)
	}
}
