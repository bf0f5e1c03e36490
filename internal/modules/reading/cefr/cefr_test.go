package cefr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	l, err := Parse(" b2 ")
	require.NoError(t, err)
	assert.Equal(t, B2, l)

	l, err = Parse("Original")
	require.NoError(t, err)
	assert.Equal(t, Original, l)

	_, err = Parse("D1")
	assert.Error(t, err)
}

func TestParseListDefaultsAndDedup(t *testing.T) {
	all, err := ParseList("")
	require.NoError(t, err)
	assert.Equal(t, All, all)

	got, err := ParseList("a1, A1,c2")
	require.NoError(t, err)
	assert.Equal(t, []Level{A1, C2}, got)

	_, err = ParseList("original")
	assert.Error(t, err)
}

func TestOrdering(t *testing.T) {
	assert.True(t, A1.Less(A2))
	assert.True(t, C1.Less(C2))
	assert.False(t, C2.Less(B1))

	next, ok := A1.Harder()
	require.True(t, ok)
	assert.Equal(t, A2, next)

	_, ok = C2.Harder()
	assert.False(t, ok)
	assert.False(t, Original.Valid())
}

func TestConstraintsSentenceTargets(t *testing.T) {
	for _, tc := range []struct {
		level Level
		max   int
	}{{A1, 12}, {A2, 12}, {B1, 18}, {B2, 18}, {C1, 0}, {C2, 0}} {
		c, ok := ConstraintsFor(tc.level)
		require.True(t, ok, tc.level)
		assert.Equal(t, tc.max, c.MaxAvgSentenceWords, tc.level)
	}
	_, ok := ConstraintsFor(Original)
	assert.False(t, ok)
}
