package cefr

// Constraints describe how far a rewrite at a level may go.
type Constraints struct {
	Level Level
	// MaxAvgSentenceWords is the target average sentence length; 0 means the
	// original structure may be kept.
	MaxAvgSentenceWords int
	Vocabulary          string
	Grammar             string
	// RetainStructure allows the rewrite to stay close to the source.
	RetainStructure bool
}

var constraintsByLevel = map[Level]Constraints{
	A1: {
		Level:               A1,
		MaxAvgSentenceWords: 12,
		Vocabulary:          "the most common 500-800 English words; replace every rare or literary word",
		Grammar:             "present and past simple, one clause per sentence, no passive voice",
	},
	A2: {
		Level:               A2,
		MaxAvgSentenceWords: 12,
		Vocabulary:          "about 1000-1500 everyday words; explain unavoidable rare words in plain terms",
		Grammar:             "simple tenses, short compound sentences joined with and/but/because",
	},
	B1: {
		Level:               B1,
		MaxAvgSentenceWords: 18,
		Vocabulary:          "about 2500 common words; keep topic words the story depends on",
		Grammar:             "all common tenses, simple relative clauses, limited passive voice",
	},
	B2: {
		Level:               B2,
		MaxAvgSentenceWords: 18,
		Vocabulary:          "about 4000 words; simplify archaic and idiomatic phrasing",
		Grammar:             "complex sentences allowed when they stay clear",
	},
	C1: {
		Level:           C1,
		Vocabulary:      "wide vocabulary; modernize only archaic or obscure words",
		Grammar:         "keep the original structure, lightly untangle the longest sentences",
		RetainStructure: true,
	},
	C2: {
		Level:           C2,
		Vocabulary:      "full vocabulary of the original",
		Grammar:         "keep the original structure almost verbatim",
		RetainStructure: true,
	},
}

// ConstraintsFor returns the rewrite constraints of a level.
func ConstraintsFor(l Level) (Constraints, bool) {
	c, ok := constraintsByLevel[l]
	return c, ok
}
