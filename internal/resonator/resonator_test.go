package resonator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_EquivalentInputsEquivalentRecords(t *testing.T) {
	r := New(nil)

	a, err := r.Extract(context.Background(), "The fracture widens under pressure", nil)
	require.NoError(t, err)
	b, err := r.Extract(context.Background(), "The fracture widens under pressure", nil)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.ResonanceScore, b.ResonanceScore)
	assert.Equal(t, a.Patterns, b.Patterns)
}

func TestExtract_NormalizesWhitespaceAndCase(t *testing.T) {
	r := New(nil)

	a, err := r.Extract(context.Background(), "Hello World", nil)
	require.NoError(t, err)
	b, err := r.Extract(context.Background(), "  hello world ", nil)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
}

func TestExtract_ScoreInRange(t *testing.T) {
	r := New(nil)
	inputs := []string{
		"",
		"word",
		"a b c d e f g h i j k l m n o p",
		"repeat repeat repeat repeat repeat",
		"the quick brown fox jumps over the lazy dog near the riverbank",
	}
	for _, input := range inputs {
		rec, err := r.Extract(context.Background(), input, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.ResonanceScore, 0.0, "input %q", input)
		assert.LessOrEqual(t, rec.ResonanceScore, 1.0, "input %q", input)
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	r := New(nil)
	rec, err := r.Extract(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.ResonanceScore)
	assert.Empty(t, rec.Patterns)
	assert.NotEmpty(t, rec.ID)
}

func TestExtract_PatternsSalientAndBounded(t *testing.T) {
	r := New(nil)

	rec, err := r.Extract(context.Background(),
		"memory memory memory consent drift drift the and for", nil)
	require.NoError(t, err)

	require.NotEmpty(t, rec.Patterns)
	assert.Equal(t, "memory", rec.Patterns[0], "most frequent token leads")
	assert.NotContains(t, rec.Patterns, "the", "stopwords excluded")
	assert.NotContains(t, rec.Patterns, "and")
	assert.LessOrEqual(t, len(rec.Patterns), maxPatterns)
}

func TestExtract_CancelledContext(t *testing.T) {
	r := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Extract(ctx, "anything", nil)
	assert.Error(t, err)
}
