package embedding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// charTokenizer counts one token per character, so tests can reason about
// exact packing boundaries without depending on approxTokenizer's ratio.
type charTokenizer struct{}

func (charTokenizer) CountTokens(text string) int { return len(text) }

func TestPackBatches_EmptyInputReturnsNil(t *testing.T) {
	batches, dropped := packBatches(nil, charTokenizer{}, 100, 10)
	assert.Nil(t, batches)
	assert.Nil(t, dropped)
}

func TestPackBatches_RespectsTokenCeiling(t *testing.T) {
	texts := []string{"aaaaa", "bbbbb", "ccccc"} // 5 tokens each
	batches, dropped := packBatches(texts, charTokenizer{}, 10, 100)

	require.Empty(t, dropped)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"aaaaa", "bbbbb"}, batches[0].texts)
	assert.Equal(t, []int{0, 1}, batches[0].indices)
	assert.Equal(t, []string{"ccccc"}, batches[1].texts)
	assert.Equal(t, []int{2}, batches[1].indices)
}

func TestPackBatches_RespectsItemCeiling(t *testing.T) {
	texts := []string{"a", "b", "c", "d"}
	batches, dropped := packBatches(texts, charTokenizer{}, 1000, 2)

	assert.Empty(t, dropped)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].texts, 2)
	assert.Len(t, batches[1].texts, 2)
}

func TestPackBatches_DropsOversizedText(t *testing.T) {
	texts := []string{"short", "this-text-is-too-long-for-the-limit"}
	batches, dropped := packBatches(texts, charTokenizer{}, 10, 100)

	require.Equal(t, []int{1}, dropped)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"short"}, batches[0].texts)
	assert.Equal(t, []int{0}, batches[0].indices)
}

func TestPackBatches_ZeroMaxTokensMeansUnbounded(t *testing.T) {
	texts := []string{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	batches, dropped := packBatches(texts, charTokenizer{}, 0, 100)
	assert.Empty(t, dropped)
	require.Len(t, batches, 1)
}

func TestSplitForTokenLimit_SingleTextUnderLimitIsUnchanged(t *testing.T) {
	b := textBatch{indices: []int{0}, texts: []string{"short"}}
	out := splitForTokenLimit(b, charTokenizer{}, 100)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"short"}, out[0].texts)
}

func TestSplitForTokenLimit_SingleTextOverLimitIsTruncated(t *testing.T) {
	b := textBatch{indices: []int{5}, texts: []string{"0123456789"}}
	out := splitForTokenLimit(b, charTokenizer{}, 5)
	require.Len(t, out, 1)
	require.Len(t, out[0].texts, 1)
	assert.LessOrEqual(t, len(out[0].texts[0]), 5)
	assert.Equal(t, []int{5}, out[0].indices)
}

func TestSplitForTokenLimit_MultiTextOverLimitSplitsIntoSubBatches(t *testing.T) {
	b := textBatch{
		indices: []int{0, 1, 2, 3},
		texts:   []string{"aaaaa", "bbbbb", "ccccc", "ddddd"}, // 20 tokens total
	}
	out := splitForTokenLimit(b, charTokenizer{}, 10)
	require.GreaterOrEqual(t, len(out), 2)

	var allIndices []int
	var allTexts []string
	for _, sub := range out {
		allIndices = append(allIndices, sub.indices...)
		allTexts = append(allTexts, sub.texts...)
	}
	assert.Equal(t, b.indices, allIndices)
	assert.Equal(t, b.texts, allTexts)
}

func TestSplitForTokenLimit_MultiTextUnderLimitIsUnchanged(t *testing.T) {
	b := textBatch{indices: []int{0, 1}, texts: []string{"a", "b"}}
	out := splitForTokenLimit(b, charTokenizer{}, 100)
	require.Len(t, out, 1)
	assert.Equal(t, b.texts, out[0].texts)
}

func TestAdaptiveSizer_ClampsInitialToRange(t *testing.T) {
	s := newAdaptiveSizer(1000, 10, 100)
	assert.Equal(t, 100, s.size())

	s2 := newAdaptiveSizer(1, 10, 100)
	assert.Equal(t, 10, s2.size())
}

func TestAdaptiveSizer_NoActionBeforeThreeSamples(t *testing.T) {
	s := newAdaptiveSizer(50, 10, 100)
	s.observe(10 * time.Millisecond)
	s.observe(10 * time.Millisecond)
	assert.Equal(t, 50, s.size())
}

func TestAdaptiveSizer_ShrinksWhenRecentMuchSlowerThanWindow(t *testing.T) {
	s := newAdaptiveSizer(50, 10, 100)
	for i := 0; i < 7; i++ {
		s.observe(10 * time.Millisecond)
	}
	// Recent batches take far longer than the established window mean.
	s.observe(100 * time.Millisecond)
	s.observe(100 * time.Millisecond)
	s.observe(100 * time.Millisecond)

	assert.Less(t, s.size(), 50)
	assert.GreaterOrEqual(t, s.size(), 10)
}

func TestAdaptiveSizer_GrowsWhenRecentMuchFasterThanWindow(t *testing.T) {
	s := newAdaptiveSizer(50, 10, 100)
	for i := 0; i < 7; i++ {
		s.observe(100 * time.Millisecond)
	}
	s.observe(10 * time.Millisecond)
	s.observe(10 * time.Millisecond)
	s.observe(10 * time.Millisecond)

	assert.Greater(t, s.size(), 50)
	assert.LessOrEqual(t, s.size(), 100)
}

func TestAdaptiveSizer_NeverExceedsMax(t *testing.T) {
	s := newAdaptiveSizer(99, 10, 100)
	for i := 0; i < 20; i++ {
		s.observe(100 * time.Millisecond)
		s.observe(1 * time.Millisecond)
	}
	assert.LessOrEqual(t, s.size(), 100)
}

func TestAdaptiveSizer_NeverBelowMin(t *testing.T) {
	s := newAdaptiveSizer(11, 10, 100)
	for i := 0; i < 20; i++ {
		s.observe(1 * time.Millisecond)
		s.observe(100 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, s.size(), 10)
}

func TestAdaptiveSizer_WindowCapsAtTenSamples(t *testing.T) {
	s := newAdaptiveSizer(50, 10, 100)
	for i := 0; i < 20; i++ {
		s.observe(time.Duration(i+1) * time.Millisecond)
	}
	assert.LessOrEqual(t, len(s.window), 10)
}
