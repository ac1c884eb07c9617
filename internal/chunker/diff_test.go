package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkhound-go/chunkhound/internal/domain"
)

func mustChunk(t *testing.T, fileID, symbol string, start, end int) *domain.Chunk {
	t.Helper()
	c, err := domain.NewChunk(fileID, symbol, domain.ChunkTypeFunction, "go", start, end, "func "+symbol+"() {}", "")
	require.NoError(t, err)
	return c
}

func TestDiffEmptyRangesYieldsNoChanges(t *testing.T) {
	d := NewIncrementalChunker()
	old := []*domain.Chunk{mustChunk(t, "f1", "a", 1, 5)}
	diff := d.Diff(old, nil, old)
	assert.Empty(t, diff.ToDelete)
	assert.Empty(t, diff.ToInsert)
	assert.Equal(t, 1, diff.UnchangedCount)
}

func TestDiffFullChangeReplacesEverything(t *testing.T) {
	d := NewIncrementalChunker()
	old := []*domain.Chunk{mustChunk(t, "f1", "a", 1, 5)}
	fresh := []*domain.Chunk{mustChunk(t, "f1", "b", 1, 5)}
	diff := d.Diff(old, []ChangedRange{{Kind: FullChange}}, fresh)
	assert.ElementsMatch(t, []string{old[0].ID}, diff.ToDelete)
	assert.Equal(t, fresh, diff.ToInsert)
	assert.Equal(t, 0, diff.UnchangedCount)
}

func TestDiffOnlyAffectsIntersectingChunks(t *testing.T) {
	d := NewIncrementalChunker()
	untouched := mustChunk(t, "f1", "untouched", 1, 5)
	affected := mustChunk(t, "f1", "affected", 10, 15)
	old := []*domain.Chunk{untouched, affected}

	replacement := mustChunk(t, "f1", "affected2", 10, 16)
	outsideInsert := mustChunk(t, "f1", "far", 100, 105)
	fresh := []*domain.Chunk{replacement, outsideInsert}

	ranges := []ChangedRange{{Kind: LineRange, StartLineApprox: 11, EndLineApprox: 12}}
	diff := d.Diff(old, ranges, fresh)

	assert.ElementsMatch(t, []string{affected.ID}, diff.ToDelete)
	assert.ElementsMatch(t, []*domain.Chunk{replacement}, diff.ToInsert)
	assert.Equal(t, 1, diff.UnchangedCount)
	assert.Empty(t, diff.ToUpdate, "modifications are always expressed as delete+insert")
}
