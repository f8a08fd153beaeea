package orchestrator

import (
	"strings"
	"testing"

	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIntoChunks_NilConfigReturnsWholeDocument(t *testing.T) {
	chunks := splitIntoChunks("one whole document", nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one whole document", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Offset)
}

func TestSplitIntoChunks_NoneStrategyReturnsWholeDocument(t *testing.T) {
	cfg := &model.ChunkConfig{Strategy: model.ChunkStrategyNone, ChunkSizeTokens: 10}
	chunks := splitIntoChunks("text regardless of size", cfg)
	require.Len(t, chunks, 1)
}

func TestSplitIntoChunks_SplitsAtTargetSizeWithOverlap(t *testing.T) {
	paragraph := strings.Repeat("word ", 50) + "\n\n"
	text := strings.Repeat(paragraph, 6)
	cfg := &model.ChunkConfig{
		Strategy:           model.ChunkStrategyExtraction,
		ChunkSizeTokens:    100,
		OverlapTokens:      10,
		PreserveBoundaries: model.BoundaryParagraph,
	}

	chunks := splitIntoChunks(text, cfg)

	require.True(t, len(chunks) > 1)
	for _, c := range chunks {
		assert.Equal(t, text[c.Offset:c.Offset+len(c.Text)], c.Text)
	}
	// Reassembling offsets should cover the whole document without gaps
	// past the first chunk's start.
	assert.Equal(t, 0, chunks[0].Offset)
}

func TestSplitIntoChunks_LastChunkReachesEndOfText(t *testing.T) {
	text := strings.Repeat("x", 500)
	cfg := &model.ChunkConfig{Strategy: model.ChunkStrategyExtraction, ChunkSizeTokens: 50, OverlapTokens: 0}

	chunks := splitIntoChunks(text, cfg)

	last := chunks[len(chunks)-1]
	assert.Equal(t, len(text), last.Offset+len(last.Text))
}
