package orchestrator

import (
	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/brianjwalters/lexorch/internal/sizedetect"
)

// Chunk is one slice of document text handed to a wave, carrying its
// absolute character offset so extracted positions stay document-relative.
type Chunk struct {
	ID     string
	Text   string
	Offset int
}

// splitIntoChunks splits text according to cfg, sized in characters via the
// same chars-per-token ratio sizedetect uses. A nil cfg, or a ChunkStrategy
// of "none", yields a single whole-document chunk.
//
// Paragraph boundaries (a blank line) are preferred split points, then a
// single newline; when neither is found within the target window the chunk
// is cut at the hard limit, which can split a sentence or paragraph.
func splitIntoChunks(text string, cfg *model.ChunkConfig) []Chunk {
	if cfg == nil || cfg.Strategy == model.ChunkStrategyNone || cfg.ChunkSizeTokens <= 0 {
		return []Chunk{{ID: "chunk-0", Text: text, Offset: 0}}
	}

	targetChars := int(float64(cfg.ChunkSizeTokens) * sizedetect.DefaultCharsPerToken)
	overlapChars := int(float64(cfg.OverlapTokens) * sizedetect.DefaultCharsPerToken)
	if targetChars <= 0 {
		return []Chunk{{ID: "chunk-0", Text: text, Offset: 0}}
	}

	var chunks []Chunk
	pos := 0
	n := len(text)
	idx := 0
	for pos < n {
		end := pos + targetChars
		if end >= n {
			end = n
		} else if cfg.PreserveBoundaries != "" {
			if boundary := findBoundary(text, pos, end); boundary > pos {
				end = boundary
			}
		}

		chunks = append(chunks, Chunk{ID: chunkID(idx), Text: text[pos:end], Offset: pos})
		idx++

		if end >= n {
			break
		}
		next := end - overlapChars
		if next <= pos {
			next = end
		}
		pos = next
	}
	return chunks
}

// findBoundary looks backward from end for a paragraph break (double
// newline) within the window (start, end], falling back to a single
// newline, then to end itself if neither is found.
func findBoundary(text string, start, end int) int {
	for i := end; i > start; i-- {
		if i >= 2 && text[i-2] == '\n' && text[i-1] == '\n' {
			return i
		}
	}
	for i := end; i > start; i-- {
		if text[i-1] == '\n' {
			return i
		}
	}
	return end
}

func chunkID(idx int) string {
	const digits = "0123456789"
	if idx < 10 {
		return "chunk-" + string(digits[idx])
	}
	// Cheap fallback for the rare document with 10+ chunks.
	buf := []byte{}
	for idx > 0 {
		buf = append([]byte{digits[idx%10]}, buf...)
		idx /= 10
	}
	return "chunk-" + string(buf)
}
