package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brianjwalters/lexorch/internal/extractionerr"
	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/brianjwalters/lexorch/internal/patternstore"
)

const (
	maxExamplesPerType   = 5
	wholeDocSnippetChars = 2000
)

// buildEntityPrompt assembles the user message for an entity wave, per
// spec §4.7: the chunk content, the target entity types with a handful of
// aggregated examples drawn from the pattern store per type, and a bounded
// whole-document snippet for cross-chunk context.
func buildEntityPrompt(store *patternstore.Store, wave WaveSpec, chunkContent, wholeDocument string) string {
	var b strings.Builder
	b.WriteString("Extract the following entity types from the document excerpt below. ")
	b.WriteString("Return a JSON array of objects with fields: entity_type, text, confidence (0-1), start_position, end_position.\n\n")

	b.WriteString("Entity types:\n")
	for _, t := range wave.TargetTypes {
		b.WriteString("- ")
		b.WriteString(t)
		if examples := store.GetAggregatedExamples(model.EntityType(t)); len(examples) > 0 {
			if len(examples) > maxExamplesPerType {
				examples = examples[:maxExamplesPerType]
			}
			b.WriteString(" (examples: ")
			b.WriteString(strings.Join(examples, "; "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	if snippet := boundedSnippet(wholeDocument, wholeDocSnippetChars); snippet != "" {
		b.WriteString("\nDocument context:\n")
		b.WriteString(snippet)
		b.WriteString("\n")
	}

	b.WriteString("\nExcerpt to extract from:\n")
	b.WriteString(chunkContent)
	return b.String()
}

func boundedSnippet(text string, limit int) string {
	t := strings.TrimSpace(text)
	if len(t) <= limit {
		return t
	}
	return t[:limit]
}

type waveEntityCandidate struct {
	EntityType    string  `json:"entity_type"`
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	StartPosition int     `json:"start_position"`
	EndPosition   int     `json:"end_position"`
}

// parseEntityCandidates decodes a wave's JSON response into raw candidates.
// The response may be a bare array, or an object carrying the array under
// a conventional "entities" key.
func parseEntityCandidates(content string) ([]waveEntityCandidate, error) {
	var direct []waveEntityCandidate
	if err := json.Unmarshal([]byte(content), &direct); err == nil {
		return direct, nil
	}
	var wrapped struct {
		Entities []waveEntityCandidate `json:"entities"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
		return nil, extractionerr.New(extractionerr.KindMalformedJSON, fmt.Errorf("decode wave entities: %w", err))
	}
	return wrapped.Entities, nil
}
