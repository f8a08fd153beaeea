// Package relationships implements the Relationship Wave (C8): given the
// entities found by earlier waves, it assembles a prompt naming only the
// relationship types eligible for that entity set, and resolves the wave's
// response into deduplicated, entity-id-valid Relationship records.
package relationships

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/brianjwalters/lexorch/internal/extractionerr"
	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/brianjwalters/lexorch/internal/patternstore"
)

const maxIndicatorsPerType = 6

// Params bounds how many relationships a call may return and how
// confident a candidate must be to keep, per spec §4.8.
type Params struct {
	ConfidenceFloor  float64
	MaxRelationships int
}

// EligibleTypes returns, per relationship category, the relationship
// patterns whose declared source and target entity types are both present
// among entities. A pattern naming a type absent from the entity set
// cannot produce a valid relationship and is excluded from the prompt.
func EligibleTypes(store *patternstore.Store, entities []model.Entity) map[string][]model.RelationshipPattern {
	present := make(map[model.EntityType]struct{}, len(entities))
	for _, e := range entities {
		present[e.EntityType] = struct{}{}
	}

	eligible := make(map[string][]model.RelationshipPattern)
	for category, patterns := range store.GetRelationshipPatterns() {
		for _, p := range patterns {
			if _, ok := present[p.SourceEntityType]; !ok {
				continue
			}
			if _, ok := present[p.TargetEntityType]; !ok {
				continue
			}
			eligible[category] = append(eligible[category], p)
		}
	}
	return eligible
}

// BuildPrompt assembles the relationship wave's user message: the
// already-extracted entities (id, type, text) and the eligible
// relationship types grouped by category with their indicator phrases,
// per spec §4.8.
func BuildPrompt(store *patternstore.Store, entities []model.Entity, excerpt string) (string, error) {
	type entityRef struct {
		ID         string `json:"id"`
		EntityType string `json:"entity_type"`
		Text       string `json:"text"`
	}
	refs := make([]entityRef, 0, len(entities))
	for _, e := range entities {
		refs = append(refs, entityRef{ID: e.ID, EntityType: string(e.EntityType), Text: e.CleanedText})
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return "", extractionerr.New(extractionerr.KindInvalidInput, fmt.Errorf("encode entity refs: %w", err))
	}

	eligible := EligibleTypes(store, entities)

	var b strings.Builder
	b.WriteString("Given the entities below, identify relationships between them. ")
	b.WriteString("Only use relationship types listed, and only connect entities by the ids given. ")
	b.WriteString("Return a JSON array of objects with fields: relationship_type, source_entity_id, target_entity_id, confidence (0-1), evidence_text.\n\n")

	categories := make([]string, 0, len(eligible))
	for category := range eligible {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		b.WriteString("Category: ")
		b.WriteString(category)
		b.WriteString("\n")
		for _, p := range eligible[category] {
			b.WriteString("- ")
			b.WriteString(p.RelationshipType)
			b.WriteString(" (")
			b.WriteString(string(p.SourceEntityType))
			b.WriteString(" -> ")
			b.WriteString(string(p.TargetEntityType))
			b.WriteString(")")
			if len(p.Indicators) > 0 {
				indicators := p.Indicators
				if len(indicators) > maxIndicatorsPerType {
					indicators = indicators[:maxIndicatorsPerType]
				}
				b.WriteString(" indicators: ")
				b.WriteString(strings.Join(indicators, ", "))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nEntities:\n")
	b.Write(encoded)
	b.WriteString("\n\nExcerpt:\n")
	b.WriteString(excerpt)
	return b.String(), nil
}

// Candidate is one relationship as returned by the wave's raw JSON
// response, before id validation, confidence filtering, and dedup.
type Candidate struct {
	RelationshipType string  `json:"relationship_type"`
	SourceEntityID   string  `json:"source_entity_id"`
	TargetEntityID   string  `json:"target_entity_id"`
	Confidence       float64 `json:"confidence"`
	EvidenceText     string  `json:"evidence_text"`
}

// ParseCandidates decodes a wave's JSON response into raw candidates. The
// response may be a bare array, or an object carrying the array under a
// conventional "relationships" key.
func ParseCandidates(content string) ([]Candidate, error) {
	var direct []Candidate
	if err := json.Unmarshal([]byte(content), &direct); err == nil {
		return direct, nil
	}
	var wrapped struct {
		Relationships []Candidate `json:"relationships"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
		return nil, extractionerr.New(extractionerr.KindMalformedJSON, fmt.Errorf("decode wave relationships: %w", err))
	}
	return wrapped.Relationships, nil
}

// Resolve turns candidates into Relationship records: candidates whose
// source or target id isn't in entities are dropped (orphan-id dropping,
// per spec §4.8), then candidates below params.ConfidenceFloor are
// dropped, then the result is deduplicated on
// (relationship_type, source_id, target_id) and truncated to
// params.MaxRelationships if positive. newID is called once per surviving
// relationship to mint its id.
func Resolve(candidates []Candidate, entities []model.Entity, params Params, newID func() string) []model.Relationship {
	known := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		known[e.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]model.Relationship, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := known[c.SourceEntityID]; !ok {
			continue
		}
		if _, ok := known[c.TargetEntityID]; !ok {
			continue
		}
		confidence := model.ClampConfidence(c.Confidence)
		if confidence < params.ConfidenceFloor {
			continue
		}
		key := c.RelationshipType + "\x00" + c.SourceEntityID + "\x00" + c.TargetEntityID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		out = append(out, model.Relationship{
			ID:               newID(),
			RelationshipType: c.RelationshipType,
			SourceEntityID:   c.SourceEntityID,
			TargetEntityID:   c.TargetEntityID,
			Confidence:       confidence,
			EvidenceText:     c.EvidenceText,
		})
		if params.MaxRelationships > 0 && len(out) >= params.MaxRelationships {
			break
		}
	}
	return out
}
