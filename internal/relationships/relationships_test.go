package relationships_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/brianjwalters/lexorch/internal/patternstore"
	"github.com/brianjwalters/lexorch/internal/relationships"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWithRelationshipPatterns(t *testing.T) *patternstore.Store {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "relationships"), 0o755))

	content := `
patterns:
  - relationship_type: REPRESENTS
    source_entity_type: ATTORNEY
    target_entity_type: PARTY
    indicators:
      - "on behalf of"
      - "counsel for"
  - relationship_type: PRESIDES_OVER
    source_entity_type: JUDGE
    target_entity_type: COURT
    indicators:
      - "presiding"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relationships", "core.yaml"), []byte(content), 0o644))

	store, err := patternstore.New(dir)
	require.NoError(t, err)
	return store
}

func entity(id string, entityType model.EntityType, text string) model.Entity {
	return model.Entity{ID: id, EntityType: entityType, Text: text, CleanedText: text}
}

func TestEligibleTypes_FiltersOnPresentEntityTypes(t *testing.T) {
	store := storeWithRelationshipPatterns(t)
	entities := []model.Entity{
		entity("e1", model.EntityTypeAttorney, "Jane Roe"),
		entity("e2", model.EntityTypeParty, "Acme Corp"),
	}

	eligible := relationships.EligibleTypes(store, entities)

	var types []string
	for _, patterns := range eligible {
		for _, p := range patterns {
			types = append(types, p.RelationshipType)
		}
	}
	assert.Contains(t, types, "REPRESENTS")
	assert.NotContains(t, types, "PRESIDES_OVER")
}

func TestBuildPrompt_IncludesEntitiesAndEligibleTypes(t *testing.T) {
	store := storeWithRelationshipPatterns(t)
	entities := []model.Entity{
		entity("e1", model.EntityTypeAttorney, "Jane Roe"),
		entity("e2", model.EntityTypeParty, "Acme Corp"),
	}

	prompt, err := relationships.BuildPrompt(store, entities, "Jane Roe, counsel for Acme Corp, filed a motion.")

	require.NoError(t, err)
	assert.Contains(t, prompt, "REPRESENTS")
	assert.Contains(t, prompt, "Jane Roe")
	assert.NotContains(t, prompt, "PRESIDES_OVER")
}

func TestParseCandidates_DirectArray(t *testing.T) {
	candidates, err := relationships.ParseCandidates(`[{"relationship_type":"REPRESENTS","source_entity_id":"e1","target_entity_id":"e2","confidence":0.9,"evidence_text":"counsel for"}]`)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "REPRESENTS", candidates[0].RelationshipType)
}

func TestParseCandidates_WrappedObject(t *testing.T) {
	candidates, err := relationships.ParseCandidates(`{"relationships":[{"relationship_type":"REPRESENTS","source_entity_id":"e1","target_entity_id":"e2"}]}`)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
}

func TestParseCandidates_InvalidJSON(t *testing.T) {
	_, err := relationships.ParseCandidates("not json")
	require.Error(t, err)
}

func TestResolve_DropsOrphanIDs(t *testing.T) {
	entities := []model.Entity{entity("e1", model.EntityTypeAttorney, "Jane Roe"), entity("e2", model.EntityTypeParty, "Acme Corp")}
	candidates := []relationships.Candidate{
		{RelationshipType: "REPRESENTS", SourceEntityID: "e1", TargetEntityID: "e2", Confidence: 0.9},
		{RelationshipType: "REPRESENTS", SourceEntityID: "e1", TargetEntityID: "unknown", Confidence: 0.9},
	}

	resolved := relationships.Resolve(candidates, entities, relationships.Params{}, func() string { return "rel-id" })

	require.Len(t, resolved, 1)
	assert.Equal(t, "e2", resolved[0].TargetEntityID)
}

func TestResolve_AppliesConfidenceFloor(t *testing.T) {
	entities := []model.Entity{entity("e1", model.EntityTypeAttorney, "Jane Roe"), entity("e2", model.EntityTypeParty, "Acme Corp")}
	candidates := []relationships.Candidate{
		{RelationshipType: "REPRESENTS", SourceEntityID: "e1", TargetEntityID: "e2", Confidence: 0.3},
	}

	resolved := relationships.Resolve(candidates, entities, relationships.Params{ConfidenceFloor: 0.5}, func() string { return "rel-id" })

	assert.Empty(t, resolved)
}

func TestResolve_DedupesAndCapsAtMaxRelationships(t *testing.T) {
	entities := []model.Entity{entity("e1", model.EntityTypeAttorney, "Jane Roe"), entity("e2", model.EntityTypeParty, "Acme Corp"), entity("e3", model.EntityTypeParty, "Beta LLC")}
	candidates := []relationships.Candidate{
		{RelationshipType: "REPRESENTS", SourceEntityID: "e1", TargetEntityID: "e2", Confidence: 0.9},
		{RelationshipType: "REPRESENTS", SourceEntityID: "e1", TargetEntityID: "e2", Confidence: 0.9}, // duplicate
		{RelationshipType: "REPRESENTS", SourceEntityID: "e1", TargetEntityID: "e3", Confidence: 0.9},
	}

	resolved := relationships.Resolve(candidates, entities, relationships.Params{MaxRelationships: 1}, func() string { return "rel-id" })

	require.Len(t, resolved, 1)
}
