package orchestrator

import (
	"testing"

	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeEntities_DropsExactRepeat(t *testing.T) {
	entities := []model.Entity{
		{EntityType: model.EntityTypeCourt, Text: "Supreme Court", Position: model.Position{Start: 0}},
		{EntityType: model.EntityTypeCourt, Text: "Supreme Court", Position: model.Position{Start: 0}},
	}

	deduped, removed := dedupeEntities(entities)

	require.Len(t, deduped, 1)
	assert.Equal(t, 1, removed)
}

func TestDedupeEntities_KeepsDistinctPositionsAndTypes(t *testing.T) {
	entities := []model.Entity{
		{EntityType: model.EntityTypeCourt, Text: "Supreme Court", Position: model.Position{Start: 0}},
		{EntityType: model.EntityTypeCourt, Text: "Supreme Court", Position: model.Position{Start: 50}},
		{EntityType: model.EntityTypeOrganization, Text: "Supreme Court", Position: model.Position{Start: 0}},
	}

	deduped, removed := dedupeEntities(entities)

	assert.Len(t, deduped, 3)
	assert.Equal(t, 0, removed)
}

func TestDedupeEntities_PrefersFirstSeen(t *testing.T) {
	first := model.Entity{ID: "first", EntityType: model.EntityTypeJudge, Text: "J. Lee", Position: model.Position{Start: 5}}
	second := model.Entity{ID: "second", EntityType: model.EntityTypeJudge, Text: "J. Lee", Position: model.Position{Start: 5}}

	deduped, _ := dedupeEntities([]model.Entity{first, second})

	require.Len(t, deduped, 1)
	assert.Equal(t, "first", deduped[0].ID)
}
