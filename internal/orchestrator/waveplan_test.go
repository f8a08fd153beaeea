package orchestrator

import (
	"testing"

	"github.com/brianjwalters/lexorch/internal/extractionerr"
	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWavePlan_SinglePass(t *testing.T) {
	plan, err := BuildWavePlan(model.StrategySinglePass)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.False(t, plan[0].IsRelationship)
	assert.NotEmpty(t, plan[0].TargetTypes)
}

func TestBuildWavePlan_ThreeWave(t *testing.T) {
	plan, err := BuildWavePlan(model.StrategyThreeWave)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	for i, w := range plan {
		assert.Equal(t, i+1, w.WaveNumber)
		assert.False(t, w.IsRelationship)
	}
}

func TestBuildWavePlan_FourWaveEndsWithRelationshipWave(t *testing.T) {
	plan, err := BuildWavePlan(model.StrategyFourWave)
	require.NoError(t, err)
	require.Len(t, plan, 4)
	assert.True(t, plan[3].IsRelationship)
	assert.Empty(t, plan[3].TargetTypes)
}

func TestBuildWavePlan_EightWaveFallbackCoversAllEntityAndCitationTypes(t *testing.T) {
	plan, err := BuildWavePlan(model.StrategyEightWaveFallback)
	require.NoError(t, err)
	require.Len(t, plan, 8)

	seen := map[string]struct{}{}
	for _, w := range plan {
		for _, typ := range w.TargetTypes {
			seen[typ] = struct{}{}
		}
	}
	for _, typ := range []string{
		string(model.EntityTypeCourt), string(model.EntityTypeJudge), string(model.EntityTypeAttorney),
		string(model.EntityTypeParty), string(model.EntityTypeOrganization), string(model.EntityTypeDocument),
		string(model.EntityTypeMotion), string(model.EntityTypeBrief), string(model.EntityTypeOrder),
		string(model.EntityTypeJudgment), string(model.EntityTypeProceduralRule), string(model.EntityTypeDate),
		string(model.EntityTypeMonetaryAmount), string(model.EntityTypeJurisdiction), string(model.EntityTypeVenue),
		string(model.EntityTypeDistrict), string(model.EntityTypeLocation), string(model.CitationTypeCase),
	} {
		assert.Contains(t, seen, typ, "entity type %s should be covered by the fallback plan", typ)
	}
}

func TestBuildWavePlan_UnknownStrategy(t *testing.T) {
	_, err := BuildWavePlan(model.StrategyTooSmall)
	require.Error(t, err)
	assert.Equal(t, extractionerr.KindInvalidInput, extractionerr.KindOf(err))
}
