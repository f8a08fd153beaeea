package orchestrator

import (
	"fmt"

	"github.com/brianjwalters/lexorch/internal/extractionerr"
	"github.com/brianjwalters/lexorch/internal/model"
)

// WaveSpec describes one wave of a strategy's plan, per spec §4.7: its
// target entity-type set, the generation parameters to use, and how many
// times a failed call is retried before the wave is recorded as failed.
type WaveSpec struct {
	WaveNumber       int
	TargetTypes      []string
	MaxTokens        int
	Temperature      float64
	Priority         int
	RetryCount       int
	IsRelationship   bool
}

const (
	entityWaveMaxTokens       = 4096
	entityWaveTemperature     = 0.1
	relationshipWaveMaxTokens = 4096
	relationshipWaveTemp      = 0.2
	defaultRetryCount         = 2
)

var (
	coreTypes = []string{
		string(model.EntityTypeCourt), string(model.EntityTypeJudge),
		string(model.EntityTypeAttorney), string(model.EntityTypeParty),
		string(model.EntityTypeOrganization),
		string(model.CitationTypeCase), string(model.CitationTypeFederalCase),
		string(model.CitationTypeStateCase), string(model.CitationTypeStatute),
	}
	proceduralTypes = []string{
		string(model.EntityTypeDocument), string(model.EntityTypeMotion),
		string(model.EntityTypeBrief), string(model.EntityTypeOrder),
		string(model.EntityTypeJudgment), string(model.EntityTypeProceduralRule),
		string(model.CitationTypeRegulation), string(model.CitationTypeRules),
		string(model.CitationTypeConstitutional),
	}
	supportingTypes = []string{
		string(model.EntityTypeDate), string(model.EntityTypeMonetaryAmount),
		string(model.EntityTypeDistrict), string(model.EntityTypeJurisdiction),
		string(model.EntityTypeVenue), string(model.EntityTypeLocation),
		string(model.EntityTypeLegalConcept),
		string(model.CitationTypeSecondary), string(model.CitationTypeSignal),
		string(model.CitationTypePinpoint), string(model.CitationTypeCrossReference),
		string(model.CitationTypeLegal),
	}

	// singlePassTypes is the consolidated closed set used by SINGLE_PASS: a
	// representative subset of each wave's family rather than the full
	// ~29-type union, per spec §4.7's "~15 entity types".
	singlePassTypes = []string{
		string(model.EntityTypeCourt), string(model.EntityTypeJudge),
		string(model.EntityTypeAttorney), string(model.EntityTypeParty),
		string(model.EntityTypeOrganization), string(model.EntityTypeDocument),
		string(model.EntityTypeMotion), string(model.EntityTypeOrder),
		string(model.EntityTypeJudgment), string(model.EntityTypeDate),
		string(model.EntityTypeMonetaryAmount), string(model.EntityTypeDistrict),
		string(model.EntityTypeJurisdiction),
		string(model.CitationTypeCase), string(model.CitationTypeStatute),
	}
)

func entityWave(n int, types []string) WaveSpec {
	return WaveSpec{
		WaveNumber:  n,
		TargetTypes: types,
		MaxTokens:   entityWaveMaxTokens,
		Temperature: entityWaveTemperature,
		Priority:    n,
		RetryCount:  defaultRetryCount,
	}
}

func relationshipWave(n int) WaveSpec {
	return WaveSpec{
		WaveNumber:     n,
		MaxTokens:      relationshipWaveMaxTokens,
		Temperature:    relationshipWaveTemp,
		Priority:       n,
		RetryCount:     defaultRetryCount,
		IsRelationship: true,
	}
}

// BuildWavePlan returns the fixed sequence of waves for strategy, per spec
// §4.7. Terminal (non-processing) strategies produce an error: the caller
// should never reach wave planning for them.
func BuildWavePlan(strategy model.ProcessingStrategy) ([]WaveSpec, error) {
	switch strategy {
	case model.StrategySinglePass:
		return []WaveSpec{entityWave(1, singlePassTypes)}, nil

	case model.StrategyThreeWave, model.StrategyThreeWaveChunked:
		return []WaveSpec{
			entityWave(1, coreTypes),
			entityWave(2, proceduralTypes),
			entityWave(3, supportingTypes),
		}, nil

	case model.StrategyFourWave:
		return []WaveSpec{
			entityWave(1, coreTypes),
			entityWave(2, proceduralTypes),
			entityWave(3, supportingTypes),
			relationshipWave(4),
		}, nil

	case model.StrategyEightWaveFallback:
		return []WaveSpec{
			entityWave(1, []string{string(model.EntityTypeCourt), string(model.EntityTypeJudge)}),
			entityWave(2, []string{string(model.EntityTypeAttorney), string(model.EntityTypeParty)}),
			entityWave(3, []string{string(model.EntityTypeOrganization), string(model.EntityTypeDocument)}),
			entityWave(4, []string{string(model.EntityTypeMotion), string(model.EntityTypeBrief)}),
			entityWave(5, []string{string(model.EntityTypeOrder), string(model.EntityTypeJudgment), string(model.EntityTypeProceduralRule)}),
			entityWave(6, []string{string(model.EntityTypeDate), string(model.EntityTypeMonetaryAmount)}),
			entityWave(7, []string{string(model.EntityTypeJurisdiction), string(model.EntityTypeVenue), string(model.EntityTypeDistrict), string(model.EntityTypeLocation)}),
			entityWave(8, []string{
				string(model.CitationTypeCase), string(model.CitationTypeFederalCase), string(model.CitationTypeStateCase),
				string(model.CitationTypeStatute), string(model.CitationTypeRegulation), string(model.CitationTypeConstitutional),
				string(model.CitationTypeRules), string(model.CitationTypeSecondary), string(model.CitationTypeSignal),
				string(model.CitationTypePinpoint), string(model.CitationTypeCrossReference), string(model.CitationTypeLegal),
			}),
		}, nil

	default:
		return nil, extractionerr.New(extractionerr.KindInvalidInput, fmt.Errorf("no wave plan defined for strategy %q", strategy))
	}
}
