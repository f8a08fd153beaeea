// Package router implements the Document Router (C4): a size- and
// content-aware decision engine that maps document text plus a handful of
// flags onto one of a small enumerated set of processing strategies, a
// chunking plan, and cost/duration/accuracy estimates.
package router

import (
	"fmt"

	"github.com/brianjwalters/lexorch/internal/extractionerr"
	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/brianjwalters/lexorch/internal/sizedetect"
)

// Fixed routing constants. These mirror the reference implementation's
// design-doc constants exactly; they are estimates used for routing, never
// for billing.
const (
	MaxContextLength = 32_768
	SafetyMargin     = 2_000

	singlePassPromptTokens = 5_000
	threeWavePromptTokens  = 17_500
	fourWavePromptTokens   = 45_000
	eightWavePromptTokens  = 26_900

	singlePassResponseTokens = 1_000
	threeWaveResponseTokens  = 4_096
	fourWaveResponseTokens   = 6_000
	eightWaveResponseTokens  = 8_000

	// DefaultChunkSize and DefaultOverlap are the default chunking
	// parameters, in tokens, for THREE_WAVE_CHUNKED plans.
	DefaultChunkSize = 8_000
	DefaultOverlap   = 500
	LargeDocOverlap  = 1_000

	// fourWaveCostPer1KTokens prices FOUR_WAVE's estimated_cost_usd; kept
	// distinct from sizedetect's own per-category cost constant, which
	// serves SizeInfo-level estimates rather than RoutingDecision ones.
	fourWaveCostPer1KTokens = 0.00075
)

// Options carries the routing flags accepted by Route, mirroring spec
// §4.4's `route(text, metadata, strategy_override?, extract_relationships?,
// graphrag_mode?)`.
type Options struct {
	StrategyOverride     string
	ExtractRelationships bool
	GraphRAGMode         bool
}

// Config holds the router's tunable knobs; zero-value fields fall back to
// the package's fixed defaults.
type Config struct {
	MaxContextLength int
	SafetyMargin     int
	CharsPerToken    float64
}

// Router maps (size, flags) to a RoutingDecision.
type Router struct {
	maxContext    int
	safetyMargin  int
	detector      *sizedetect.Detector
}

// New constructs a Router. A zero-value Config uses the package defaults.
func New(cfg Config) *Router {
	maxContext := cfg.MaxContextLength
	if maxContext <= 0 {
		maxContext = MaxContextLength
	}
	safetyMargin := cfg.SafetyMargin
	if safetyMargin < 0 {
		safetyMargin = SafetyMargin
	}
	detector := sizedetect.New()
	if cfg.CharsPerToken > 0 {
		detector = sizedetect.NewWithRatio(cfg.CharsPerToken)
	}
	return &Router{
		maxContext:   maxContext,
		safetyMargin: safetyMargin,
		detector:     detector,
	}
}

// Route implements spec §4.4's decision procedure, evaluated in the exact
// order specified. text is a pointer so a true nil document (distinct from
// an empty string) can be rejected per step 1.
func (r *Router) Route(text *string, metadata map[string]any, opts Options) (model.RoutingDecision, error) {
	if text == nil {
		return model.RoutingDecision{}, extractionerr.ErrNilDocument
	}
	doc := *text

	sizeInfo := r.detector.Detect(doc, metadata)

	if isBlank(doc) {
		return r.edgeCase(model.StrategyEmptyDocument, sizeInfo, 0, "Empty document - no extraction needed"), nil
	}
	if len(doc) < 50 {
		return r.edgeCase(model.StrategyTooSmall, sizeInfo, sizeInfo.Tokens, "Document too small (<50 chars) - likely fragment"), nil
	}
	if !isTextDocument(doc) {
		return r.edgeCase(model.StrategyInvalidDocument, sizeInfo, 0, "Document contains binary data or is malformed"), nil
	}

	if opts.GraphRAGMode {
		return r.routeFourWave(sizeInfo, true, false), nil
	}

	if opts.StrategyOverride != "" {
		return r.applyStrategyOverride(opts.StrategyOverride, sizeInfo), nil
	}

	if opts.ExtractRelationships && sizeInfo.Chars > 5_000 {
		return r.routeFourWave(sizeInfo, false, true), nil
	}
	if sizeInfo.Chars > 20_000 {
		return r.routeFourWave(sizeInfo, false, false), nil
	}

	switch sizeInfo.Category {
	case model.SizeCategoryVerySmall:
		return r.routeVerySmall(sizeInfo), nil
	case model.SizeCategorySmall:
		return r.routeSmall(sizeInfo), nil
	case model.SizeCategoryMedium:
		return r.routeMedium(sizeInfo), nil
	default:
		return r.routeLarge(sizeInfo), nil
	}
}

func (r *Router) edgeCase(strategy model.ProcessingStrategy, sizeInfo model.SizeInfo, tokens int, rationale string) model.RoutingDecision {
	return model.RoutingDecision{
		Strategy:         strategy,
		EstimatedTokens:  tokens,
		ExpectedAccuracy: 0.0,
		SizeInfo:         sizeInfo,
		Rationale:        rationale,
	}
}

// isBlank reports whether doc is empty or entirely whitespace.
func isBlank(doc string) bool {
	for _, r := range doc {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			continue
		default:
			return false
		}
	}
	return true
}

// isTextDocument reports false when more than 5% of the first 1000
// characters are non-printable control bytes, excluding \n, \r, \t.
func isTextDocument(doc string) bool {
	if doc == "" {
		return true
	}
	runes := []rune(doc)
	limit := len(runes)
	if limit > 1000 {
		limit = 1000
	}
	nonPrintable := 0
	for _, r := range runes[:limit] {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(limit) <= 0.05
}

func (r *Router) routeVerySmall(sizeInfo model.SizeInfo) model.RoutingDecision {
	estimatedTokens := singlePassPromptTokens + sizeInfo.Tokens + singlePassResponseTokens
	return model.RoutingDecision{
		Strategy:         model.StrategySinglePass,
		PromptVersion:    "single_pass_consolidated_v1",
		EstimatedTokens:  estimatedTokens,
		EstimatedDurationS: 0.5,
		EstimatedCostUSD:   0.0038,
		ExpectedAccuracy:   0.87,
		SizeInfo:           sizeInfo,
		Rationale:          "Very small document - single pass optimization for speed and cost",
	}
}

func (r *Router) routeSmall(sizeInfo model.SizeInfo) model.RoutingDecision {
	estimatedTokens := threeWavePromptTokens + sizeInfo.Tokens + threeWaveResponseTokens
	availableContext := r.maxContext - r.safetyMargin

	if estimatedTokens <= availableContext {
		return model.RoutingDecision{
			Strategy:           model.StrategyThreeWave,
			PromptVersion:      "three_wave_optimized_v1",
			EstimatedTokens:    estimatedTokens,
			EstimatedDurationS: 1.0,
			EstimatedCostUSD:   0.0159,
			ExpectedAccuracy:   0.90,
			SizeInfo:           sizeInfo,
			Rationale:          "Small document - 3-wave optimized extraction",
		}
	}

	numChunks := calculateNumChunks(sizeInfo.Tokens, DefaultChunkSize)
	return model.RoutingDecision{
		Strategy:      model.StrategyThreeWaveChunked,
		PromptVersion: "three_wave_optimized_v1",
		ChunkConfig: &model.ChunkConfig{
			Strategy:           model.ChunkStrategyExtraction,
			ChunkSizeTokens:    DefaultChunkSize,
			OverlapTokens:      DefaultOverlap,
			PreserveBoundaries: model.BoundaryParagraph,
		},
		EstimatedTokens:    estimatedTokens,
		EstimatedDurationS: float64(numChunks) * 0.85,
		EstimatedCostUSD:   float64(numChunks) * 0.0159,
		ExpectedAccuracy:   0.89,
		SizeInfo:           sizeInfo,
		Rationale:          "Small document near context limit - chunked 3-wave",
		NumChunks:          numChunks,
	}
}

func (r *Router) routeMedium(sizeInfo model.SizeInfo) model.RoutingDecision {
	numChunks := calculateNumChunks(sizeInfo.Tokens, DefaultChunkSize)
	return model.RoutingDecision{
		Strategy:      model.StrategyThreeWaveChunked,
		PromptVersion: "three_wave_optimized_v1",
		ChunkConfig: &model.ChunkConfig{
			Strategy:           model.ChunkStrategyExtraction,
			ChunkSizeTokens:    DefaultChunkSize,
			OverlapTokens:      DefaultOverlap,
			PreserveBoundaries: model.BoundaryParagraph,
		},
		EstimatedTokens:    sizeInfo.Tokens,
		EstimatedDurationS: float64(numChunks) * 0.85,
		EstimatedCostUSD:   float64(numChunks) * 0.0159,
		ExpectedAccuracy:   0.91,
		SizeInfo:           sizeInfo,
		Rationale:          fmt.Sprintf("Medium document - chunked 3-wave with deduplication (%d chunks)", numChunks),
		NumChunks:          numChunks,
	}
}

func (r *Router) routeLarge(sizeInfo model.SizeInfo) model.RoutingDecision {
	numChunks := calculateNumChunks(sizeInfo.Tokens, DefaultChunkSize)
	return model.RoutingDecision{
		Strategy:      model.StrategyThreeWaveChunked,
		PromptVersion: "three_wave_optimized_v1",
		ChunkConfig: &model.ChunkConfig{
			Strategy:           model.ChunkStrategyExtraction,
			ChunkSizeTokens:    DefaultChunkSize,
			OverlapTokens:      LargeDocOverlap,
			PreserveBoundaries: model.BoundarySection,
		},
		EstimatedTokens:    sizeInfo.Tokens,
		EstimatedDurationS: float64(numChunks) * 1.0,
		EstimatedCostUSD:   float64(numChunks) * 0.0159,
		ExpectedAccuracy:   0.92,
		SizeInfo:           sizeInfo,
		Rationale:          fmt.Sprintf("Large document - chunked 3-wave with section preservation (%d chunks)", numChunks),
		NumChunks:          numChunks,
	}
}

func (r *Router) routeFourWave(sizeInfo model.SizeInfo, graphragMode, explicitRelationships bool) model.RoutingDecision {
	estimatedTokens := fourWavePromptTokens + sizeInfo.Tokens + fourWaveResponseTokens

	var rationale string
	var estimatedDuration, expectedAccuracy float64
	switch {
	case graphragMode:
		rationale = "GraphRAG mode: full 4-wave extraction with relationships for knowledge graph"
		estimatedDuration = 180.0
		expectedAccuracy = 0.95
	case explicitRelationships:
		rationale = "Relationships requested: 4-wave extraction with entity relationships"
		estimatedDuration = 150.0
		expectedAccuracy = 0.92
	case sizeInfo.Chars > 20_000:
		rationale = "Large document: comprehensive 4-wave extraction with relationships"
		estimatedDuration = 200.0
		expectedAccuracy = 0.95
	default:
		rationale = "4-wave extraction with comprehensive entity coverage and relationships"
		estimatedDuration = 150.0
		expectedAccuracy = 0.92
	}

	estimatedCost := (float64(estimatedTokens) / 1000) * fourWaveCostPer1KTokens

	return model.RoutingDecision{
		Strategy:             model.StrategyFourWave,
		PromptVersion:        "four_wave_optimized_v1",
		EstimatedTokens:      estimatedTokens,
		EstimatedDurationS:   estimatedDuration,
		EstimatedCostUSD:     estimatedCost,
		ExpectedAccuracy:     expectedAccuracy,
		SizeInfo:             sizeInfo,
		Rationale:            rationale,
		ExtractRelationships: true,
	}
}

// calculateNumChunks computes the chunk count for a chunked plan. Per
// DESIGN.md's resolved Open Question, the divisor always subtracts
// DefaultOverlap, even for large-document plans whose ChunkConfig carries
// LargeDocOverlap instead — this preserves the reference implementation's
// literal (if inconsistent) formula rather than silently correcting it.
func calculateNumChunks(totalTokens, chunkSize int) int {
	if totalTokens <= chunkSize {
		return 1
	}
	effectiveChunkSize := chunkSize - DefaultOverlap
	return totalTokens/effectiveChunkSize + 1
}

// applyStrategyOverride honours an explicit strategy name, falling back to
// normal size-category routing when the name is unrecognised.
func (r *Router) applyStrategyOverride(strategy string, sizeInfo model.SizeInfo) model.RoutingDecision {
	normalizeFallback := func() model.RoutingDecision {
		switch sizeInfo.Category {
		case model.SizeCategoryVerySmall:
			return r.routeVerySmall(sizeInfo)
		case model.SizeCategorySmall:
			return r.routeSmall(sizeInfo)
		case model.SizeCategoryMedium:
			return r.routeMedium(sizeInfo)
		default:
			return r.routeLarge(sizeInfo)
		}
	}

	switch model.ProcessingStrategy(strategy) {
	case model.StrategySinglePass:
		return r.routeVerySmall(sizeInfo)
	case model.StrategyThreeWave:
		d := r.routeSmall(sizeInfo)
		d.Rationale += " (manual override)"
		return d
	case model.StrategyFourWave:
		d := r.routeFourWave(sizeInfo, false, true)
		d.Rationale += " (manual override)"
		return d
	case model.StrategyThreeWaveChunked:
		var d model.RoutingDecision
		if sizeInfo.Category == model.SizeCategoryMedium || sizeInfo.Category == model.SizeCategoryLarge {
			d = r.routeMedium(sizeInfo)
		} else {
			d = r.routeSmall(sizeInfo)
		}
		d.Rationale += " (manual override)"
		return d
	case model.StrategyEightWaveFallback:
		return model.RoutingDecision{
			Strategy:           model.StrategyEightWaveFallback,
			PromptVersion:      "eight_wave_multipass_v2",
			EstimatedTokens:    eightWavePromptTokens + sizeInfo.Tokens,
			EstimatedDurationS: 2.0,
			EstimatedCostUSD:   0.0254,
			ExpectedAccuracy:   0.93,
			SizeInfo:           sizeInfo,
			Rationale:          "8-wave fallback (manual override for maximum accuracy)",
		}
	default:
		return normalizeFallback()
	}
}

// ValidateDecision performs sanity checks on a RoutingDecision, per spec
// §4.4's warning thresholds. It never mutates the decision.
func (r *Router) ValidateDecision(d model.RoutingDecision) (ok bool, warnings []string) {
	if d.EstimatedTokens > r.maxContext {
		warnings = append(warnings, fmt.Sprintf(
			"estimated tokens (%d) exceed context limit (%d)", d.EstimatedTokens, r.maxContext))
	}
	if d.EstimatedCostUSD > 1.0 {
		warnings = append(warnings, fmt.Sprintf(
			"estimated cost ($%.2f) is very high", d.EstimatedCostUSD))
	}
	if d.EstimatedDurationS > 60.0 {
		warnings = append(warnings, fmt.Sprintf(
			"estimated duration (%.1fs) is very long", d.EstimatedDurationS))
	}
	if d.EstimatedTokens == 0 &&
		d.Strategy != model.StrategyEmptyDocument &&
		d.Strategy != model.StrategyInvalidDocument &&
		d.Strategy != model.StrategyTooSmall {
		warnings = append(warnings, "zero estimated tokens for non-edge-case strategy")
	}
	return len(warnings) == 0, warnings
}
