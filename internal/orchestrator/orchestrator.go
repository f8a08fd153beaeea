package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/brianjwalters/lexorch/internal/extractionerr"
	"github.com/brianjwalters/lexorch/internal/llmclient"
	"github.com/brianjwalters/lexorch/internal/logging"
	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/brianjwalters/lexorch/internal/patternstore"
	"github.com/brianjwalters/lexorch/internal/relationships"
	"github.com/brianjwalters/lexorch/internal/throttle"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/brianjwalters/lexorch/internal/orchestrator"

// generator is the subset of *throttle.Client the orchestrator calls;
// defined as an interface so tests can substitute a fake.
type generator interface {
	Generate(ctx context.Context, req llmclient.Request) (llmclient.Response, error)
}

// Orchestrator drives wave execution for a routed document.
type Orchestrator struct {
	store  *patternstore.Store
	client generator
	logger *logging.Logger
	tracer trace.Tracer

	baseRetryDelay time.Duration
	relationshipParams relationships.Params
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithBaseRetryDelay overrides the starting delay for a wave's exponential
// retry backoff. Defaults to 500ms.
func WithBaseRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.baseRetryDelay = d }
}

// WithRelationshipParams overrides the confidence floor and result cap
// applied to the relationship wave. Defaults to a zero floor and no cap.
func WithRelationshipParams(p relationships.Params) Option {
	return func(o *Orchestrator) { o.relationshipParams = p }
}

// New returns an Orchestrator backed by store and client. client's
// concrete type is *throttle.Client; tests substitute the unexported inner
// field with a fake generator.
func New(store *patternstore.Store, client *throttle.Client, logger *logging.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewTestLogger().Logger
	}
	o := &Orchestrator{
		store:          store,
		client:         client,
		logger:         logger,
		tracer:         otel.Tracer(instrumentationName),
		baseRetryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs the wave plan for routing.Strategy against text and returns
// the assembled extraction result. It never returns an error for
// individual wave failures; those are recorded in the result's statistics.
// It returns an error only for a strategy with no defined wave plan, or if
// the context is cancelled before any wave starts.
func (o *Orchestrator) Execute(ctx context.Context, documentID, text string, routing model.RoutingDecision) (model.ExtractionResult, error) {
	plan, err := BuildWavePlan(routing.Strategy)
	if err != nil {
		return model.ExtractionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.ExtractionResult{}, extractionerr.New(extractionerr.KindCancelled, err)
	}

	chunks := splitIntoChunks(text, routing.ChunkConfig)

	var allEntities []model.Entity
	var allRelationships []model.Relationship
	var waveStats []model.WaveStatistics
	var tokensUsed int
	var wavesFailed int

	for _, spec := range plan {
		if spec.IsRelationship {
			relEntities, _ := dedupeEntities(allEntities)
			stat, rels := o.runRelationshipWave(ctx, documentID, spec, relEntities, text)
			waveStats = append(waveStats, stat)
			tokensUsed += stat.TokensUsed
			if stat.Failed {
				wavesFailed++
			}
			allRelationships = append(allRelationships, rels...)
			continue
		}

		for _, chunk := range chunks {
			stat, entities := o.runEntityWave(ctx, documentID, chunk, spec)
			waveStats = append(waveStats, stat)
			tokensUsed += stat.TokensUsed
			if stat.Failed {
				wavesFailed++
			}
			allEntities = append(allEntities, entities...)
		}
	}

	// allRelationships is already orphan-dropped, floor-filtered, and
	// deduplicated by Resolve inside runRelationshipWave; only entities
	// need the cross-wave/cross-chunk dedup pass here.
	dedupedEntities, entitiesRemoved := dedupeEntities(allEntities)

	result := model.ExtractionResult{
		DocumentID:    documentID,
		Strategy:      routing.Strategy,
		WavesExecuted: len(waveStats),
		TokensUsed:    tokensUsed,
		Entities:      dedupedEntities,
		Relationships: allRelationships,
		Statistics: model.Statistics{
			DuplicatesRemoved: entitiesRemoved,
			WavesExecuted:     len(waveStats),
			WavesFailed:       wavesFailed,
			Waves:             waveStats,
			Partial:           wavesFailed > 0,
		},
	}
	return result, nil
}

// runEntityWave executes one entity wave against one chunk, retrying on
// retryable failures up to spec.RetryCount times with exponential backoff.
// A final failure is recorded in the returned statistics rather than
// propagated.
func (o *Orchestrator) runEntityWave(ctx context.Context, documentID string, chunk Chunk, spec WaveSpec) (model.WaveStatistics, []model.Entity) {
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("orchestrator.wave.%d", spec.WaveNumber))
	defer span.End()
	span.SetAttributes(
		attribute.Int("wave_number", spec.WaveNumber),
		attribute.String("chunk_id", chunk.ID),
		attribute.String("document_id", documentID),
	)

	start := time.Now()
	prompt := buildEntityPrompt(o.store, spec, chunk.Text, "")
	req := llmclient.Request{
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		MaxTokens:   spec.MaxTokens,
		Temperature: spec.Temperature,
		ExpectJSON:  true,
	}

	resp, retries, err := o.callWithRetry(ctx, req, spec.RetryCount)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.WaveStatistics{
			WaveNumber:    spec.WaveNumber,
			Duration:      elapsed,
			RetriesUsed:   retries,
			Failed:        true,
			FailureReason: err.Error(),
		}, nil
	}

	candidates, err := parseEntityCandidates(resp.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.WaveStatistics{
			WaveNumber:    spec.WaveNumber,
			TokensUsed:    resp.PromptTokens + resp.CompletionTokens,
			Duration:      elapsed,
			RetriesUsed:   retries,
			Failed:        true,
			FailureReason: err.Error(),
		}, nil
	}

	entities := make([]model.Entity, 0, len(candidates))
	for _, c := range candidates {
		entityType := o.store.CanonicalizeEntityType(c.EntityType)
		start := chunk.Offset + c.StartPosition
		end := chunk.Offset + c.EndPosition
		entities = append(entities, model.Entity{
			ID:                uuid.NewString(),
			EntityType:        entityType,
			Text:              c.Text,
			CleanedText:       c.Text,
			Confidence:        model.ClampConfidence(c.Confidence),
			Position:          model.Position{Start: start, End: end},
			ExtractionMethod:  fmt.Sprintf("wave_%d", spec.WaveNumber),
			Provenance: model.Provenance{
				WaveNumber: spec.WaveNumber,
				ChunkID:    chunk.ID,
				DocumentID: documentID,
			},
		})
	}

	span.SetAttributes(attribute.Int("entities_found", len(entities)))
	return model.WaveStatistics{
		WaveNumber:  spec.WaveNumber,
		EntitiesFound: len(entities),
		TokensUsed:  resp.PromptTokens + resp.CompletionTokens,
		Duration:    elapsed,
		RetriesUsed: retries,
	}, entities
}

// runRelationshipWave executes the relationship wave against the full set
// of deduplicated entities found so far. It drops relationships whose
// source or target entity id does not appear among entities.
func (o *Orchestrator) runRelationshipWave(ctx context.Context, documentID string, spec WaveSpec, entities []model.Entity, text string) (model.WaveStatistics, []model.Relationship) {
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("orchestrator.wave.%d", spec.WaveNumber))
	defer span.End()
	span.SetAttributes(attribute.Int("wave_number", spec.WaveNumber), attribute.String("document_id", documentID))

	start := time.Now()
	prompt, err := relationships.BuildPrompt(o.store, entities, boundedSnippet(text, wholeDocSnippetChars))
	if err != nil {
		span.RecordError(err)
		return model.WaveStatistics{WaveNumber: spec.WaveNumber, Failed: true, FailureReason: err.Error()}, nil
	}

	req := llmclient.Request{
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		MaxTokens:   spec.MaxTokens,
		Temperature: spec.Temperature,
		ExpectJSON:  true,
	}

	resp, retries, err := o.callWithRetry(ctx, req, spec.RetryCount)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.WaveStatistics{
			WaveNumber:    spec.WaveNumber,
			Duration:      elapsed,
			RetriesUsed:   retries,
			Failed:        true,
			FailureReason: err.Error(),
		}, nil
	}

	candidates, err := relationships.ParseCandidates(resp.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.WaveStatistics{
			WaveNumber:    spec.WaveNumber,
			TokensUsed:    resp.PromptTokens + resp.CompletionTokens,
			Duration:      elapsed,
			RetriesUsed:   retries,
			Failed:        true,
			FailureReason: err.Error(),
		}, nil
	}

	resolved := relationships.Resolve(candidates, entities, o.relationshipParams, uuid.NewString)

	span.SetAttributes(attribute.Int("relationships_found", len(resolved)))
	return model.WaveStatistics{
		WaveNumber:    spec.WaveNumber,
		EntitiesFound: len(resolved),
		TokensUsed:    resp.PromptTokens + resp.CompletionTokens,
		Duration:      elapsed,
		RetriesUsed:   retries,
	}, resolved
}

// callWithRetry issues req through the throttled client, retrying
// retryable failures with exponential backoff up to maxRetries additional
// attempts. It returns the number of retries actually used.
func (o *Orchestrator) callWithRetry(ctx context.Context, req llmclient.Request, maxRetries int) (llmclient.Response, int, error) {
	var lastErr error
	delay := o.baseRetryDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := o.client.Generate(ctx, req)
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err
		if !extractionerr.Retryable(extractionerr.KindOf(err)) {
			return llmclient.Response{}, attempt, err
		}
		if attempt == maxRetries {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return llmclient.Response{}, attempt, ctx.Err()
		}
		delay *= 2
	}
	return llmclient.Response{}, maxRetries, extractionerr.New(extractionerr.KindWaveFailure, lastErr)
}
