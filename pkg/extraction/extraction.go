// Package extraction is the public entry point for the extraction
// pipeline: Engine wires the pattern store (C1), pattern cache (C2), size
// detector (C3), document router (C4), LLM client (C5), throttled client
// (C6), and extraction orchestrator (C7/C8) into a single service, mirroring
// how pkg/prefetch's Detector composes its lower-level components into one
// caller-facing type.
package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/brianjwalters/lexorch/internal/config"
	"github.com/brianjwalters/lexorch/internal/llmclient"
	"github.com/brianjwalters/lexorch/internal/logging"
	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/brianjwalters/lexorch/internal/orchestrator"
	"github.com/brianjwalters/lexorch/internal/patterncache"
	"github.com/brianjwalters/lexorch/internal/patternstore"
	"github.com/brianjwalters/lexorch/internal/relationships"
	"github.com/brianjwalters/lexorch/internal/router"
	"github.com/brianjwalters/lexorch/internal/throttle"
	"github.com/google/uuid"
)

// Engine is a high-level service that coordinates pattern loading, routing,
// and wave execution for a single configured pipeline.
type Engine struct {
	store   *patternstore.Store
	cache   *patterncache.Cache
	router  *router.Router
	orch    *orchestrator.Orchestrator
	logger  *logging.Logger
	watcher *patternstore.Watcher
}

// New constructs an Engine from cfg: it loads the pattern store from disk,
// builds the pattern cache, router, LLM client, throttled client, and
// orchestrator, and wires them together. logger may be nil, in which case
// a test logger that records entries in memory is used.
func New(cfg config.Config, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.NewTestLogger().Logger
	}

	store, err := patternstore.New(cfg.PatternStore.Dir, patternstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("extraction: load pattern store: %w", err)
	}

	cache, err := patterncache.New(cfg.PatternCache.TTL.Duration(), cfg.PatternCache.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("extraction: construct pattern cache: %w", err)
	}

	rtr := router.New(router.Config{
		MaxContextLength: cfg.Routing.MaxContextLength,
		SafetyMargin:     cfg.Routing.SafetyMargin,
		CharsPerToken:    cfg.Routing.CharsPerToken,
	})

	llm := llmclient.New(cfg.LLM, logger)
	throttled := throttle.New(llm, cfg.Throttle, logger)

	orch := orchestrator.New(store, throttled, logger,
		orchestrator.WithRelationshipParams(relationships.Params{
			ConfidenceFloor: cfg.Orchestrator.MinRelationshipConfidence,
		}),
	)

	return &Engine{
		store:  store,
		cache:  cache,
		router: rtr,
		orch:   orch,
		logger: logger,
	}, nil
}

// Start begins background processing: if the pattern store was configured
// with live reload enabled, it starts watching the pattern directory for
// changes. Start is a no-op when live reload wasn't requested. It returns
// immediately; watching runs in a background goroutine until ctx is
// cancelled or Close is called.
func (e *Engine) Start(ctx context.Context, watchPatterns bool) error {
	if !watchPatterns {
		return nil
	}
	w, err := e.store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("extraction: start pattern watch: %w", err)
	}
	e.watcher = w
	return nil
}

// Close stops any running pattern watch. Safe to call even if Start was
// never called or watching was disabled.
func (e *Engine) Close() {
	if e.watcher != nil {
		e.watcher.Stop()
	}
}

// Route classifies text into a RoutingDecision without running any wave.
func (e *Engine) Route(text string, metadata map[string]any, opts router.Options) (model.RoutingDecision, error) {
	return e.router.Route(&text, metadata, opts)
}

// Extract routes text and then runs the resulting wave plan to completion,
// returning the assembled extraction result. documentID is opaque
// provenance carried into the result and every entity's provenance;
// relationships do not carry it. Callers that don't need one may pass an
// empty string, which is replaced by a generated UUID.
func (e *Engine) Extract(ctx context.Context, documentID, text string, metadata map[string]any, opts router.Options) (model.ExtractionResult, error) {
	decision, err := e.Route(text, metadata, opts)
	if err != nil {
		return model.ExtractionResult{}, err
	}
	if documentID == "" {
		documentID = uuid.NewString()
	}
	return e.orch.Execute(ctx, documentID, text, decision)
}

// ListEntityTypes returns every entity type the pattern store indexes,
// served from the pattern cache.
func (e *Engine) ListEntityTypes(context.Context) []model.EntityType {
	const method = "ListEntityTypes"
	key := patterncache.Key(method, hourBucket())
	if v, ok := e.cache.Get(method, key); ok {
		return v.([]model.EntityType)
	}
	types := e.store.GetEntityTypes()
	e.cache.Set(method, key, types)
	return types
}

// ListPatterns returns every loaded pattern with confidence >= minConfidence,
// served from the pattern cache.
func (e *Engine) ListPatterns(_ context.Context, minConfidence float64) []*model.Pattern {
	const method = "ListPatterns"
	key := patterncache.Key(method, hourBucket(), minConfidence)
	if v, ok := e.cache.Get(method, key); ok {
		return v.([]*model.Pattern)
	}
	patterns := e.store.GetPatternsByConfidence(minConfidence)
	e.cache.Set(method, key, patterns)
	return patterns
}

// ListRelationships returns every loaded relationship pattern, grouped by
// category, served from the pattern cache.
func (e *Engine) ListRelationships(context.Context) map[string][]model.RelationshipPattern {
	const method = "ListRelationships"
	key := patterncache.Key(method, hourBucket())
	if v, ok := e.cache.Get(method, key); ok {
		return v.(map[string][]model.RelationshipPattern)
	}
	patterns := e.store.GetRelationshipPatterns()
	e.cache.Set(method, key, patterns)
	return patterns
}

// CacheStatistics returns a point-in-time snapshot of pattern cache
// performance counters.
func (e *Engine) CacheStatistics(context.Context) patterncache.Snapshot {
	return e.cache.Metrics()
}

// CacheClear discards every cached read. Use after a pattern reload so
// introspection calls observe the new pattern set immediately instead of
// waiting out the cache TTL.
func (e *Engine) CacheClear(context.Context) {
	e.cache.Clear()
}

// ReloadPatterns re-reads the pattern store's configured directory and
// clears the pattern cache so subsequent reads observe the new patterns.
func (e *Engine) ReloadPatterns(context.Context) error {
	if err := e.store.Reload(); err != nil {
		return fmt.Errorf("extraction: reload patterns: %w", err)
	}
	e.cache.Clear()
	return nil
}

func hourBucket() int64 {
	return time.Now().Truncate(time.Hour).Unix()
}
