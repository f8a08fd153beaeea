package extraction_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brianjwalters/lexorch/internal/config"
	"github.com/brianjwalters/lexorch/internal/model"
	"github.com/brianjwalters/lexorch/internal/router"
	"github.com/brianjwalters/lexorch/pkg/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePatternFixture(t *testing.T, dir string) {
	t.Helper()
	content := `
courts:
  supreme_court:
    pattern: "Supreme Court"
    confidence: 0.95
    examples:
      - "the Supreme Court"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "core.yaml"), []byte(content), 0o644))
}

func testConfig(t *testing.T, llmURL string) config.Config {
	dir := t.TempDir()
	writePatternFixture(t, dir)

	return config.Config{
		PatternStore: config.PatternStoreConfig{Dir: dir},
		PatternCache: config.PatternCacheConfig{MaxEntries: 100},
		LLM: config.LLMConfig{
			BaseURL:    llmURL,
			Model:      "test-model",
			MaxRetries: 1,
		},
		Throttle: config.ThrottleConfig{
			MaxConcurrent:     2,
			RequestsPerMinute: 120,
		},
		Orchestrator: config.OrchestratorConfig{
			MinRelationshipConfidence: 0.5,
		},
	}
}

func entitiesResponseServer(t *testing.T, entities string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": entities}},
			},
		})
	}))
}

func TestEngine_RouteClassifiesVerySmallDocumentAsSinglePass(t *testing.T) {
	srv := entitiesResponseServer(t, `[]`)
	defer srv.Close()

	eng, err := extraction.New(testConfig(t, srv.URL), nil)
	require.NoError(t, err)

	decision, err := eng.Route(strings.Repeat("word ", 20), nil, router.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StrategySinglePass, decision.Strategy)
}

func TestEngine_ExtractRunsSinglePassAndReturnsEntities(t *testing.T) {
	srv := entitiesResponseServer(t, `[{"entity_type":"COURT","text":"Supreme Court","confidence":0.9,"start_position":0,"end_position":13}]`)
	defer srv.Close()

	eng, err := extraction.New(testConfig(t, srv.URL), nil)
	require.NoError(t, err)

	result, err := eng.Extract(context.Background(), "", strings.Repeat("word ", 20), nil, router.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StrategySinglePass, result.Strategy)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, model.EntityTypeCourt, result.Entities[0].EntityType)
}

func TestEngine_ExtractGeneratesDocumentIDWhenOmitted(t *testing.T) {
	srv := entitiesResponseServer(t, `[]`)
	defer srv.Close()

	eng, err := extraction.New(testConfig(t, srv.URL), nil)
	require.NoError(t, err)

	result, err := eng.Extract(context.Background(), "", strings.Repeat("word ", 20), nil, router.Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.DocumentID)
}

func TestEngine_ListEntityTypesIncludesPatternFixture(t *testing.T) {
	srv := entitiesResponseServer(t, `[]`)
	defer srv.Close()

	eng, err := extraction.New(testConfig(t, srv.URL), nil)
	require.NoError(t, err)

	types := eng.ListEntityTypes(context.Background())
	assert.Contains(t, types, model.EntityTypeCourt)

	// Second call should be served from cache and return the same data.
	again := eng.ListEntityTypes(context.Background())
	assert.Equal(t, types, again)
}

func TestEngine_ListPatternsRespectsConfidenceFloor(t *testing.T) {
	srv := entitiesResponseServer(t, `[]`)
	defer srv.Close()

	eng, err := extraction.New(testConfig(t, srv.URL), nil)
	require.NoError(t, err)

	patterns := eng.ListPatterns(context.Background(), 0.99)
	assert.Empty(t, patterns)

	patterns = eng.ListPatterns(context.Background(), 0.5)
	assert.NotEmpty(t, patterns)
}

func TestEngine_CacheClearAndStatistics(t *testing.T) {
	srv := entitiesResponseServer(t, `[]`)
	defer srv.Close()

	eng, err := extraction.New(testConfig(t, srv.URL), nil)
	require.NoError(t, err)

	eng.ListEntityTypes(context.Background())
	stats := eng.CacheStatistics(context.Background())
	assert.Equal(t, uint64(1), stats.Misses)

	eng.ListEntityTypes(context.Background())
	stats = eng.CacheStatistics(context.Background())
	assert.Equal(t, uint64(1), stats.Hits)

	eng.CacheClear(context.Background())
	stats = eng.CacheStatistics(context.Background())
	assert.Equal(t, 0, stats.CacheSize)
}

func TestEngine_ReloadPatternsPicksUpNewFile(t *testing.T) {
	srv := entitiesResponseServer(t, `[]`)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	eng, err := extraction.New(cfg, nil)
	require.NoError(t, err)

	before := eng.ListEntityTypes(context.Background())
	assert.NotContains(t, before, model.EntityTypeJudge)

	extra := `
judges:
  chief_justice:
    pattern: "Chief Justice"
    confidence: 0.9
`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PatternStore.Dir, "extra.yaml"), []byte(extra), 0o644))

	require.NoError(t, eng.ReloadPatterns(context.Background()))
	after := eng.ListEntityTypes(context.Background())
	assert.Contains(t, after, model.EntityTypeJudge)
}

func TestEngine_StartNoOpWithoutWatchEnabled(t *testing.T) {
	srv := entitiesResponseServer(t, `[]`)
	defer srv.Close()

	eng, err := extraction.New(testConfig(t, srv.URL), nil)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background(), false))
	eng.Close()
}
