package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brianjwalters/lexorch/internal/config"
	"github.com/brianjwalters/lexorch/pkg/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

func llmServer(t *testing.T, entities string) *httptest.Server {
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

func setupTestServer(t *testing.T, llmURL string) *Server {
	t.Helper()
	dir := t.TempDir()
	writePatternFixture(t, dir)

	cfg := config.Config{
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

	eng, err := extraction.New(cfg, nil)
	require.NoError(t, err)

	server, err := NewServer(eng, zap.NewNop(), &Config{Host: "localhost", Port: 9090})
	require.NoError(t, err)
	return server
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		srv := llmServer(t, `[]`)
		defer srv.Close()

		cfg := &Config{Host: "localhost", Port: 9090}
		server := setupTestServer(t, srv.URL)
		assert.NotNil(t, server.echo)
		_ = cfg
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		srv := llmServer(t, `[]`)
		defer srv.Close()

		dir := t.TempDir()
		writePatternFixture(t, dir)
		eng, err := extraction.New(config.Config{
			PatternStore: config.PatternStoreConfig{Dir: dir},
			PatternCache: config.PatternCacheConfig{MaxEntries: 100},
			LLM:          config.LLMConfig{BaseURL: srv.URL, Model: "test-model", MaxRetries: 1},
			Throttle:     config.ThrottleConfig{MaxConcurrent: 2, RequestsPerMinute: 120},
		}, nil)
		require.NoError(t, err)

		server, err := NewServer(eng, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9090, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		srv := llmServer(t, `[]`)
		defer srv.Close()
		server := setupTestServer(t, srv.URL)

		_, err := NewServer(server.engine, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when engine is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "engine cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	srv := llmServer(t, `[]`)
	defer srv.Close()
	server := setupTestServer(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleRoute(t *testing.T) {
	srv := llmServer(t, `[]`)
	defer srv.Close()
	server := setupTestServer(t, srv.URL)

	body, err := json.Marshal(RouteRequest{Text: strings.Repeat("word ", 20)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/route", bytes.NewReader(body))
	req.Header.Set(echoContentType, echoJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SINGLE_PASS")
}

func TestHandleRoute_RejectsEmptyText(t *testing.T) {
	srv := llmServer(t, `[]`)
	defer srv.Close()
	server := setupTestServer(t, srv.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/route", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(echoContentType, echoJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExtract(t *testing.T) {
	srv := llmServer(t, `[{"entity_type":"COURT","text":"Supreme Court","confidence":0.9,"start_position":0,"end_position":13}]`)
	defer srv.Close()
	server := setupTestServer(t, srv.URL)

	body, err := json.Marshal(RouteRequest{Text: strings.Repeat("word ", 20)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", bytes.NewReader(body))
	req.Header.Set(echoContentType, echoJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Supreme Court")
}

func TestHandleListEntityTypes(t *testing.T) {
	srv := llmServer(t, `[]`)
	defer srv.Close()
	server := setupTestServer(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entity-types", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "COURT")
}

func TestHandleListPatterns_RejectsInvalidConfidence(t *testing.T) {
	srv := llmServer(t, `[]`)
	defer srv.Close()
	server := setupTestServer(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patterns?min_confidence=2.0", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCacheLifecycle(t *testing.T) {
	srv := llmServer(t, `[]`)
	defer srv.Close()
	server := setupTestServer(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entity-types", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	statsReq := httptest.NewRequest(http.MethodGet, "/api/v1/cache", nil)
	statsRec := httptest.NewRecorder()
	server.echo.ServeHTTP(statsRec, statsReq)
	assert.Equal(t, http.StatusOK, statsRec.Code)

	clearReq := httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil)
	clearRec := httptest.NewRecorder()
	server.echo.ServeHTTP(clearRec, clearReq)
	assert.Equal(t, http.StatusNoContent, clearRec.Code)
}

func TestHandleReloadPatterns(t *testing.T) {
	srv := llmServer(t, `[]`)
	defer srv.Close()
	server := setupTestServer(t, srv.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patterns/reload", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

const (
	echoContentType = "Content-Type"
	echoJSON        = "application/json"
)
