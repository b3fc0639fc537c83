package mcp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
)

// -- Test Fakes --

type fakeHarvester struct {
	mu      sync.Mutex
	sources []schemas.ScriptSource
	err     error
	lastURL string
}

func (f *fakeHarvester) Harvest(_ context.Context, pageURL string) ([]schemas.ScriptSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastURL = pageURL
	return f.sources, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	persisted map[string]*schemas.AnalysisReport
	endpoints []schemas.Endpoint
	queryErr  error
	lastRisk  schemas.RiskLevel
}

func (f *fakeStore) PersistReport(_ context.Context, runID string, report *schemas.AnalysisReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persisted == nil {
		f.persisted = map[string]*schemas.AnalysisReport{}
	}
	f.persisted[runID] = report
	return nil
}

func (f *fakeStore) GetEndpoints(_ context.Context, _ string, risk schemas.RiskLevel) ([]schemas.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRisk = risk
	return f.endpoints, f.queryErr
}

// -- Test Helpers --

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.EngineCfg.WorkerConcurrency = 2
	cfg.ServerCfg.RateLimit = 0
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, store EndpointStore, harvester PageHarvester) *httptest.Server {
	t.Helper()
	srv := NewServer(cfg, zaptest.NewLogger(t), store, harvester)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func sendCommand(t *testing.T, ts *httptest.Server, command string, params map[string]any) (int, CommandResponse) {
	t.Helper()
	body, err := json.Marshal(CommandRequest{Command: command, Params: params})
	require.NoError(t, err)
	return post(t, ts, body)
}

func post(t *testing.T, ts *httptest.Server, body []byte) (int, CommandResponse) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/command", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// dataMap returns the response data as a generic object.
func dataMap(t *testing.T, resp CommandResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "expected object data, got %T", resp.Data)
	return m
}

func endpointURLs(t *testing.T, report map[string]any) []string {
	t.Helper()
	raw, _ := report["apiEndpoints"].([]any)
	var urls []string
	for _, ep := range raw {
		urls = append(urls, ep.(map[string]any)["url"].(string))
	}
	return urls
}

// -- Test Cases --

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	// Issue a command so the counter has a sample.
	sendCommand(t, ts, CommandPing, nil)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "jsrecon_commands_total")
}

func TestHandleCommand_Basics(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)

	t.Run("ping", func(t *testing.T) {
		status, resp := sendCommand(t, ts, "PING", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "success", resp.Status)
		assert.Equal(t, "pong", dataMap(t, resp)["message"])
	})

	t.Run("unknown command", func(t *testing.T) {
		status, resp := sendCommand(t, ts, "start_scan", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "error", resp.Status)
		assert.Contains(t, resp.Error, "Unknown command")
	})

	t.Run("invalid body", func(t *testing.T) {
		status, resp := post(t, ts, []byte("{not json"))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, resp.Error, "Invalid request body")
	})
}

func TestAnalyzeScripts(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)

	t.Run("analyzes in-memory scripts", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandAnalyzeScripts, map[string]any{
			"scripts": []map[string]any{
				{"url": "search.js", "content": `const q = location.search; fetch("/search?q=" + q)`},
				{"url": "page.html#script-1", "content": `axios.get("/inline")`, "type": "inline"},
			},
		})
		require.Equal(t, http.StatusOK, status, resp.Error)
		report := dataMap(t, resp)
		assert.Equal(t, []string{"/search?q=$q", "/inline"}, endpointURLs(t, report))

		summary := report["summary"].(map[string]any)
		assert.EqualValues(t, 2, summary["analyzedFiles"])
		assert.NotEmpty(t, report["requestSpecs"])
	})

	t.Run("option overrides apply per command", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandAnalyzeScripts, map[string]any{
			"scripts": []map[string]any{{"url": "a.js", "content": `fetch("/a")`}},
			"options": map[string]any{"generate_request_specs": false},
		})
		require.Equal(t, http.StatusOK, status, resp.Error)
		report := dataMap(t, resp)
		assert.Equal(t, []string{"/a"}, endpointURLs(t, report))
		assert.Empty(t, report["requestSpecs"])
	})

	t.Run("parse failures are reported, not fatal", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandAnalyzeScripts, map[string]any{
			"scripts": []map[string]any{{"url": "broken.js", "content": "const s = \"unterminated;\nfetch('/x');"}},
		})
		require.Equal(t, http.StatusOK, status, resp.Error)
		errs := dataMap(t, resp)["errors"].([]any)
		require.Len(t, errs, 1)
		assert.Equal(t, "parse_error", errs[0].(map[string]any)["kind"])
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandAnalyzeScripts, map[string]any{"scripts": []any{}})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, resp.Error, "At least one script")

		status, resp = sendCommand(t, ts, CommandAnalyzeScripts, map[string]any{
			"scripts": []map[string]any{{"url": "a.js", "content": "", "type": "worker"}},
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, resp.Error, "invalid script type")

		status, _ = sendCommand(t, ts, CommandAnalyzeScripts, map[string]any{
			"scripts": []map[string]any{{"content": "fetch('/a')"}},
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestAnalyzeDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte(`fetch("/api/items")`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "vendor", "lib.js"), []byte(`fetch("/vendor")`), 0o644))

	cfg := testConfig()
	cfg.ServerCfg.AllowedRoots = []string{root}
	store := &fakeStore{}
	ts := newTestServer(t, cfg, store, nil)

	t.Run("analyzes an allowed directory", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandAnalyzeDirectory, map[string]any{
			"path":    root,
			"exclude": []string{"**/vendor/**"},
		})
		require.Equal(t, http.StatusOK, status, resp.Error)
		assert.Equal(t, []string{"/api/items"}, endpointURLs(t, dataMap(t, resp)))
	})

	t.Run("persists when asked", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandAnalyzeDirectory, map[string]any{"path": root, "persist": true})
		require.Equal(t, http.StatusOK, status, resp.Error)
		runID, _ := dataMap(t, resp)["run_id"].(string)
		require.NotEmpty(t, runID)

		store.mu.Lock()
		defer store.mu.Unlock()
		require.Contains(t, store.persisted, runID)
		assert.Equal(t, 2, store.persisted[runID].Summary.APIEndpoints)
	})

	t.Run("rejects paths outside the allowed roots", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandAnalyzeDirectory, map[string]any{"path": t.TempDir()})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Contains(t, resp.Error, "outside the allowed roots")
	})

	t.Run("requires a path", func(t *testing.T) {
		status, _ := sendCommand(t, ts, CommandAnalyzeDirectory, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestHarvestPage(t *testing.T) {
	t.Run("unavailable without a browser", func(t *testing.T) {
		ts := newTestServer(t, testConfig(), nil, nil)
		status, resp := sendCommand(t, ts, CommandHarvestPage, map[string]any{"url": "https://example.com"})
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Contains(t, resp.Error, "no browser configured")
	})

	harvester := &fakeHarvester{sources: []schemas.ScriptSource{
		{URL: "https://example.com/#script-1", Content: `fetch("/late")`, Type: schemas.ScriptInline},
	}}
	ts := newTestServer(t, testConfig(), nil, harvester)

	t.Run("returns harvested scripts", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandHarvestPage, map[string]any{"url": "https://example.com"})
		require.Equal(t, http.StatusOK, status, resp.Error)
		assert.EqualValues(t, 1, dataMap(t, resp)["count"])
		harvester.mu.Lock()
		defer harvester.mu.Unlock()
		assert.Equal(t, "https://example.com", harvester.lastURL)
	})

	t.Run("analyzes harvested scripts", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandHarvestPage, map[string]any{"url": "https://example.com", "analyze": true})
		require.Equal(t, http.StatusOK, status, resp.Error)
		assert.Equal(t, []string{"/late"}, endpointURLs(t, dataMap(t, resp)))
	})

	t.Run("surfaces browser failures", func(t *testing.T) {
		failing := newTestServer(t, testConfig(), nil, &fakeHarvester{err: errors.New("navigation failed")})
		status, resp := sendCommand(t, failing, CommandHarvestPage, map[string]any{"url": "https://example.com"})
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Contains(t, resp.Error, "navigation failed")
	})
}

func TestQueryEndpoints(t *testing.T) {
	t.Run("unavailable without a store", func(t *testing.T) {
		ts := newTestServer(t, testConfig(), nil, nil)
		status, _ := sendCommand(t, ts, CommandQueryEndpoints, map[string]any{"run_id": "r"})
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	store := &fakeStore{endpoints: []schemas.Endpoint{
		{File: "a.js", Line: 1, URL: "/a", Risk: schemas.RiskHigh},
		{File: "b.js", Line: 2, URL: "/b", Risk: schemas.RiskHigh},
	}}
	ts := newTestServer(t, testConfig(), store, nil)

	t.Run("filters by risk case-insensitively and applies the limit", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandQueryEndpoints, map[string]any{"run_id": "run-1", "risk": "high", "limit": 1})
		require.Equal(t, http.StatusOK, status, resp.Error)
		assert.EqualValues(t, 1, dataMap(t, resp)["count"])
		store.mu.Lock()
		defer store.mu.Unlock()
		assert.Equal(t, schemas.RiskHigh, store.lastRisk)
	})

	t.Run("rejects invalid parameters", func(t *testing.T) {
		status, resp := sendCommand(t, ts, CommandQueryEndpoints, map[string]any{"run_id": "run-1", "risk": "critical"})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, resp.Error, "invalid risk level")

		status, _ = sendCommand(t, ts, CommandQueryEndpoints, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("hides store errors", func(t *testing.T) {
		failing := newTestServer(t, testConfig(), &fakeStore{queryErr: errors.New("connection reset")}, nil)
		status, resp := sendCommand(t, failing, CommandQueryEndpoints, map[string]any{"run_id": "run-1"})
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.NotContains(t, resp.Error, "connection reset")
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ServerCfg.RateLimit = 0.001
	cfg.ServerCfg.Burst = 1
	ts := newTestServer(t, cfg, nil, nil)

	status, _ := sendCommand(t, ts, CommandPing, nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp := sendCommand(t, ts, CommandPing, nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "error", resp.Status)

	// The health check is not rate limited.
	hresp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	hresp.Body.Close()
	assert.Equal(t, http.StatusOK, hresp.StatusCode)
}

func TestCrossOriginRequests(t *testing.T) {
	cfg := testConfig()
	cfg.ServerCfg.AllowedOrigins = []string{"http://localhost:3000/"}
	ts := newTestServer(t, cfg, nil, nil)

	do := func(t *testing.T, method, origin string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, ts.URL+"/api/v1/command", bytes.NewReader([]byte(`{"command":"ping"}`)))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if method == http.MethodOptions {
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("preflight from an unknown origin is refused", func(t *testing.T) {
		resp := do(t, http.MethodOptions, "https://evil.example")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("command from an unknown origin is refused", func(t *testing.T) {
		resp := do(t, http.MethodPost, "https://evil.example")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("configured origin is echoed back", func(t *testing.T) {
		resp := do(t, http.MethodOptions, "http://localhost:3000")
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

		resp = do(t, http.MethodPost, "http://localhost:3000")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("requests without an origin are unaffected", func(t *testing.T) {
		resp := do(t, http.MethodPost, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestAnalyzeDirectory_DefaultRootIsWorkingDirectory(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)
	status, resp := sendCommand(t, ts, CommandAnalyzeDirectory, map[string]any{"path": filepath.Dir(t.TempDir())})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, resp.Error, "outside the allowed roots")
}

func TestWithinRoots(t *testing.T) {
	root := t.TempDir()
	assert.True(t, withinRoots(root, nil))
	assert.True(t, withinRoots(root, []string{root}))
	assert.True(t, withinRoots(filepath.Join(root, "a", "b"), []string{root}))
	assert.False(t, withinRoots(filepath.Dir(root), []string{root}))
	assert.False(t, withinRoots(root+"-sibling", []string{root}))
	assert.False(t, withinRoots(filepath.Join(root, "..", "x"), []string{root}))
	assert.True(t, withinRoots(filepath.Join(root, "..x"), []string{root}), "a name starting with dots is still inside")
}

func TestServerStart_ShutsDownOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.ServerCfg.Port = 0
	srv := NewServer(cfg, zaptest.NewLogger(t), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}
