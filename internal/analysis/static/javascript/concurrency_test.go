package javascript

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// TestAnalyzer_ConcurrentStress runs a single shared Analyzer across many
// goroutines. Any state leaking between files shows up either as a race or as
// a result that does not match the file's known contents.
func TestAnalyzer_ConcurrentStress(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	analyzer := NewAnalyzer(logger, DefaultOptions())

	samples := []struct {
		code string
		risk schemas.RiskLevel
	}{
		{`fetch("/static/config.json");`, schemas.RiskLow},
		{`const q = location.search; fetch("/search" + q);`, schemas.RiskHigh},
		{`axios.post("/login", {user, pass});`, schemas.RiskMedium},
		{`const c = document.cookie; axios.put("/sync", {c});`, schemas.RiskHigh},
		{"const id = window.name; new WebSocket(`wss://h/${id}`);", schemas.RiskHigh},
		{`fetch(base + "/v1/items");`, schemas.RiskMedium},
	}

	concurrencyLevel := 50
	iterationsPerRoutine := 20

	var wg sync.WaitGroup
	errChan := make(chan error, concurrencyLevel*iterationsPerRoutine)
	start := time.Now()

	for i := 0; i < concurrencyLevel; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(workerID)))

			for j := 0; j < iterationsPerRoutine; j++ {
				sample := samples[r.Intn(len(samples))]
				fileName := fmt.Sprintf("worker_%d_iter_%d.js", workerID, j)

				result, err := analyzer.Analyze(context.Background(), schemas.ScriptSource{URL: fileName, Content: sample.code})
				if err != nil {
					errChan <- fmt.Errorf("worker %d failed on %s: %w", workerID, fileName, err)
					continue
				}
				if len(result.Endpoints) != 1 {
					errChan <- fmt.Errorf("worker %d expected 1 endpoint in %s, got %d", workerID, fileName, len(result.Endpoints))
					continue
				}
				ep := result.Endpoints[0]
				if ep.File != fileName {
					errChan <- fmt.Errorf("worker %d got endpoint for %s while analyzing %s", workerID, ep.File, fileName)
				}
				if ep.Risk != sample.risk {
					errChan <- fmt.Errorf("worker %d expected %s for %q, got %s", workerID, sample.risk, sample.code, ep.Risk)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errChan)
	t.Logf("Processed %d analyses in %v", concurrencyLevel*iterationsPerRoutine, time.Since(start))

	for err := range errChan {
		t.Error(err)
	}
}

// TestAnalyzer_FileIsolation verifies that a binding tainted in one file is
// unknown in the next.
func TestAnalyzer_FileIsolation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	analyzer := NewAnalyzer(logger, DefaultOptions())
	ctx := context.Background()

	_, err := analyzer.Analyze(ctx, schemas.ScriptSource{URL: "lib.js", Content: `var shared = location.hash;`})
	if err != nil {
		t.Fatal(err)
	}

	result, err := analyzer.Analyze(ctx, schemas.ScriptSource{URL: "app.js", Content: `fetch("/x/" + shared);`})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Endpoints) != 1 {
		t.Fatalf("Expected 1 endpoint, got %d", len(result.Endpoints))
	}
	if result.Endpoints[0].Risk != schemas.RiskMedium {
		t.Errorf("Isolation breach: taint from lib.js reached app.js (risk %s)", result.Endpoints[0].Risk)
	}
	if len(result.TaintedBindings) != 0 {
		t.Errorf("Expected no tainted bindings, got %v", result.TaintedBindings)
	}
}
