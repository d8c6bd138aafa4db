package main

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

func TestCalculateEndpoint_ConcurrentRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping load test in short mode")
	}

	r := setupRouter(newTestServer(t, testOptions{storeRuns: true}))

	const workers = 20
	const perWorker = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations []time.Duration
		failures  int
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// distinct ids defeat the response cache
				req := sampleRequest(fmt.Sprintf("opp-%d-%d", worker, i))

				start := time.Now()
				resp := doJSON(r, http.MethodPost, "/attribution/b2b/calculate", "", req)
				elapsed := time.Since(start)

				mu.Lock()
				durations = append(durations, elapsed)
				if resp.Code != http.StatusOK {
					failures++
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Zero(t, failures)
	assert.Len(t, durations, workers*perWorker)

	p := calculatePercentiles(durations, 50, 95, 99)
	t.Logf("p50=%v p95=%v p99=%v", p[0], p[1], p[2])
	assert.Less(t, p[1], 2*time.Second, "p95 should stay well under two seconds")
}

func calculatePercentiles(durations []time.Duration, percentiles ...float64) []time.Duration {
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]time.Duration, len(percentiles))
	for i, p := range percentiles {
		idx := int(float64(len(sorted)-1) * p / 100)
		out[i] = sorted[idx]
	}
	return out
}

func BenchmarkCalculateEndpoint(b *testing.B) {
	r := setupRouter(newTestServer(b, testOptions{}))

	tps := make([]types.Touchpoint, 0, 50)
	for i := 0; i < 50; i++ {
		tps = append(tps, types.Touchpoint{
			ID:        fmt.Sprintf("tp-%d", i),
			AccountID: "acct-1",
			Timestamp: daysBefore(i * 3),
			Type:      types.AllTouchpointTypes[i%len(types.AllTouchpointTypes)],
			Channel:   fmt.Sprintf("channel-%d", i%5),
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := sampleRequest(fmt.Sprintf("opp-%d", i))
		req.Touchpoints = tps
		doJSON(r, http.MethodPost, "/attribution/b2b/calculate", "", req)
	}
}
