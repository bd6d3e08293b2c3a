package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	baseURL      = "http://127.0.0.1:18080"
	numWorkers   = 50
	testDuration = 10 * time.Second
	numOwners    = 40
)

var sources = []string{"editor", "chat", "import", "manual"}

var lockCategories = []string{"style", "tone", "structure"}

var words = []string{
	"the", "project", "shipped", "late", "because", "we", "kept", "changing",
	"scope", "our", "team", "reviewed", "every", "draft", "before", "it",
	"went", "out", "nobody", "expected", "this", "much", "feedback", "however",
	"results", "improved", "quickly", "once", "process", "settled", "down",
	"consequently", "writing", "became", "consistent", "across", "channels",
}

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	latencies []time.Duration
}

func main() {
	fmt.Println("=== VFD Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s | Owners: %d\n\n", numWorkers, testDuration, numOwners)

	// Wait for server
	fmt.Print("Waiting for server... ")
	for i := 0; i < 30; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			break
		}
		if i == 29 {
			fmt.Println("FAILED: server not responding")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("OK")

	// Phase 1: Seed samples so fingerprints get auto-created
	fmt.Println("\n--- Phase 1: Seeding samples (POST /samples) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		return doPostSample(rng)
	})

	// Let the debounced pipeline drain and fingerprints compute
	fmt.Println("\nWaiting 2s for computation...")
	time.Sleep(2 * time.Second)

	// Phase 2: Mixed read/write load
	fmt.Println("\n--- Phase 2: Mixed load (60% POST, 40% GET) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.60:
			return doPostSample(rng)
		case r < 0.70:
			return doGetProfile(rng)
		case r < 0.78:
			return doGetTraits(rng)
		case r < 0.86:
			return doGetConstraints(rng)
		case r < 0.93:
			return doGetCoverage(rng)
		case r < 0.97:
			return doRecompute(rng)
		default:
			return doSetLock(rng)
		}
	})

	// Phase 3: Read-heavy load
	fmt.Println("\n--- Phase 3: Read-heavy load (10% POST, 90% GET) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.10:
			return doPostSample(rng)
		case r < 0.35:
			return doGetProfile(rng)
		case r < 0.50:
			return doGetList(rng)
		case r < 0.67:
			return doGetTraits(rng)
		case r < 0.84:
			return doGetConstraints(rng)
		default:
			return doGetCoverage(rng)
		}
	})
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	var totalOps atomic.Int64
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					r := workFn(rng)
					totalOps.Add(1)
					results <- r
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{}
				allResults[r.endpoint] = s
			}
			s.count++
			if r.err {
				s.errors++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-22s %8s %6s %10s %10s %10s %10s\n",
		"Endpoint", "Reqs", "Errs", "Avg", "P50", "P95", "P99")
	fmt.Println("  " + repeat("-", 88))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		avg := avgDuration(s.latencies)
		p50 := percentile(s.latencies, 0.50)
		p95 := percentile(s.latencies, 0.95)
		p99 := percentile(s.latencies, 0.99)

		fmt.Printf("  %-22s %8d %6d %10s %10s %10s %10s\n",
			ep, s.count, s.errors, fmtDur(avg), fmtDur(p50), fmtDur(p95), fmtDur(p99))
	}

	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + repeat("-", 88))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

func owner(rng *rand.Rand) string {
	return fmt.Sprintf("owner_%d", rng.Intn(numOwners))
}

// sampleText builds a text of a few random sentences so trait extraction
// sees realistic variation across samples.
func sampleText(rng *rand.Rand) string {
	nSentences := rng.Intn(4) + 2
	var sb strings.Builder
	for s := 0; s < nSentences; s++ {
		nWords := rng.Intn(12) + 4
		for w := 0; w < nWords; w++ {
			if w > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(words[rng.Intn(len(words))])
		}
		sb.WriteString(". ")
	}
	return sb.String()
}

func doRequest(method, endpoint, url string, body []byte, head string, okFn func(int) bool) result {
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, url, nil)
	}
	req.Header.Set("X-Owner-ID", head)

	start := time.Now()
	resp, err := httpClient.Do(req)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, resp.StatusCode, lat, !okFn(resp.StatusCode)}
}

func doPostSample(rng *rand.Rand) result {
	body, _ := json.Marshal(map[string]string{
		"text":   sampleText(rng),
		"source": sources[rng.Intn(len(sources))],
	})
	return doRequest(http.MethodPost, "POST /samples", baseURL+"/samples", body, owner(rng),
		func(code int) bool { return code == 201 })
}

func doGetProfile(rng *rand.Rand) result {
	return doRequest(http.MethodGet, "GET /profile", baseURL+"/profile", nil, owner(rng),
		func(code int) bool { return code == 200 })
}

// Owners still below the sample minimum have no trait set yet; 404 is a
// valid answer, not a failure.
func doGetList(rng *rand.Rand) result {
	return doRequest(http.MethodGet, "GET /list", baseURL+"/list", nil, owner(rng),
		func(code int) bool { return code == 200 })
}

func doGetTraits(rng *rand.Rand) result {
	return doRequest(http.MethodGet, "GET /traits", baseURL+"/traits", nil, owner(rng),
		func(code int) bool { return code == 200 || code == 404 })
}

func doGetConstraints(rng *rand.Rand) result {
	return doRequest(http.MethodGet, "GET /constraints", baseURL+"/constraints", nil, owner(rng),
		func(code int) bool { return code == 200 || code == 404 })
}

func doGetCoverage(rng *rand.Rand) result {
	return doRequest(http.MethodGet, "GET /coverage", baseURL+"/coverage", nil, owner(rng),
		func(code int) bool { return code == 200 })
}

// Concurrent recomputes race for the single computation slot, so conflict
// and not-ready answers are expected under load.
func doRecompute(rng *rand.Rand) result {
	return doRequest(http.MethodPost, "POST /recompute", baseURL+"/recompute", nil, owner(rng),
		func(code int) bool { return code == 200 || code == 404 || code == 409 || code == 422 })
}

func doSetLock(rng *rand.Rand) result {
	body, _ := json.Marshal(map[string]interface{}{
		"category": lockCategories[rng.Intn(len(lockCategories))],
		"enabled":  rng.Float64() < 0.5,
	})
	return doRequest(http.MethodPost, "POST /locks", baseURL+"/locks", body, owner(rng),
		func(code int) bool { return code == 200 })
}

func avgDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
