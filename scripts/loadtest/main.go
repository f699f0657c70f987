// Loadtest is a concurrent HTTP load testing tool that measures throughput,
// latency percentiles, and per-endpoint distribution using the Routed-Url
// header set by the load balancer.
//
// Usage:
//
//	go run loadtest.go -url http://localhost:8080/work -concurrency 10 -requests 1000
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

type result struct {
	status    int
	latency   time.Duration
	routedURL string
	err       error
}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/", "load balancer URL to hit")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	requests := flag.Int("requests", 1000, "total number of requests")
	flag.Parse()

	jobs := make(chan int)
	results := make(chan result, *requests)

	var wg sync.WaitGroup
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 15 * time.Second}
			for range jobs {
				results <- doRequest(client, *targetURL)
			}
		}()
	}

	start := time.Now()
	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	close(results)
	elapsed := time.Since(start)

	var latencies []time.Duration
	byEndpoint := make(map[string]int)
	byStatus := make(map[int]int)
	errCount := 0

	for r := range results {
		if r.err != nil {
			errCount++
			continue
		}
		latencies = append(latencies, r.latency)
		byStatus[r.status]++
		if r.routedURL != "" {
			byEndpoint[r.routedURL]++
		}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Printf("requests: %d  errors: %d  elapsed: %s  rps: %.1f\n",
		*requests, errCount, elapsed.Round(time.Millisecond),
		float64(*requests)/elapsed.Seconds())

	if len(latencies) > 0 {
		fmt.Printf("latency p50=%s p90=%s p99=%s\n",
			pct(latencies, 0.50), pct(latencies, 0.90), pct(latencies, 0.99))
	}

	fmt.Println("status codes:")
	for code, n := range byStatus {
		fmt.Printf("  %d: %d\n", code, n)
	}

	fmt.Println("per-endpoint distribution (Routed-Url):")
	endpoints := make([]string, 0, len(byEndpoint))
	for ep := range byEndpoint {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)
	for _, ep := range endpoints {
		fmt.Printf("  %s: %d\n", ep, byEndpoint[ep])
	}

	if errCount > 0 {
		os.Exit(1)
	}
}

func doRequest(client *http.Client, url string) result {
	start := time.Now()
	resp, err := client.Get(url)
	if err != nil {
		return result{err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return result{
		status:    resp.StatusCode,
		latency:   time.Since(start),
		routedURL: resp.Header.Get("Routed-Url"),
	}
}

func pct(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx].Round(time.Millisecond)
}
