// Backend is a simple test HTTP server used for exercising the proxy.
// It echoes request details as JSON and supports runtime failure injection
// so rotation and demotion behavior can be observed.
//
// Usage:
//
//	go run backend.go -port 8081
//
// Toggle failure mode at runtime:
//
//	curl -X POST "http://localhost:8081/fail?enabled=true"
//
// While failing, every proxied request receives 503, which the load
// balancer counts toward rotation and eventual demotion.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
)

type echoResponse struct {
	Port   int    `json:"port"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   string `json:"body"`
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	flag.Parse()

	var failing atomic.Bool

	mux := http.NewServeMux()

	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		enabled := r.URL.Query().Get("enabled") == "true"
		failing.Store(enabled)
		log.Printf("failure mode: %v", enabled)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "failing=%v\n", enabled)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "injected failure", http.StatusServiceUnavailable)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		log.Printf("request: method=%s path=%s from=%s", r.Method, r.URL.Path, r.RemoteAddr)

		resp := echoResponse{
			Port:   *port,
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
		}

		b, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting backend on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
