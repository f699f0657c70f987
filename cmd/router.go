package main

import (
	"net/http"

	"github.com/sardanna/roundrobin-lb/internal/dispatcher"
	"github.com/sardanna/roundrobin-lb/internal/metrics"
)

func setupRouter(disp *dispatcher.Dispatcher, metricsCollector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", disp.ServeHTTP)
	mux.HandleFunc("/metrics", metricsCollector.Handler())

	return mux
}
