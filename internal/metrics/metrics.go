package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // UpstreamCalls counts calls to external providers by service and outcome
    UpstreamCalls = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "upstream_calls_total", Help: "Upstream provider calls by service and outcome."},
        []string{"service", "outcome"},
    )
    // UpstreamLatency tracks upstream call latencies in milliseconds
    UpstreamLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "upstream_latency_ms", Help: "Upstream call latency in ms.", Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}},
        []string{"service"},
    )
    // CacheLookups counts upstream response cache hits and misses
    CacheLookups = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "upstream_cache_lookups_total", Help: "Upstream cache lookups by service and result."},
        []string{"service", "result"},
    )
    // StateWrites counts account state writes by outcome (written, unchanged, conflict)
    StateWrites = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "account_state_writes_total", Help: "Account state read-modify-write outcomes."},
        []string{"outcome"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(UpstreamCalls)
        Registry.MustRegister(UpstreamLatency)
        Registry.MustRegister(CacheLookups)
        Registry.MustRegister(StateWrites)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
