package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "time"

    "go.uber.org/zap"

    "prospector/internal/metrics"
)

// statusRecorder captures the response status for logging and metrics while
// still exposing the streaming interfaces of the wrapped writer.
type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    if r.status == 0 { r.status = code }
    r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
    if r.status == 0 { r.status = http.StatusOK }
    return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    if r.status == 0 { r.status = http.StatusSwitchingProtocols }
    return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) code() int {
    if r.status == 0 { return http.StatusOK }
    return r.status
}

// metricsMiddleware records request counts and latency keyed by mux pattern.
func metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w}
        next.ServeHTTP(rec, r)
        path := r.Pattern
        if path == "" { path = "unmatched" }
        status := strconv.Itoa(rec.code())
        metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
    })
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w}
        next.ServeHTTP(rec, r)
        s.Log.Info("request",
            zap.String("method", r.Method),
            zap.String("path", r.URL.Path),
            zap.Int("status", rec.code()),
            zap.Duration("duration", time.Since(start)),
            zap.String("remote", r.RemoteAddr),
        )
    })
}
