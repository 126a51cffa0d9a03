package api

import (
    "net/http"
    "strconv"
    "strings"
    "time"

    "consentgate/internal/metrics"
)

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok {
        f.Flush()
    }
}

// MetricsMiddleware records request counts and durations per route.
func MetricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: 200}
        next.ServeHTTP(rec, r)
        route := metricsRoute(r.URL.Path)
        status := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, route, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
    })
}

// metricsRoute collapses ids out of paths so label cardinality stays bounded.
func metricsRoute(path string) string {
    parts := strings.Split(path, "/")
    for i, p := range parts {
        if i >= 3 && p != "" && !known[p] {
            parts[i] = ":id"
        }
    }
    return strings.Join(parts, "/")
}

var known = map[string]bool{
    "sessions": true, "cart": true, "shipping-address": true, "toggle": true,
    "intercept": true, "render": true, "events": true, "stream": true,
    "settings": true, "status": true, "agreements": true, "decisions": true,
    "retry": true, "requeue": true,
}
