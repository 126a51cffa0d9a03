package api

import (
    "net/http"
    "os"
    "strconv"

    "golang.org/x/time/rate"
)

// RateLimitMiddleware applies a global token-bucket limit configured via
// RATE_RPS and RATE_BURST. Unset or zero RATE_RPS disables limiting.
func RateLimitMiddleware(next http.Handler) http.Handler {
    rps, _ := strconv.ParseFloat(os.Getenv("RATE_RPS"), 64)
    if rps <= 0 {
        return next
    }
    burst, _ := strconv.Atoi(os.Getenv("RATE_BURST"))
    if burst <= 0 { burst = int(rps) }
    if burst <= 0 { burst = 1 }
    lim := rate.NewLimiter(rate.Limit(rps), burst)
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !lim.Allow() {
            writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}
