package main

import (
    "context"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "consentgate/internal/api"
    "consentgate/internal/metrics"
)

func main() {
    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Checkout sessions (extension host surface)
    mux.HandleFunc("/v1/checkout/sessions", srvDeps.SessionsHandler)
    mux.HandleFunc("/v1/checkout/sessions/", srvDeps.SessionByIDHandler) // includes /cart, /toggle, /intercept, /events/stream

    // Merchant admin
    mux.HandleFunc("/v1/admin/settings", srvDeps.AdminSettingsHandler)
    mux.HandleFunc("/v1/admin/extension/status", srvDeps.ExtensionStatusHandler)
    mux.HandleFunc("/v1/admin/agreements", srvDeps.AgreementsHandler)
    mux.HandleFunc("/v1/admin/decisions", srvDeps.DecisionsHandler)

    // Webhook subscriptions and delivery admin
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq", srvDeps.WebhookDLQHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq/", srvDeps.WebhookDLQHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

    // GraphQL subscription bridge (SSE) for session events
    mux.HandleFunc("/graphql/subscriptions/checkout-events", func(w http.ResponseWriter, r *http.Request) {
        id := r.URL.Query().Get("sessionId")
        if id == "" { http.Error(w, "sessionId required", http.StatusBadRequest); return }
        r.URL.Path = "/v1/checkout/sessions/" + id + "/events/stream"
        srvDeps.SessionByIDHandler(w, r)
    })

    // GraphQL endpoints
    mux.HandleFunc("/graphql", srvDeps.GraphQLHTTPHandler)
    mux.HandleFunc("/graphql/ws", srvDeps.GraphQLWSHandler)

    // Docs and debug
    mux.HandleFunc("/openapi.yaml", srvDeps.OpenAPIHandler)
    mux.HandleFunc("/docs", srvDeps.DocsHandler)
    mux.HandleFunc("/swagger", srvDeps.SwaggerHandler)
    mux.HandleFunc("/static/", srvDeps.StaticHandler)
    mux.HandleFunc("/admin", srvDeps.StaticHandler)
    mux.HandleFunc("/debug", srvDeps.DebugJSON)

    // Prometheus metrics on the dedicated registry
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    srv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(api.RateLimitMiddleware(api.MetricsMiddleware(mux))),
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("API listening on %s", addr)
    // Start webhook worker
    if srvDeps.Pub != nil {
        worker := srvDeps.NewWebhookWorker()
        worker.Start()
    }

    go func() {
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatalf("server error: %v", err)
        }
    }()

    stop := make(chan os.Signal, 1)
    signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
    <-stop
    log.Printf("shutting down")
    srvDeps.Sessions.CloseAll()
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = srv.Shutdown(ctx)
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}
