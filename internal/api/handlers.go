package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "consentgate/internal/extension"
    "consentgate/internal/metrics"
    "consentgate/internal/model"
    "consentgate/internal/richtext"
    "consentgate/internal/settings"
    "consentgate/internal/webhooks"
)

// SessionsHandler handles POST /v1/checkout/sessions
func (s *Server) SessionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req model.SessionRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    p := s.getPrincipal(r)
    if req.ShopID == "" { req.ShopID = p.Shop }
    cfg := s.loadSettings(r.Context(), req.ShopID)
    sess := s.Sessions.Create(req, cfg)
    surface := sess.Render()
    countFallback(surface)
    writeJSON(w, http.StatusCreated, map[string]any{"sessionId": sess.ID, "render": surface})
}

// SessionByIDHandler handles /v1/checkout/sessions/{id} and its
// sub-resources: render, cart, shipping-address, toggle, intercept,
// events/stream.
func (s *Server) SessionByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/checkout/sessions/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    sess := s.Sessions.Get(id)
    if sess == nil {
        writeProblem(w, http.StatusNotFound, "Session not found", "", r.URL.Path)
        return
    }
    action := strings.Join(parts[1:], "/")
    switch {
    case action == "" && r.Method == http.MethodDelete:
        s.Sessions.Close(id)
        w.WriteHeader(http.StatusNoContent)
    case action == "" && r.Method == http.MethodGet:
        writeJSON(w, http.StatusOK, map[string]any{
            "sessionId": sess.ID,
            "shopId":    sess.ShopID,
            "country":   sess.Country(),
            "state":     sess.Snapshot(),
        })
    case action == "render" && r.Method == http.MethodGet:
        surface := sess.Render()
        countFallback(surface)
        writeJSON(w, http.StatusOK, surface)
    case action == "cart" && r.Method == http.MethodPost:
        s.cartHandler(w, r, sess)
    case action == "shipping-address" && r.Method == http.MethodPost:
        s.shippingAddressHandler(w, r, sess)
    case action == "toggle" && r.Method == http.MethodPost:
        s.toggleHandler(w, r, sess)
    case action == "intercept" && r.Method == http.MethodPost:
        s.interceptHandler(w, r, sess)
    case action == "events/stream" && r.Method == http.MethodGet:
        s.sessionEventsStream(w, r, sess)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (s *Server) cartHandler(w http.ResponseWriter, r *http.Request, sess *extension.Session) {
    var req struct {
        CartLines []model.CartLine `json:"cartLines"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    sess.UpdateCart(req.CartLines)
    s.Broker.Publish(sess.ID, SSEEvent{Type: EventCartUpdated, Data: map[string]any{"lines": len(req.CartLines)}})
    surface := sess.Render()
    countFallback(surface)
    writeJSON(w, http.StatusOK, surface)
}

func (s *Server) shippingAddressHandler(w http.ResponseWriter, r *http.Request, sess *extension.Session) {
    var req struct {
        Destination model.ShippingDestination `json:"shippingDestination"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    // Apply synchronously for this replica; the broker publish feeds the
    // session subscription on other replicas plus any SSE/WS observers.
    sess.UpdateDestination(req.Destination.CountryCode)
    s.Broker.Publish(sess.ID, SSEEvent{Type: EventDestinationUpdated, Data: map[string]any{"countryCode": req.Destination.CountryCode}})
    surface := sess.Render()
    countFallback(surface)
    writeJSON(w, http.StatusOK, surface)
}

func (s *Server) toggleHandler(w http.ResponseWriter, r *http.Request, sess *extension.Session) {
    // Toggle payloads are duck-typed: {checked} or {target:{checked}}.
    var event map[string]any
    if r.Body != nil {
        _ = json.NewDecoder(r.Body).Decode(&event)
    }
    checked := sess.Toggle(event)
    s.Broker.Publish(sess.ID, SSEEvent{Type: EventStateChanged, Data: map[string]any{"checked": checked}})
    writeJSON(w, http.StatusOK, map[string]any{"state": sess.Snapshot()})
}

func (s *Server) interceptHandler(w http.ResponseWriter, r *http.Request, sess *extension.Session) {
    var req model.InterceptRequest
    if r.Body != nil {
        _ = json.NewDecoder(r.Body).Decode(&req)
    }
    d := sess.Intercept(req.CanBlockProgress)
    metrics.InterceptDecisions.WithLabelValues(d.Behavior).Inc()
    ts := time.Now().UTC().Format(time.RFC3339)
    state := sess.Snapshot()
    s.Decisions.Upsert(LatestDecision{ShopID: sess.ShopID, SessionID: sess.ID, Behavior: d.Behavior, Reason: d.Reason, TS: ts})
    s.Broker.Publish(sess.ID, SSEEvent{Type: EventDecisionMade, Data: map[string]any{
        "behavior": d.Behavior, "reason": d.Reason, "ts": ts,
    }})
    rec := model.AgreementRecord{
        ShopID:     sess.ShopID,
        SessionID:  sess.ID,
        CheckoutID: sess.CheckoutID,
        Behavior:   d.Behavior,
        Checked:    state.Checked,
        Country:    sess.Country(),
        TS:         ts,
    }
    if _, err := s.Store.RecordAgreement(r.Context(), rec); err != nil {
        // Audit failure never blocks the buyer; the decision stands.
        writeJSON(w, http.StatusOK, d)
        return
    }
    if d.Block() {
        s.Pub.Emit(r.Context(), sess.ShopID, webhooks.EventCheckoutBlocked, rec)
    } else if state.Checked {
        s.Pub.Emit(r.Context(), sess.ShopID, webhooks.EventAgreementAccepted, rec)
    }
    writeJSON(w, http.StatusOK, d)
}

// sessionEventsStream serves SSE for one session's events.
func (s *Server) sessionEventsStream(w http.ResponseWriter, r *http.Request, sess *extension.Session) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(sess.ID)
    defer s.Broker.Unsubscribe(sess.ID, ch)
    // initial heartbeat
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"sessionId\":\"%s\",\"ts\":\"%s\"}\n\n", sess.ID, time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"sessionId\":\"%s\",\"ts\":\"%s\"}\n\n", sess.ID, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// loadSettings reads a shop's configuration, degrading to empty settings
// (all defaults) when the store is unavailable.
func (s *Server) loadSettings(ctx context.Context, shopID string) settings.Settings {
    values, err := s.Store.GetShopSettings(ctx, shopID)
    if err != nil {
        return settings.New(nil)
    }
    return settings.New(values)
}

// countFallback bumps the fallback-label metric when a checkbox rendered
// with the built-in default label instead of merchant copy.
func countFallback(surface extension.RenderSurface) {
    if surface.Checkbox == nil { return }
    l := surface.Checkbox.Label
    if len(l) == 1 && l[0].Kind == richtext.FragmentText && l[0].Text == richtext.DefaultLabel {
        metrics.LabelFallbacks.Inc()
    }
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
