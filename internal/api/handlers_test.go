package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func adminReq(method, path string, body []byte) *http.Request {
    var req *http.Request
    if body != nil {
        req = httptest.NewRequest(method, path, bytes.NewReader(body))
        req.Header.Set("Content-Type", "application/json")
    } else {
        req = httptest.NewRequest(method, path, nil)
    }
    req.Header.Set("X-Shop-Id", "demo-shop")
    req.Header.Set("X-Role", "admin")
    return req
}

func createSession(t *testing.T, s *Server, body string) (string, map[string]any) {
    t.Helper()
    rr := httptest.NewRecorder()
    s.SessionsHandler(rr, adminReq(http.MethodPost, "/v1/checkout/sessions", []byte(body)))
    if rr.Code != http.StatusCreated { t.Fatalf("create session: %d %s", rr.Code, rr.Body.String()) }
    var res struct {
        SessionID string         `json:"sessionId"`
        Render    map[string]any `json:"render"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil { t.Fatalf("decode create: %v", err) }
    if res.SessionID == "" { t.Fatalf("no session id") }
    return res.SessionID, res.Render
}

func putSettings(t *testing.T, s *Server, settings string) {
    t.Helper()
    rr := httptest.NewRecorder()
    s.AdminSettingsHandler(rr, adminReq(http.MethodPut, "/v1/admin/settings", []byte(`{"settings":`+settings+`}`)))
    if rr.Code != 200 { t.Fatalf("put settings: %d %s", rr.Code, rr.Body.String()) }
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestSessionCreateRendersDefaultLabel(t *testing.T) {
    s := newTestServer(t)
    _, render := createSession(t, s, `{"cartLines":[{"merchandise":{"id":"gid://shopify/ProductVariant/1"}}]}`)
    if render["kind"] != "checkbox" { t.Fatalf("expected checkbox surface, got %v", render["kind"]) }
    cb, _ := render["checkbox"].(map[string]any)
    if cb == nil { t.Fatalf("missing checkbox view: %v", render) }
    label, _ := cb["label"].([]any)
    if len(label) != 1 { t.Fatalf("expected single label fragment, got %v", cb["label"]) }
    frag, _ := label[0].(map[string]any)
    if frag["text"] != "I agree to the terms and conditions" {
        t.Fatalf("expected default label, got %v", frag["text"])
    }
}

func TestToggleAndInterceptCycle(t *testing.T) {
    s := newTestServer(t)
    putSettings(t, s, `{"checkbox_required":true,"block_error_message":"Please agree first"}`)
    sid, _ := createSession(t, s, `{"cartLines":[]}`)

    // Blocked while unchecked
    rr := httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodPost, "/v1/checkout/sessions/"+sid+"/intercept", []byte(`{"canBlockProgress":true}`)))
    if rr.Code != 200 { t.Fatalf("intercept: %d", rr.Code) }
    var dec struct {
        Behavior string `json:"behavior"`
        Reason   string `json:"reason"`
        Errors   []struct{ Message string `json:"message"` } `json:"errors"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &dec); err != nil { t.Fatalf("decode decision: %v", err) }
    if dec.Behavior != "block" { t.Fatalf("expected block, got %s", dec.Behavior) }
    if dec.Reason != "Checkbox not checked" { t.Fatalf("bad reason: %s", dec.Reason) }
    if len(dec.Errors) != 1 || dec.Errors[0].Message != "Please agree first" {
        t.Fatalf("bad errors: %+v", dec.Errors)
    }

    // Error surface is visible after the block
    rr = httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodGet, "/v1/checkout/sessions/"+sid+"/render", nil))
    var surface struct {
        State struct{ ErrorVisible bool `json:"errorVisible"` } `json:"state"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &surface)
    if !surface.State.ErrorVisible { t.Fatalf("errorVisible should be true after block") }

    // Check the box and retry: allow, error cleared
    rr = httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodPost, "/v1/checkout/sessions/"+sid+"/toggle", []byte(`{"checked":true}`)))
    if rr.Code != 200 { t.Fatalf("toggle: %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodPost, "/v1/checkout/sessions/"+sid+"/intercept", []byte(`{"canBlockProgress":true}`)))
    var dec2 struct{ Behavior string `json:"behavior"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &dec2)
    if dec2.Behavior != "allow" { t.Fatalf("expected allow after check, got %s", dec2.Behavior) }

    rr = httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodGet, "/v1/checkout/sessions/"+sid, nil))
    var snap struct {
        State struct{ ErrorVisible bool `json:"errorVisible"` } `json:"state"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &snap)
    if snap.State.ErrorVisible { t.Fatalf("errorVisible should clear on allow") }
}

func TestHiddenCheckboxNeverBlocks(t *testing.T) {
    s := newTestServer(t)
    putSettings(t, s, `{"hide_checkbox":true,"checkbox_required":true}`)
    sid, render := createSession(t, s, `{}`)
    if render["kind"] != "none" { t.Fatalf("expected no surface, got %v", render["kind"]) }

    rr := httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodPost, "/v1/checkout/sessions/"+sid+"/intercept", []byte(`{"canBlockProgress":true}`)))
    var dec struct{ Behavior string `json:"behavior"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &dec)
    if dec.Behavior != "allow" { t.Fatalf("hidden checkbox must not block, got %s", dec.Behavior) }
}

func TestVariantTargetingFollowsCart(t *testing.T) {
    s := newTestServer(t)
    putSettings(t, s, `{"variant_selection":"gid://shopify/ProductVariant/42","match_any_variant":true}`)
    sid, render := createSession(t, s, `{"cartLines":[{"merchandise":{"id":"gid://shopify/ProductVariant/7"}}]}`)
    if render["kind"] != "none" { t.Fatalf("non-matching cart should hide, got %v", render["kind"]) }

    rr := httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodPost, "/v1/checkout/sessions/"+sid+"/cart",
        []byte(`{"cartLines":[{"merchandise":{"id":"gid://shopify/ProductVariant/42"}}]}`)))
    if rr.Code != 200 { t.Fatalf("cart update: %d", rr.Code) }
    var surface struct{ Kind string `json:"kind"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &surface)
    if surface.Kind != "checkbox" { t.Fatalf("matching cart should show, got %s", surface.Kind) }
}

func TestShippingAddressCountryTargeting(t *testing.T) {
    s := newTestServer(t)
    putSettings(t, s, `{"country_selection":"US, CA"}`)
    sid, render := createSession(t, s, `{"shippingDestination":{"countryCode":"DE"}}`)
    if render["kind"] != "none" { t.Fatalf("DE should be filtered out, got %v", render["kind"]) }

    rr := httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodPost, "/v1/checkout/sessions/"+sid+"/shipping-address",
        []byte(`{"shippingDestination":{"countryCode":"us"}}`)))
    if rr.Code != 200 { t.Fatalf("address update: %d", rr.Code) }
    var surface struct{ Kind string `json:"kind"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &surface)
    if surface.Kind != "checkbox" { t.Fatalf("us should match case-insensitively, got %s", surface.Kind) }
}

func TestSettingsEditReachesLiveSessions(t *testing.T) {
    s := newTestServer(t)
    sid, render := createSession(t, s, `{}`)
    if render["kind"] != "checkbox" { t.Fatalf("expected checkbox, got %v", render["kind"]) }

    putSettings(t, s, `{"hide_checkbox":true}`)

    rr := httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodGet, "/v1/checkout/sessions/"+sid+"/render", nil))
    var surface struct{ Kind string `json:"kind"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &surface)
    if surface.Kind != "none" { t.Fatalf("live session should pick up hide_checkbox, got %s", surface.Kind) }
}

func TestBlockedInterceptEnqueuesWebhook(t *testing.T) {
    s := newTestServer(t)
    // Subscribe to checkout.blocked
    rr := httptest.NewRecorder()
    s.SubscriptionsHandler(rr, adminReq(http.MethodPost, "/v1/subscriptions",
        []byte(`{"url":"https://example.invalid/webhook","events":["checkout.blocked"],"secret":"shh"}`)))
    if rr.Code != http.StatusCreated { t.Fatalf("create sub: %d %s", rr.Code, rr.Body.String()) }

    putSettings(t, s, `{"checkbox_required":true}`)
    sid, _ := createSession(t, s, `{}`)

    rr = httptest.NewRecorder()
    s.SessionByIDHandler(rr, adminReq(http.MethodPost, "/v1/checkout/sessions/"+sid+"/intercept", []byte(`{"canBlockProgress":true}`)))
    if rr.Code != 200 { t.Fatalf("intercept: %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.WebhookDeliveriesHandler(rr, adminReq(http.MethodGet, "/v1/admin/webhook-deliveries?limit=5", nil))
    if rr.Code != 200 { t.Fatalf("deliveries: %d", rr.Code) }
    var dres struct{ Deliveries []map[string]any `json:"deliveries"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &dres); err != nil { t.Fatalf("decode deliveries: %v", err) }
    if len(dres.Deliveries) == 0 { t.Fatalf("expected at least one delivery") }
    if et, _ := dres.Deliveries[0]["eventType"].(string); et != "checkout.blocked" {
        t.Fatalf("eventType: %v", dres.Deliveries[0]["eventType"])
    }

    // Audit log has the block
    rr = httptest.NewRecorder()
    s.AgreementsHandler(rr, adminReq(http.MethodGet, "/v1/admin/agreements", nil))
    var ares struct{ Agreements []map[string]any `json:"agreements"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &ares)
    if len(ares.Agreements) != 1 || ares.Agreements[0]["behavior"] != "block" {
        t.Fatalf("expected one block record, got %+v", ares.Agreements)
    }
}

func TestSubscriptionValidation(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.SubscriptionsHandler(rr, adminReq(http.MethodPost, "/v1/subscriptions",
        []byte(`{"url":"not-a-url","events":["checkout.blocked"]}`)))
    if rr.Code != http.StatusBadRequest { t.Fatalf("bad url accepted: %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.SubscriptionsHandler(rr, adminReq(http.MethodPost, "/v1/subscriptions",
        []byte(`{"url":"https://example.invalid/hook","events":["bogus.event"]}`)))
    if rr.Code != http.StatusBadRequest { t.Fatalf("bad event accepted: %d", rr.Code) }
}

func TestAdminRequiresRole(t *testing.T) {
    s := newTestServer(t)
    req := httptest.NewRequest(http.MethodGet, "/v1/admin/agreements", nil)
    req.Header.Set("X-Shop-Id", "demo-shop")
    req.Header.Set("X-Role", "storefront")
    rr := httptest.NewRecorder()
    s.AgreementsHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("storefront role should be rejected: %d", rr.Code) }
}

func TestGraphQLQueries(t *testing.T) {
    s := newTestServer(t)
    putSettings(t, s, `{"checkbox_label":"Please agree"}`)
    sid, _ := createSession(t, s, `{}`)

    rr := httptest.NewRecorder()
    s.GraphQLHTTPHandler(rr, adminReq(http.MethodPost, "/graphql", []byte(`{"query":"query { shopSettings }"}`)))
    if rr.Code != 200 { t.Fatalf("graphql shopSettings: %d", rr.Code) }

    qb, _ := json.Marshal(map[string]any{
        "query":     "query($id: ID!) { session(id: $id) }",
        "variables": map[string]any{"id": sid},
    })
    rr = httptest.NewRecorder()
    s.GraphQLHTTPHandler(rr, adminReq(http.MethodPost, "/graphql", qb))
    if rr.Code != 200 { t.Fatalf("graphql session: %d %s", rr.Code, rr.Body.String()) }
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
    hdr  http.Header
    buf  bytes.Buffer
    code int
}

func (r *sseRecorder) Header() http.Header { if r.hdr == nil { r.hdr = http.Header{} }; return r.hdr }
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush() {}

func TestSessionEventsSSE(t *testing.T) {
    s := newTestServer(t)
    sid, _ := createSession(t, s, `{}`)

    sseReq := httptest.NewRequest(http.MethodGet, "/v1/checkout/sessions/"+sid+"/events/stream", nil)
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    sseReq = sseReq.WithContext(ctx)
    sseReq.Header.Set("X-Shop-Id", "demo-shop")
    sseReq.Header.Set("X-Role", "admin")

    rec := &sseRecorder{}
    done := make(chan struct{})
    go func() {
        s.SessionByIDHandler(rec, sseReq)
        close(done)
    }()

    // Give handler time to subscribe and send heartbeat
    time.Sleep(50 * time.Millisecond)
    s.Broker.Publish(sid, SSEEvent{Type: EventDecisionMade, Data: map[string]any{"sessionId": sid}})

    deadline := time.Now().Add(500 * time.Millisecond)
    for time.Now().Before(deadline) {
        if bytes.Contains(rec.buf.Bytes(), []byte("event: decision.made")) {
            break
        }
        time.Sleep(10 * time.Millisecond)
    }
    if !bytes.Contains(rec.buf.Bytes(), []byte("event: decision.made")) {
        t.Fatalf("SSE did not contain expected event. Body: %s", rec.buf.String())
    }
    cancel()
    select {
    case <-done:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("handler did not exit after cancel")
    }
}
