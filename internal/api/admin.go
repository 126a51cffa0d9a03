package api

import (
    "encoding/json"
    "net/http"
    "strconv"
    "strings"

    "consentgate/internal/extension"
    "consentgate/internal/model"
    "consentgate/internal/settings"
    "consentgate/internal/webhooks"
)

// AdminSettingsHandler handles GET/PUT /v1/admin/settings for the caller's
// shop. PUT replaces the stored settings wholesale, pushes the new values
// into every live session of the shop, and emits a settings.updated
// webhook.
func (s *Server) AdminSettingsHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    switch r.Method {
    case http.MethodGet:
        values, err := s.Store.GetShopSettings(r.Context(), p.Shop)
        if err != nil {
            writeProblem(w, 500, "Storage error", err.Error(), r.URL.Path)
            return
        }
        if values == nil { values = map[string]any{} }
        writeJSON(w, http.StatusOK, map[string]any{"shopId": p.Shop, "settings": values})
    case http.MethodPut:
        var req struct {
            Settings map[string]any `json:"settings"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.Settings == nil { req.Settings = map[string]any{} }
        if err := validateSettings(req.Settings); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid settings", err.Error(), r.URL.Path)
            return
        }
        if err := s.Store.SaveShopSettings(r.Context(), p.Shop, req.Settings); err != nil {
            writeProblem(w, 500, "Storage error", err.Error(), r.URL.Path)
            return
        }
        cfg := settings.New(req.Settings)
        s.Sessions.ForShop(p.Shop, func(sess *extension.Session) {
            sess.UpdateSettings(cfg)
        })
        s.Pub.Emit(r.Context(), p.Shop, webhooks.EventSettingsUpdated, req.Settings)
        writeJSON(w, http.StatusOK, map[string]any{"shopId": p.Shop, "settings": req.Settings})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ExtensionStatusHandler handles GET/PUT /v1/admin/extension/status.
// GET consults the platform adapter; PUT is the deploy tooling hook that
// flips the activation flag.
func (s *Server) ExtensionStatusHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    switch r.Method {
    case http.MethodGet:
        st, err := s.Platform.ExtensionStatus(r.Context(), p.Shop)
        if err != nil {
            writeProblem(w, 502, "Platform error", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, st)
    case http.MethodPut:
        var req struct {
            Activated bool `json:"activated"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := s.Store.SaveExtensionStatus(r.Context(), p.Shop, req.Activated); err != nil {
            writeProblem(w, 500, "Storage error", err.Error(), r.URL.Path)
            return
        }
        st, err := s.Platform.ExtensionStatus(r.Context(), p.Shop)
        if err != nil {
            writeProblem(w, 502, "Platform error", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, st)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// AgreementsHandler handles GET /v1/admin/agreements with cursor pagination.
func (s *Server) AgreementsHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    limit := parseLimit(r, 50)
    cursor := r.URL.Query().Get("cursor")
    recs, next, err := s.Store.ListAgreements(r.Context(), p.Shop, cursor, limit)
    if err != nil {
        writeProblem(w, 500, "Storage error", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"agreements": recs, "nextCursor": next})
}

// DecisionsHandler handles GET /v1/admin/decisions: the latest intercept
// decision per live session of the shop.
func (s *Server) DecisionsHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"decisions": s.Decisions.ListByShop(p.Shop)})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        req.ShopID = p.Shop
        if err := validateSubscription(req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, 500, "Storage error", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        limit := parseLimit(r, 50)
        cursor := r.URL.Query().Get("cursor")
        subs, next, err := s.Store.ListSubscriptions(r.Context(), p.Shop, cursor, limit)
        if err != nil {
            writeProblem(w, 500, "Storage error", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if id == "" || strings.Contains(id, "/") {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    if r.Method != http.MethodDelete {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if err := s.Store.DeleteSubscription(r.Context(), p.Shop, id); err != nil {
        writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries and
// POST /v1/admin/webhook-deliveries/{id}/retry.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries")
    rest = strings.TrimPrefix(rest, "/")
    switch {
    case rest == "" && r.Method == http.MethodGet:
        limit := parseLimit(r, 50)
        status := r.URL.Query().Get("status")
        cursor := r.URL.Query().Get("cursor")
        items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Shop, status, cursor, limit)
        if err != nil {
            writeProblem(w, 500, "Storage error", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"deliveries": items, "nextCursor": next})
    case strings.HasSuffix(rest, "/retry") && r.Method == http.MethodPost:
        id := strings.TrimSuffix(rest, "/retry")
        if err := s.Store.RetryWebhookDelivery(r.Context(), p.Shop, id); err != nil {
            writeProblem(w, http.StatusNotFound, "Delivery not found", "", r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// WebhookDLQHandler handles GET /v1/admin/webhook-dlq and
// POST /v1/admin/webhook-dlq/{id}/requeue.
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq")
    rest = strings.TrimPrefix(rest, "/")
    switch {
    case rest == "" && r.Method == http.MethodGet:
        limit := parseLimit(r, 50)
        cursor := r.URL.Query().Get("cursor")
        items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Shop, cursor, limit)
        if err != nil {
            writeProblem(w, 500, "Storage error", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"dlq": items, "nextCursor": next})
    case strings.HasSuffix(rest, "/requeue") && r.Method == http.MethodPost:
        id := strings.TrimSuffix(rest, "/requeue")
        if err := s.Store.RequeueWebhookDLQ(r.Context(), p.Shop, id); err != nil {
            writeProblem(w, http.StatusNotFound, "Delivery not found", "", r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func parseLimit(r *http.Request, def int) int {
    raw := r.URL.Query().Get("limit")
    if raw == "" { return def }
    n, err := strconv.Atoi(raw)
    if err != nil || n <= 0 { return def }
    if n > 200 { return 200 }
    return n
}
