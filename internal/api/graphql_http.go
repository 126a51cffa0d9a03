package api

import (
    "encoding/json"
    "net/http"
    "strings"
)

// Minimal GraphQL-like HTTP handler for demo purposes.
// Supports queries:
// - shopSettings: the caller's shop settings
// - session(id: $id): a live checkout session snapshot
// - agreements: recent agreement records for the shop
// Variables may contain {"id":"..."}
func (s *Server) GraphQLHTTPHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    var body struct {
        Query     string                 `json:"query"`
        Variables map[string]any         `json:"variables"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
    q := strings.ToLower(body.Query)
    p := s.getPrincipal(r)
    switch {
    case strings.Contains(q, "session("):
        id := ""
        if body.Variables != nil { if v, ok := body.Variables["id"].(string); ok { id = v } }
        if id == "" { writeProblem(w, 400, "Missing id", "", r.URL.Path); return }
        sess := s.Sessions.Get(id)
        if sess == nil || (!p.IsAdmin() && sess.ShopID != p.Shop) { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
        data := map[string]any{
            "id":      sess.ID,
            "shopId":  sess.ShopID,
            "country": sess.Country(),
            "state":   sess.Snapshot(),
            "render":  sess.Render(),
        }
        writeJSON(w, 200, map[string]any{"data": map[string]any{"session": data}})
    case strings.Contains(q, "shopsettings"):
        values, err := s.Store.GetShopSettings(r.Context(), p.Shop)
        if err != nil { writeProblem(w, 500, "Load settings failed", err.Error(), r.URL.Path); return }
        if values == nil { values = map[string]any{} }
        writeJSON(w, 200, map[string]any{"data": map[string]any{"shopSettings": values}})
    case strings.Contains(q, "agreements"):
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin role required", r.URL.Path); return }
        items, next, err := s.Store.ListAgreements(r.Context(), p.Shop, "", 100)
        if err != nil { writeProblem(w, 500, "List agreements failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"data": map[string]any{"agreements": items, "nextCursor": next}})
    default:
        writeProblem(w, 400, "Unsupported query", "", r.URL.Path)
    }
}
