// Package api implements HTTP handlers and helpers for the consentgate service.
package api

import (
    "net/http"
    "strings"
)

type Principal struct {
    Shop string
    Role string // admin, merchant, storefront
}

// getPrincipal extracts shop and role from JWT or headers.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return Principal{Shop: normalizeShopID(pr.Shop), Role: pr.Role}
        }
    }
    shop := r.Header.Get("X-Shop-Id")
    role := r.Header.Get("X-Role")
    if shop == "" {
        shop = "demo-shop"
    }
    shop = normalizeShopID(shop)
    if role == "" {
        role = "admin"
    }
    return Principal{Shop: shop, Role: role}
}

// normalizeShopID maps full shop domains to the bare store handle.
func normalizeShopID(shop string) string {
    shop = strings.TrimSpace(strings.ToLower(shop))
    shop = strings.TrimPrefix(shop, "https://")
    shop = strings.TrimSuffix(shop, ".myshopify.com")
    return shop
}

// IsAdmin reports whether the principal may manage the shop.
func (p Principal) IsAdmin() bool { return p.Role == "admin" || p.Role == "merchant" }
