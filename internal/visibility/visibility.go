// Package visibility decides whether the agreement checkbox appears for
// a checkout, from variant targeting and shipping-country targeting.
package visibility

import (
    "strings"

    "consentgate/internal/model"
    "consentgate/internal/settings"
)

// ShouldShow reports whether the checkbox renders for the given cart and
// shipping country. The variant filter and the country filter are ANDed;
// each passes unconditionally when its selection is empty. A stale or
// missing country code is treated as no constraint. Pure: safe to call
// on every render.
func ShouldShow(s settings.Settings, lines []model.CartLine, countryCode string) bool {
    return variantFilter(s, lines) && countryFilter(s, countryCode)
}

func variantFilter(s settings.Settings, lines []model.CartLine) bool {
    selectors := splitSelection(s.GetString(settings.KeyVariantSelection, ""))
    if len(selectors) == 0 {
        return true
    }
    ids := make([]string, 0, len(lines))
    for _, l := range lines {
        if id := VariantID(l); id != "" {
            ids = append(ids, id)
        }
    }
    matchAny := s.GetBoolean(settings.KeyMatchAnyVariant, false)
    for _, sel := range selectors {
        matched := false
        for _, id := range ids {
            if variantMatches(sel, id) {
                matched = true
                break
            }
        }
        if matchAny && matched {
            return true
        }
        if !matchAny && !matched {
            return false
        }
    }
    return !matchAny
}

// variantMatches is deliberately loose: exact equality or containment in
// either direction, tolerating gid prefixes and suffixed ids.
func variantMatches(selector, id string) bool {
    if selector == id {
        return true
    }
    return strings.Contains(id, selector) || strings.Contains(selector, id)
}

// VariantID normalizes a cart line to a single variant identifier,
// trying the known nested paths in priority order. Empty when the line
// carries none.
func VariantID(l model.CartLine) string {
    if l.Merchandise != nil {
        if l.Merchandise.ID != "" {
            return l.Merchandise.ID
        }
        if l.Merchandise.Product != nil && l.Merchandise.Product.ID != "" {
            return l.Merchandise.Product.ID
        }
    }
    if l.VariantID != "" {
        return l.VariantID
    }
    return ""
}

func countryFilter(s settings.Settings, countryCode string) bool {
    raw := splitSelection(s.GetString(settings.KeyCountrySelection, ""))
    if len(raw) == 0 {
        return true
    }
    code := strings.ToUpper(strings.TrimSpace(countryCode))
    if code == "" {
        // Not yet known; no constraint until a value arrives.
        return true
    }
    for _, c := range raw {
        if strings.ToUpper(c) == code {
            return true
        }
    }
    return false
}

func splitSelection(raw string) []string {
    if strings.TrimSpace(raw) == "" {
        return nil
    }
    parts := strings.Split(raw, ",")
    out := parts[:0]
    for _, p := range parts {
        if t := strings.TrimSpace(p); t != "" {
            out = append(out, t)
        }
    }
    return out
}
