// Package settings gives typed access to raw per-shop configuration.
package settings

import (
    "encoding/json"
    "strings"

    "consentgate/internal/richtext"
)

// Keys the extension reads. Values are merchant-authored and arrive
// loosely typed; accessors default rather than fail.
const (
    KeyHideCheckbox           = "hide_checkbox"
    KeyCheckboxDefaultChecked = "checkbox_default_checked"
    KeyCheckboxRequired       = "checkbox_required"
    KeyBlockErrorMessage      = "block_error_message"
    KeyCheckboxLabel          = "checkbox_label"
    KeyVariantSelection       = "variant_selection"
    KeyMatchAnyVariant        = "match_any_variant"
    KeyCountrySelection       = "country_selection"
)

// DefaultBlockError is shown when a merchant left the message blank.
const DefaultBlockError = "Please agree to the terms and conditions to continue"

// Settings is a read-only view over a shop's raw key/value configuration.
// Values hold string, bool, or a rich-text document (as *richtext.Node or
// a raw JSON object); anything else is treated as absent.
type Settings struct {
    values map[string]any
}

// New wraps a raw map. A nil map is a valid, empty Settings.
func New(values map[string]any) Settings {
    return Settings{values: values}
}

// FromJSON decodes a raw JSON object into Settings. Malformed input
// yields empty Settings rather than an error; every key then defaults.
func FromJSON(data []byte) Settings {
    var m map[string]any
    if err := json.Unmarshal(data, &m); err != nil {
        return Settings{}
    }
    return Settings{values: m}
}

// Raw returns the underlying map for persistence. Callers must not
// mutate it.
func (s Settings) Raw() map[string]any { return s.values }

// GetString returns the string stored under key. Rich-text values
// collapse to their plain text; blank extractions, missing keys, and
// mistyped values return def.
func (s Settings) GetString(key, def string) string {
    switch v := s.values[key].(type) {
    case string:
        return v
    case *richtext.Node:
        if v == nil {
            return def
        }
        if t := richtext.PlainText(*v); strings.TrimSpace(t) != "" {
            return t
        }
        return def
    case map[string]any:
        n, ok := richtext.Decode(v)
        if !ok {
            return def
        }
        if t := richtext.PlainText(n); strings.TrimSpace(t) != "" {
            return t
        }
        return def
    default:
        return def
    }
}

// GetBoolean returns the bool stored under key, or def unless the stored
// value is exactly a boolean.
func (s Settings) GetBoolean(key string, def bool) bool {
    if v, ok := s.values[key].(bool); ok {
        return v
    }
    return def
}

// GetRichText returns the rich-text document stored under key, nil when
// the value is absent or not a document. Plain strings are not promoted;
// the renderer accepts them directly.
func (s Settings) GetRichText(key string) *richtext.Node {
    switch v := s.values[key].(type) {
    case *richtext.Node:
        return v
    case map[string]any:
        if n, ok := richtext.Decode(v); ok {
            return &n
        }
    }
    return nil
}

// Label returns the raw label value for the renderer: a *richtext.Node,
// a plain string, or nil.
func (s Settings) Label() any {
    if n := s.GetRichText(KeyCheckboxLabel); n != nil {
        return n
    }
    if v, ok := s.values[KeyCheckboxLabel].(string); ok {
        return v
    }
    return nil
}
