package store

import (
	"testing"
)

func TestToJSON(t *testing.T) {
	if got := string(toJSON(map[string]any{"a": 1})); got != `{"a":1}` {
		t.Fatalf("unexpected json: %s", got)
	}
	if got := string(toJSON(nil)); got != "null" {
		t.Fatalf("nil -> null expected, got %s", got)
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty string -> nil expected")
	}
	if v := nullIfEmpty("x"); v != "x" {
		t.Fatalf("non-empty -> value expected, got %v", v)
	}
}
