package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefixAndUniqueness(t *testing.T) {
	a := NewID("par")
	b := NewID("par")
	if !strings.HasPrefix(a, "par_") {
		t.Fatalf("expected par_ prefix, got %q", a)
	}
	if len(a) != len("par_")+32 {
		t.Fatalf("unexpected id length %d for %q", len(a), a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
	if raw := NewID(""); strings.Contains(raw, "_") || len(raw) != 32 {
		t.Fatalf("unexpected bare id %q", raw)
	}
}
