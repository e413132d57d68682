package hexid

import (
	"regexp"
	"testing"
)

func TestNew(t *testing.T) {
	id := New()
	if !regexp.MustCompile(`^[0-9a-f]{8}$`).MatchString(id) {
		t.Fatalf("expected 8 lowercase hex chars, got %q", id)
	}
}

func TestNewN(t *testing.T) {
	if got := len(NewN(8)); got != 16 {
		t.Fatalf("len(NewN(8)) = %d, want 16", got)
	}
	if got := len(NewN(0)); got != 8 {
		t.Fatalf("len(NewN(0)) = %d, want 8", got)
	}
}

func TestNewUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate ID after %d iterations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
