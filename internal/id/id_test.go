package id

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewReturnsUniqueUUIDs(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		v := New()
		if _, err := uuid.Parse(v); err != nil {
			t.Fatalf("expected uuid, got %q: %v", v, err)
		}
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate id %s", v)
		}
		seen[v] = struct{}{}
	}
}
