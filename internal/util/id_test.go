package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	plain := NewID("")
	if _, err := uuid.Parse(plain); err != nil {
		t.Fatalf("expected a uuid, got %q: %v", plain, err)
	}

	prefixed := NewID("rev")
	if !strings.HasPrefix(prefixed, "rev_") {
		t.Fatalf("expected rev_ prefix, got %q", prefixed)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(prefixed, "rev_")); err != nil {
		t.Fatalf("expected uuid after prefix, got %q: %v", prefixed, err)
	}

	if NewID("rev") == NewID("rev") {
		t.Fatal("expected distinct ids")
	}
}
