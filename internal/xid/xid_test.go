package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewPrefixesUUID(t *testing.T) {
	id := New("set")
	if !strings.HasPrefix(id, "set-") {
		t.Fatalf("expected set- prefix, got %q", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "set-")); err != nil {
		t.Fatalf("expected uuid suffix in %q: %v", id, err)
	}
	if New("set") == id {
		t.Fatalf("expected unique ids")
	}
}
