package ids

import (
	"strings"
	"testing"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids out of order: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestFromClient(t *testing.T) {
	if got := FromClient("req-42"); got != "req-42" {
		t.Fatalf("expected incoming id kept, got %q", got)
	}
	for _, bad := range []string{"", strings.Repeat("x", 129), "has space", "tab\tinside"} {
		if got := FromClient(bad); got == bad || len(got) != 26 {
			t.Fatalf("FromClient(%q) = %q, want fresh ULID", bad, got)
		}
	}
}
