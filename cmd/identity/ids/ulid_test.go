package ids

import (
	"testing"
	"time"
)

func TestNewULID(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a, err := NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	b, err := NewULID(now.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	if len(a) != 26 || !Valid(a) {
		t.Fatalf("invalid ulid %q", a)
	}
	if !(a < b) {
		t.Fatalf("expected lexicographic order: %q !< %q", a, b)
	}
	if Valid("not-a-ulid") {
		t.Fatalf("expected invalid")
	}
}
