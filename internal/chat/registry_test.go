package chat

import "testing"

func TestRegistry_Basics(t *testing.T) {
	r := NewRegistry()

	if r.Size() != 0 {
		t.Fatalf("Size=%d, want 0", r.Size())
	}
	if _, ok := r.Get("A"); ok {
		t.Fatalf("Get on empty registry returned a session")
	}

	r.Set("A", &Session{ID: "A"})
	if !r.Has("A") {
		t.Fatalf("Has(A)=false after Set")
	}
	if s, ok := r.Get("A"); !ok || s.ID != "A" {
		t.Fatalf("Get(A)=%v,%v", s, ok)
	}
	if r.Size() != 1 {
		t.Fatalf("Size=%d, want 1", r.Size())
	}

	r.Delete("A")
	if r.Has("A") {
		t.Fatalf("Has(A)=true after Delete")
	}

	// Deleting an absent id is a no-op, not an error.
	r.Delete("A")
}

func TestRegistry_WaitingSlot(t *testing.T) {
	r := NewRegistry()

	if r.WaitingID() != "" {
		t.Fatalf("WaitingID=%q, want empty", r.WaitingID())
	}
	r.SetWaitingID("A")
	if r.WaitingID() != "A" {
		t.Fatalf("WaitingID=%q, want A", r.WaitingID())
	}
	r.SetWaitingID("")
	if r.WaitingID() != "" {
		t.Fatalf("WaitingID=%q, want cleared", r.WaitingID())
	}
}

func TestRegistry_IDs(t *testing.T) {
	r := NewRegistry()
	r.Set("A", &Session{ID: "A"})
	r.Set("B", &Session{ID: "B"})

	ids := r.IDs()
	if len(ids) != 2 {
		t.Fatalf("IDs=%v, want 2 entries", ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["A"] || !seen["B"] {
		t.Fatalf("IDs=%v, want A and B", ids)
	}
}
