package callctx

import "testing"

func TestNextIDMonotonicAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := NextID(999)
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewContextHasInvalidSspCallID(t *testing.T) {
	c := New(NextID(1))
	if c.HasSspCallID() {
		t.Error("fresh context should not have an SSP call id")
	}
	if c.HasPvpCallID() {
		t.Error("fresh context should not have a PVP call id")
	}

	c.SspCallID = "abc-123"
	if !c.HasSspCallID() {
		t.Error("HasSspCallID should be true once set")
	}

	c.PvpCallID = 42
	if !c.HasPvpCallID() {
		t.Error("HasPvpCallID should be true once set")
	}
}
