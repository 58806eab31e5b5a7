package usecase

import (
	"fmt"
	"testing"

	"smart-query/internal/domain"
)

func idMessages(n int) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := range msgs {
		msgs[i] = domain.Message{ID: fmt.Sprintf("m%d", i), Role: domain.RoleUser, Content: fmt.Sprintf("msg %d", i)}
	}
	return msgs
}

func TestHistoryAppendUnderWindow(t *testing.T) {
	h := NewHistoryManager(6)

	retained, evicted := h.Append(idMessages(3), domain.Message{ID: "new"})
	if len(retained) != 4 {
		t.Fatalf("retained = %d, want 4", len(retained))
	}
	if len(evicted) != 0 {
		t.Errorf("evicted = %d, want 0", len(evicted))
	}
	if retained[3].ID != "new" {
		t.Errorf("last retained = %q, want new", retained[3].ID)
	}
}

func TestHistoryAppendAtWindow(t *testing.T) {
	h := NewHistoryManager(6)

	retained, evicted := h.Append(idMessages(6), domain.Message{ID: "new"})
	if len(retained) != 6 {
		t.Fatalf("retained = %d, want 6", len(retained))
	}
	if len(evicted) != 1 {
		t.Fatalf("evicted = %d, want 1", len(evicted))
	}
	if evicted[0].MessageID != "m0" {
		t.Errorf("evicted = %q, want m0", evicted[0].MessageID)
	}
	if retained[0].ID != "m1" || retained[5].ID != "new" {
		t.Errorf("retained window = %q..%q, want m1..new", retained[0].ID, retained[5].ID)
	}
}

func TestHistoryCapEvictsPrefixOnly(t *testing.T) {
	h := NewHistoryManager(6)

	retained, evicted := h.Cap(idMessages(8))
	if len(retained) != 6 {
		t.Fatalf("retained = %d, want 6", len(retained))
	}
	if len(evicted) != 2 {
		t.Fatalf("evicted = %d, want 2", len(evicted))
	}
	// Evicted set is exactly the prefix, in original order.
	if evicted[0].MessageID != "m0" || evicted[1].MessageID != "m1" {
		t.Errorf("evicted = %+v", evicted)
	}
	// Retained suffix equals the last 6 in original order.
	for i, m := range retained {
		want := fmt.Sprintf("m%d", i+2)
		if m.ID != want {
			t.Errorf("retained[%d] = %q, want %q", i, m.ID, want)
		}
	}
}

func TestHistoryCapNeverEvictsNewest(t *testing.T) {
	h := NewHistoryManager(2)

	msgs := idMessages(5)
	retained, evicted := h.Cap(msgs)
	if retained[len(retained)-1].ID != "m4" {
		t.Errorf("newest message evicted; retained tail = %q", retained[len(retained)-1].ID)
	}
	for _, e := range evicted {
		if e.MessageID == "m4" {
			t.Error("newest message appeared in eviction list")
		}
	}
}

func TestHistoryWindowNeverExceeded(t *testing.T) {
	h := NewHistoryManager(6)

	var msgs []domain.Message
	for i := 0; i < 20; i++ {
		var evicted []domain.Eviction
		msgs, evicted = h.Append(msgs, domain.Message{ID: fmt.Sprintf("m%d", i)})
		if len(msgs) > 6 {
			t.Fatalf("after append %d: window = %d, exceeds 6", i, len(msgs))
		}
		for _, e := range evicted {
			if e.MessageID == "" {
				t.Fatalf("eviction without message ID at append %d", i)
			}
		}
	}
	// The retained suffix is the last 6 appended.
	if msgs[0].ID != "m14" || msgs[5].ID != "m19" {
		t.Errorf("retained window = %q..%q, want m14..m19", msgs[0].ID, msgs[5].ID)
	}
}

func TestHistoryDefaultWindow(t *testing.T) {
	h := NewHistoryManager(0)
	if h.Window() != DefaultWindowSize {
		t.Errorf("Window = %d, want %d", h.Window(), DefaultWindowSize)
	}
}

func TestHistoryAppendDoesNotMutateInput(t *testing.T) {
	h := NewHistoryManager(3)
	existing := idMessages(3)

	h.Append(existing, domain.Message{ID: "new"})

	for i, m := range existing {
		want := fmt.Sprintf("m%d", i)
		if m.ID != want {
			t.Errorf("input mutated: existing[%d] = %q, want %q", i, m.ID, want)
		}
	}
}
