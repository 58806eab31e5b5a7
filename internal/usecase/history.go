package usecase

import "smart-query/internal/domain"

// DefaultWindowSize is the number of messages retained in active context
// when no override is configured.
const DefaultWindowSize = 6

// HistoryManager caps a conversation at a fixed retained window and reports
// evicted messages as explicit tombstone markers so a downstream store can
// apply deletions rather than silently losing data.
//
// Append is pure: it produces the retained suffix and the eviction list and
// leaves applying them to the caller.
type HistoryManager struct {
	window int
}

// NewHistoryManager creates a history manager with the given window size.
// Non-positive sizes fall back to DefaultWindowSize.
func NewHistoryManager(window int) *HistoryManager {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &HistoryManager{window: window}
}

// Window returns the configured retained-window size.
func (h *HistoryManager) Window() int { return h.window }

// Append builds existing + [msg], then caps the result at the window size.
// The oldest excess messages form the eviction list, in their original
// order; the newest message is never evicted. Every message must carry an
// ID before it reaches Append, otherwise its eviction marker cannot
// reference it.
func (h *HistoryManager) Append(existing []domain.Message, msg domain.Message) ([]domain.Message, []domain.Eviction) {
	candidate := make([]domain.Message, 0, len(existing)+1)
	candidate = append(candidate, existing...)
	candidate = append(candidate, msg)
	return h.Cap(candidate)
}

// Cap trims a candidate sequence to the retained window. The prefix of
// length len(candidate)-W is evicted; the suffix of length W is retained
// in original order.
func (h *HistoryManager) Cap(candidate []domain.Message) ([]domain.Message, []domain.Eviction) {
	excess := len(candidate) - h.window
	if excess <= 0 {
		return candidate, nil
	}

	evictions := make([]domain.Eviction, 0, excess)
	for _, m := range candidate[:excess] {
		evictions = append(evictions, domain.Eviction{MessageID: m.ID})
	}

	retained := make([]domain.Message, h.window)
	copy(retained, candidate[excess:])
	return retained, evictions
}
