package usecase

import (
	"context"

	"github.com/oklog/ulid/v2"

	"smart-query/internal/domain"
)

// ThreadStore persists conversation state keyed by continuation key.
// Implementations must apply Commit atomically: the retained messages and
// the eviction tombstones land together or not at all, so a failed turn
// never leaves partial state behind.
type ThreadStore interface {
	// Get loads a thread. Returns domain.ErrThreadNotFound if the key is
	// unknown.
	Get(ctx context.Context, threadID string) (*domain.Thread, error)
	// Commit replaces the thread's retained messages and deletes the
	// evicted ones in a single transaction.
	Commit(ctx context.Context, thread *domain.Thread, evictions []domain.Eviction) error
}

// NewThreadID mints a fresh continuation key.
func NewThreadID() string { return ulid.Make().String() }

// NewMessageID mints a unique message identifier. Every message gets one
// before it enters history so eviction markers can reference it.
func NewMessageID() string { return ulid.Make().String() }
