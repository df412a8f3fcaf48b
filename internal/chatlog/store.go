package chatlog

import (
	"context"

	"github.com/park285/focus-party/internal/domain"
)

const DefaultLimit = 1000

// Store is the room's bounded, newest-first chat history.
type Store interface {
	// Load returns the stored log in storage order (newest first).
	Load(ctx context.Context) ([]domain.ChatMessage, error)
	// Prepend inserts msg at the head and truncates the tail beyond the limit.
	Prepend(ctx context.Context, msg domain.ChatMessage) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
