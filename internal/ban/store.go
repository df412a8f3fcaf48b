package ban

import (
	"context"
	"errors"
)

var ErrEmptyUserID = errors.New("empty user id")

// Store is the permanent record of chat bans. A written ban is never lifted by this service.
type Store interface {
	IsBanned(ctx context.Context, userID string) (bool, error)
	BannedAmong(ctx context.Context, userIDs []string) (map[string]bool, error)
	Ban(ctx context.Context, userID, reason string) error
	Ping(ctx context.Context) error
}
