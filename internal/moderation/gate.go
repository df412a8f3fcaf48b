package moderation

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Gate decides whether a chat message's text is inappropriate.
type Gate interface {
	Flag(ctx context.Context, text string) (bool, error)
}

// Blocklist flags text containing any listed term, case-insensitively.
type Blocklist struct {
	terms []string
}

func NewBlocklist(terms []string) *Blocklist {
	b := &Blocklist{}
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			b.terms = append(b.terms, t)
		}
	}
	return b
}

func (b *Blocklist) Flag(_ context.Context, text string) (bool, error) {
	lower := strings.ToLower(text)
	for _, t := range b.terms {
		if strings.Contains(lower, t) {
			return true, nil
		}
	}
	return false, nil
}

// Chain flags when any gate flags. The first error stops the chain.
type Chain []Gate

func (c Chain) Flag(ctx context.Context, text string) (bool, error) {
	for _, g := range c {
		if g == nil {
			continue
		}
		flagged, err := g.Flag(ctx, text)
		if err != nil || flagged {
			return flagged, err
		}
	}
	return false, nil
}

type failOpen struct {
	next   Gate
	logger *zap.Logger
}

// FailOpen wraps a gate so that errors are logged and the message is treated as clean.
func FailOpen(next Gate, logger *zap.Logger) Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &failOpen{next: next, logger: logger}
}

func (f *failOpen) Flag(ctx context.Context, text string) (bool, error) {
	flagged, err := f.next.Flag(ctx, text)
	if err != nil {
		f.logger.Warn("moderation_failed_open", zap.Error(err))
		return false, nil
	}
	return flagged, nil
}

// Allow never flags. Used when no moderation backend is configured.
type Allow struct{}

func (Allow) Flag(context.Context, string) (bool, error) { return false, nil }
