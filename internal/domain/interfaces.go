package domain

import "context"

// SessionRepository persists the account and market snapshot between runs.
// LoadSession returns (nil, nil) only when nothing was saved yet.
type SessionRepository interface {
	SaveSession(ctx context.Context, state *SessionState) error
	LoadSession(ctx context.Context) (*SessionState, error)
	Close() error
}
