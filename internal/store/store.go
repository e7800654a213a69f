package store

import (
	"context"
	"errors"

	"semcal/internal/model"
)

// ErrNoSession is returned when a call is made without a user.
var ErrNoSession = errors.New("store: no user session")

// Session identifies whose task records a call reads or writes. It is passed
// explicitly on every call instead of living in process-wide client state.
type Session struct {
	UserID string
}

// Valid reports whether the session names a user.
func (s Session) Valid() bool {
	return s.UserID != ""
}

// Store persists task records keyed by id. Upsert must be idempotent.
type Store interface {
	// FetchAll returns every record of the session's user, ordered by date.
	FetchAll(ctx context.Context, sess Session) ([]model.Task, error)
	// Upsert inserts or replaces records by id.
	Upsert(ctx context.Context, sess Session, tasks []model.Task) error
	// DeleteByIDs removes records; unknown ids are ignored.
	DeleteByIDs(ctx context.Context, sess Session, ids []string) error
}
