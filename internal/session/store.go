// Package session keeps per-fill form state: the current namespaced
// state marker and the partially collected answers. Two backends exist,
// an in-process map and Redis, selected by configuration.
package session

import "context"

// Store persists one session's state and partial answers. A session
// that was never written or already cleared reports an empty state and
// empty data; that is not an error.
type Store interface {
	State(ctx context.Context, sid string) (string, error)
	SetState(ctx context.Context, sid, state string) error
	SetValue(ctx context.Context, sid, key, value string) error
	Data(ctx context.Context, sid string) (map[string]string, error)
	Clear(ctx context.Context, sid string) error
}

type record struct {
	State string            `json:"state"`
	Data  map[string]string `json:"data"`
}
