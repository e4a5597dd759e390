package moderation

import (
	"context"
	"errors"
)

// ErrPostNotFound marks a lookup for a submission that is absent from
// the store, usually because a concurrent vote already resolved it.
// Callers treat it as "already resolved", not as a failure.
var ErrPostNotFound = errors.New("moderation: post not found")

// Store holds pending submissions. Implementations persist every
// mutation before returning.
type Store interface {
	Add(ctx context.Context, post *Post) error
	Get(ctx context.Context, id string) (*Post, error)
	Update(ctx context.Context, post *Post) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Post, error)
}
