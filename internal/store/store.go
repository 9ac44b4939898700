// Package store persists per-user session snapshots.
//
// A snapshot is two records namespaced by user id: the serialized thread
// collection and the active thread id. Writes replace both records; the last
// write wins and concurrent writers for the same user are not coordinated.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a user has no saved snapshot.
var ErrNotFound = errors.New("snapshot not found")

// Record is the raw two-record snapshot of one user.
type Record struct {
	Threads        string
	ActiveThreadID string
}

// Backend is a durable snapshot store.
type Backend interface {
	Load(ctx context.Context, userID string) (Record, error)
	Save(ctx context.Context, userID string, rec Record) error
	Delete(ctx context.Context, userID string) error
	Close() error
}

// ThreadsKey names the thread collection record of a user.
func ThreadsKey(userID string) string {
	return "chatThreads:" + userID
}

// ActiveKey names the active thread id record of a user.
func ActiveKey(userID string) string {
	return "activeThreadId:" + userID
}
