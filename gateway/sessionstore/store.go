// Package sessionstore defines the persistence contract for session
// records. The store is the single source of truth for session liveness;
// no other component caches it.
package sessionstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no record exists for the given session id.
var ErrNotFound = errors.New("session record not found")

// Record is the durable state of one session. Live transport state stays
// process-local; only what is needed to answer "is this session alive" and
// to validate follow-up messages is recorded here.
type Record struct {
	ID              string    `json:"id"`
	ProtocolVersion string    `json:"protocolVersion,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store persists session records.
type Store interface {
	// Put creates or replaces the record for rec.ID.
	Put(ctx context.Context, rec Record) error
	// Get returns the record for id or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
	// Delete removes the record for id and reports whether one existed.
	// Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) (bool, error)
}
