// Package sessionstore persists conversation transcripts across widget
// reconnects. A session record ties a socket session to its bot and holds
// the transcript so a reconnecting widget can resume where it left off.
package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/lordofthechatbot/server/domain/entities"
)

var (
	// ErrNotFound is returned when a session record does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidConfig is returned when a driver is missing required options.
	ErrInvalidConfig = errors.New("invalid session store configuration")
	// ErrInvalidStoreType is returned for unknown driver names.
	ErrInvalidStoreType = errors.New("invalid session store type")
)

// Record is the serializable state of one widget session.
type Record struct {
	ID         string             `json:"id"`
	BotID      string             `json:"bot_id"`
	Transcript []entities.Message `json:"transcript"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Store persists session records.
type Store interface {
	// Save creates or replaces a session record.
	Save(ctx context.Context, record *Record) error

	// Get retrieves a session record. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes a session record.
	Delete(ctx context.Context, id string) error

	// Close releases the store's resources.
	Close() error
}
