package backend

import (
	"context"

	"taxprep/internal/amqp"
	"taxprep/internal/store"
)

// CleanupFunc releases the resources a backend holds.
type CleanupFunc func() error

// Result contains the store instance, the optional AMQP client, and an
// optional cleanup function.
type Result struct {
	Store   store.Store
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type Type

	// SQLite specific
	SQLiteDBPath string

	// AMQP (optional for either backend)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Type represents the kind of backing store
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
