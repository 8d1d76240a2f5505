// Package store defines the ports the return service and HTTP layer use to
// reach a backing store, plus the errors every implementation shares.
package store

import (
	"context"
	"errors"

	"taxprep/internal/core"
)

var (
	ErrNotFound        = errors.New("return not found")
	ErrVersionConflict = errors.New("return was modified concurrently")
	ErrCompleted       = errors.New("return is completed and read-only")
	ErrNoResults       = errors.New("no calculated results saved for return")
)

// Ports for the return store.
type (
	ReturnCreator interface {
		// CreateReturn starts a new in-progress return for a tax year.
		CreateReturn(ctx context.Context, taxYear int) (*core.TaxRecord, error)
	}

	ReturnReader interface {
		GetReturn(ctx context.Context, id int64) (*core.TaxRecord, error)
		// ListReturns returns non-deleted returns, newest first. A zero
		// taxYear lists every year.
		ListReturns(ctx context.Context, taxYear int) ([]*core.TaxRecord, error)
	}

	ReturnWriter interface {
		// UpdateReturn persists the record if rec.Version still matches the
		// stored row, then bumps the version. Completed returns are
		// read-only.
		UpdateReturn(ctx context.Context, rec *core.TaxRecord) (*core.TaxRecord, error)
		// DeleteReturn soft deletes; the row stays for audit.
		DeleteReturn(ctx context.Context, id int64) error
		// CompleteReturn transitions in_progress -> completed.
		CompleteReturn(ctx context.Context, id int64) (*core.TaxRecord, error)
	}

	ResultsStore interface {
		// SaveResults stores the snapshot for the given record version,
		// replacing any earlier snapshot.
		SaveResults(ctx context.Context, returnID, version int64, results core.CalculatedResults) error
		GetResults(ctx context.Context, returnID int64) (core.CalculatedResults, error)
	}

	// SweepLister feeds the worker's startup and periodic sweeps.
	SweepLister interface {
		// ListCompletedWithoutResults returns completed returns whose
		// current version has no saved snapshot.
		ListCompletedWithoutResults(ctx context.Context, limit int) ([]*core.TaxRecord, error)
	}
)

// Store is the full backend surface the factory hands out.
type Store interface {
	ReturnCreator
	ReturnReader
	ReturnWriter
	ResultsStore
	SweepLister
}
