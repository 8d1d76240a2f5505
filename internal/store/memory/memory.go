// Package memory is the in-memory return store used for development and
// tests. It implements the same ports as the SQLite repository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"taxprep/internal/core"
	"taxprep/internal/store"
)

type resultRow struct {
	version int64
	results core.CalculatedResults
}

type Store struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*core.TaxRecord
	deleted map[int64]bool
	results map[int64]resultRow
	// now is swappable so tests get stable timestamps.
	now func() time.Time
}

func New() *Store {
	return &Store{
		nextID:  1,
		records: make(map[int64]*core.TaxRecord),
		deleted: make(map[int64]bool),
		results: make(map[int64]resultRow),
		now:     time.Now,
	}
}

func (s *Store) CreateReturn(_ context.Context, taxYear int) (*core.TaxRecord, error) {
	rec := &core.TaxRecord{
		TaxYear: taxYear,
		State:   core.InProgress,
		Version: 1,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	rec.ID = s.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.nextID++
	s.records[rec.ID] = rec
	return clone(rec), nil
}

func (s *Store) GetReturn(_ context.Context, id int64) (*core.TaxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || s.deleted[id] {
		return nil, store.ErrNotFound
	}
	return clone(rec), nil
}

func (s *Store) ListReturns(_ context.Context, taxYear int) ([]*core.TaxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.TaxRecord
	for id, rec := range s.records {
		if s.deleted[id] {
			continue
		}
		if taxYear != 0 && rec.TaxYear != taxYear {
			continue
		}
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) UpdateReturn(_ context.Context, rec *core.TaxRecord) (*core.TaxRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[rec.ID]
	if !ok || s.deleted[rec.ID] {
		return nil, store.ErrNotFound
	}
	if current.State == core.Completed {
		return nil, store.ErrCompleted
	}
	if current.Version != rec.Version {
		return nil, store.ErrVersionConflict
	}

	updated := clone(rec)
	updated.State = current.State
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = s.now().UTC()
	updated.Version = current.Version + 1
	s.records[rec.ID] = updated
	return clone(updated), nil
}

func (s *Store) DeleteReturn(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok || s.deleted[id] {
		return store.ErrNotFound
	}
	s.deleted[id] = true
	return nil
}

func (s *Store) CompleteReturn(_ context.Context, id int64) (*core.TaxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || s.deleted[id] {
		return nil, store.ErrNotFound
	}
	if rec.State == core.Completed {
		return nil, store.ErrCompleted
	}
	rec.State = core.Completed
	rec.UpdatedAt = s.now().UTC()
	rec.Version++
	return clone(rec), nil
}

func (s *Store) SaveResults(_ context.Context, returnID, version int64, results core.CalculatedResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[returnID]; !ok || s.deleted[returnID] {
		return store.ErrNotFound
	}
	results.CalculatedAt = s.now().UTC()
	s.results[returnID] = resultRow{version: version, results: results}
	return nil
}

func (s *Store) GetResults(_ context.Context, returnID int64) (core.CalculatedResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.results[returnID]
	if !ok || s.deleted[returnID] {
		return core.CalculatedResults{}, store.ErrNoResults
	}
	return row.results, nil
}

func (s *Store) ListCompletedWithoutResults(_ context.Context, limit int) ([]*core.TaxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.TaxRecord
	for id, rec := range s.records {
		if s.deleted[id] || rec.State != core.Completed {
			continue
		}
		if row, ok := s.results[id]; ok && row.version == rec.Version {
			continue
		}
		out = append(out, clone(rec))
	}
	// Sort before truncating; cutting mid-iteration would hand each sweep an
	// arbitrary subset of a backlog larger than the batch.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// clone deep-copies a record so callers never share slices with the store.
func clone(rec *core.TaxRecord) *core.TaxRecord {
	out := *rec
	out.Income.Items = append([]core.IncomeItem(nil), rec.Income.Items...)
	out.Deductions.Items = append([]core.DeductionItem(nil), rec.Deductions.Items...)
	out.Credits.Items = append([]core.CreditItem(nil), rec.Credits.Items...)
	return &out
}
