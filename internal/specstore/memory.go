package specstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/fyrsmithlabs/switchboard/internal/registry"
)

// MemoryStore is a mutex-guarded in-memory registry.Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]registry.Record
	now     func() time.Time
}

// NewMemoryStore creates a store holding records.
func NewMemoryStore(records ...registry.Record) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]registry.Record, len(records)),
		now:     time.Now,
	}
	for _, r := range records {
		s.Put(r)
	}
	return s
}

// Put inserts or replaces a record. A zero UpdatedAt is stamped with the
// current time so caches can tell the definition changed.
func (s *MemoryStore) Put(r registry.Record) {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}
	r.Keywords = slices.Clone(r.Keywords)

	s.mu.Lock()
	s.records[r.ID] = r
	s.mu.Unlock()
}

// Delete removes a record. Deleting an absent id is a no-op.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
}

// ListSpecialists returns all records ordered by id.
func (s *MemoryStore) ListSpecialists(ctx context.Context) ([]registry.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]registry.Record, 0, len(s.records))
	for _, r := range s.records {
		r.Keywords = slices.Clone(r.Keywords)
		out = append(out, r)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b registry.Record) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetSpecialist returns one record, or nil, nil when absent.
func (s *MemoryStore) GetSpecialist(ctx context.Context, id string) (*registry.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	r, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	r.Keywords = slices.Clone(r.Keywords)
	return &r, nil
}
