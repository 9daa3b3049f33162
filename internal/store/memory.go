package store

import (
	"context"
	"sort"
	"sync"

	"github.com/inkmark/inkmark-backend/internal/types"
)

// MemoryStore keeps conversions in process memory. It backs
// PERSISTENCE_MODE=memory and the test suites; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	nextSeq int64
	seqs    map[string]int64
	records map[string]types.Conversion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextSeq: 1,
		seqs:    map[string]int64{},
		records: map[string]types.Conversion{},
	}
}

func (s *MemoryStore) Create(ctx context.Context, c *types.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[c.ID] = s.nextSeq
	s.nextSeq++
	s.records[c.ID] = *c
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*types.Conversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*types.Conversion, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]types.Conversion, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return s.seqs[all[i].ID] > s.seqs[all[j].ID]
	})

	total := int64(len(all))
	if offset >= len(all) {
		return []*types.Conversion{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]*types.Conversion, 0, end-offset)
	for i := offset; i < end; i++ {
		cp := all[i]
		page = append(page, &cp)
	}
	return page, total, nil
}

func (s *MemoryStore) Update(ctx context.Context, c *types.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[c.ID]; !ok {
		return ErrNotFound
	}
	s.records[c.ID] = *c
	return nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	delete(s.seqs, id)
	return nil
}
