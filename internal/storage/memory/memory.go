// Package memory provides an in-memory receipt store with the same contract
// as the SQLite store. It backs the "memory" data backend and the engine and
// service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentbook/internal/core"
)

type Store struct {
	mu       sync.Mutex
	receipts map[string]core.Receipt
	// clock skew between two inserts in the same nanosecond would make the
	// duplicate self-heal non-deterministic; a counter keeps created_at strict
	seq int64
}

func New() *Store {
	return &Store{receipts: make(map[string]core.Receipt)}
}

func (s *Store) Insert(_ context.Context, r core.Receipt) (core.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		s.seq++
		r.CreatedAt = time.Now().UTC().Add(time.Duration(s.seq) * time.Nanosecond)
	}
	s.receipts[r.ID] = r
	return r, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.receipts[id]
	if !ok {
		return core.Receipt{}, core.ErrNotFound
	}
	return r, nil
}

func (s *Store) Query(_ context.Context, f core.ReceiptFilter) ([]core.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Receipt
	for _, r := range s.receipts {
		if !matches(r, f) {
			continue
		}
		out = append(out, r)
	}

	// receipt_date DESC, created_at DESC, matching the SQLite ordering
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceiptDate.Equal(out[j].ReceiptDate.Time) {
			return out[i].ReceiptDate.After(out[j].ReceiptDate.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, r core.Receipt) (core.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.receipts[r.ID]
	if !ok {
		return core.Receipt{}, core.ErrNotFound
	}
	r.CreatedAt = existing.CreatedAt
	s.receipts[r.ID] = r
	return r, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.receipts[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.receipts, id)
	return nil
}

func matches(r core.Receipt, f core.ReceiptFilter) bool {
	if len(f.TenantIn) > 0 && !contains(f.TenantIn, r.TenantName) {
		return false
	}
	if contains(f.TenantNotIn, r.TenantName) {
		return false
	}
	if !f.From.IsZero() && r.ReceiptDate.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && r.ReceiptDate.After(f.To.Time) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
