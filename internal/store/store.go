// Package store persists session records. Memory is the default backend;
// Postgres keeps records across restarts.
package store

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("session not found")
var ErrExists = errors.New("session already exists")

type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, code string) (Record, error)
	// Update merges p into the stored record and returns the result.
	Update(ctx context.Context, code string, p Patch) (Record, error)
	Delete(ctx context.Context, code string) error
}

type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Create(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Code]; ok {
		return ErrExists
	}
	m.records[rec.Code] = rec.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, code string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[code]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Update(_ context.Context, code string, p Patch) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[code]
	if !ok {
		return Record{}, ErrNotFound
	}
	merged := rec.Merge(p)
	m.records[code] = merged
	return merged.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[code]; !ok {
		return ErrNotFound
	}
	delete(m.records, code)
	return nil
}
