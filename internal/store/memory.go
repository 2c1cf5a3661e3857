package store

import (
	"context"
	"sync"
	"time"

	"incident-detector/internal/model"
)

// Memory is a process-local backing. State does not survive the process, so
// it only deduplicates within one pass; it is meant for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]model.CooldownRecord
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]model.CooldownRecord)}
}

// Reserve implements Store.
func (m *Memory) Reserve(_ context.Context, entityID string, now time.Time, cooldown time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[entityID]; ok && rec.Suppresses(now, cooldown) {
		return false, nil
	}
	m.records[entityID] = model.CooldownRecord{EntityID: entityID, LastAlert: now}
	return true, nil
}

// Last implements Store.
func (m *Memory) Last(_ context.Context, entityID string) (*model.CooldownRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[entityID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
