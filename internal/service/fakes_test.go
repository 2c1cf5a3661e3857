package service

import (
	"context"
	"sync"
	"time"

	"incident-detector/internal/model"
)

// =============================================================================
// Test doubles
// =============================================================================

// fakeSource serves readings from a map keyed by entity and metric.
// Missing keys mean "no data"; errs entries fail the fetch.
type fakeSource struct {
	mu       sync.Mutex
	values   map[string]map[model.MetricName]float64
	errs     map[string]map[model.MetricName]error
	block    map[string]bool
	requests int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		values: make(map[string]map[model.MetricName]float64),
		errs:   make(map[string]map[model.MetricName]error),
		block:  make(map[string]bool),
	}
}

func (f *fakeSource) set(entity string, metric model.MetricName, value float64) *fakeSource {
	if f.values[entity] == nil {
		f.values[entity] = make(map[model.MetricName]float64)
	}
	f.values[entity][metric] = value
	return f
}

func (f *fakeSource) fail(entity string, metric model.MetricName, err error) *fakeSource {
	if f.errs[entity] == nil {
		f.errs[entity] = make(map[model.MetricName]error)
	}
	f.errs[entity][metric] = err
	return f
}

func (f *fakeSource) Average(ctx context.Context, metric model.TrackedMetric, entityID string, _ time.Duration) (float64, bool, error) {
	f.mu.Lock()
	f.requests++
	blocked := f.block[entityID]
	err := f.errs[entityID][metric.Name]
	v, ok := f.values[entityID][metric.Name]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return 0, false, ctx.Err()
	}
	if err != nil {
		return 0, false, err
	}
	return v, ok, nil
}

// countingStore is an in-memory CooldownStore that records every call.
type countingStore struct {
	mu    sync.Mutex
	last  map[string]time.Time
	calls map[string]int
	err   error
}

func newCountingStore() *countingStore {
	return &countingStore{
		last:  make(map[string]time.Time),
		calls: make(map[string]int),
	}
}

func (s *countingStore) Reserve(_ context.Context, entityID string, now time.Time, cooldown time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[entityID]++
	if s.err != nil {
		return false, s.err
	}
	if last, ok := s.last[entityID]; ok && now.Sub(last) < cooldown {
		return false, nil
	}
	s.last[entityID] = now
	return true, nil
}

func (s *countingStore) callCount(entityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[entityID]
}

// recordingNotifier keeps every message; err fails every send.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.err
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fakeForensics struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls []string
}

func (f *fakeForensics) CaptureAll(_ context.Context, entityID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, entityID)
	return f.ids, f.err
}

type fakePlaybook struct {
	mu       sync.Mutex
	payloads []model.PlaybookPayload
	err      error
}

func (f *fakePlaybook) Start(_ context.Context, payload model.PlaybookPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.err
}
