package localstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is a non-persistent OverrideStore/TechnicianMetaStore for
// tests and ephemeral sessions.
type MemoryStore struct {
	mu        sync.Mutex
	overrides map[string]ScheduleOverride
	meta      map[string]json.RawMessage
	maxAge    time.Duration
	now       func() time.Time
}

func NewMemoryStore(overrideMaxAge time.Duration) *MemoryStore {
	if overrideMaxAge <= 0 {
		overrideMaxAge = DefaultOverrideMaxAge
	}
	return &MemoryStore{
		overrides: map[string]ScheduleOverride{},
		meta:      map[string]json.RawMessage{},
		maxAge:    overrideMaxAge,
		now:       time.Now,
	}
}

// SetClock replaces the time source, for expiry tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Override(ctx context.Context, dispatchID string) (ScheduleOverride, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov, ok := s.overrides[dispatchID]
	if !ok {
		return ScheduleOverride{}, false, nil
	}
	if s.now().Sub(ov.SavedAt) > s.maxAge {
		delete(s.overrides, dispatchID)
		return ScheduleOverride{}, false, nil
	}
	return ov, true, nil
}

func (s *MemoryStore) PutOverride(ctx context.Context, dispatchID string, ov ScheduleOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ov.SavedAt.IsZero() {
		ov.SavedAt = s.now()
	}
	s.overrides[dispatchID] = ov
	return nil
}

func (s *MemoryStore) DeleteOverride(ctx context.Context, dispatchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, dispatchID)
	return nil
}

func (s *MemoryStore) TechnicianMeta(ctx context.Context, technicianID string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[technicianID]
	return m, ok, nil
}

func (s *MemoryStore) PutTechnicianMeta(ctx context.Context, technicianID string, meta json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[technicianID] = meta
	return nil
}
