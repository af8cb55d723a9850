package readstate

import (
	"context"
	"sync"
	"time"
)

// MemStore is the in-memory Store used by tests and local runs. The merge
// rule is the same as the Postgres version: greatest-wins by value.
type MemStore struct {
	mu    sync.RWMutex
	rows  map[string]*Receipt // key -> row
	now   func() time.Time
	upErr error
}

func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]*Receipt), now: time.Now}
}

// WithClock injects the clock; for staleness tests.
func (s *MemStore) WithClock(now func() time.Time) *MemStore {
	s.now = now
	return s
}

// FailUpserts makes UpsertGreatest return err (durable-store outage).
func (s *MemStore) FailUpserts(err error) {
	s.mu.Lock()
	s.upErr = err
	s.mu.Unlock()
}

func (s *MemStore) UpsertGreatest(_ context.Context, rows []Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upErr != nil {
		return s.upErr
	}
	for _, r := range rows {
		k := Event{UserID: r.UserID, ChannelID: r.ChannelID}.Key()
		cur, ok := s.rows[k]
		if ok && r.LastRead < cur.LastRead {
			continue
		}
		s.rows[k] = &Receipt{
			UserID:    r.UserID,
			ChannelID: r.ChannelID,
			LastRead:  r.LastRead,
			UpdatedAt: s.now(),
		}
	}
	return nil
}

func (s *MemStore) Get(_ context.Context, userID string, channelID int64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[Event{UserID: userID, ChannelID: channelID}.Key()]
	if !ok {
		return "", false, nil
	}
	return r.LastRead, true, nil
}

func (s *MemStore) SelectStale(_ context.Context, cutoff time.Time, limit int) ([]Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 1000
	}
	var out []Receipt
	for _, r := range s.rows {
		if r.UpdatedAt.Before(cutoff) {
			out = append(out, *r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// MemMarker is the in-memory MarkerStore.
type MemMarker struct {
	mu   sync.RWMutex
	vals map[string]string
}

func NewMemMarker() *MemMarker {
	return &MemMarker{vals: make(map[string]string)}
}

func (m *MemMarker) Set(_ context.Context, userID string, channelID int64, timestampID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[Event{UserID: userID, ChannelID: channelID}.Key()] = timestampID
	return nil
}

func (m *MemMarker) Get(_ context.Context, userID string, channelID int64) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[Event{UserID: userID, ChannelID: channelID}.Key()]
	return v, ok, nil
}

// Evict drops a marker (cache eviction simulation).
func (m *MemMarker) Evict(userID string, channelID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, Event{UserID: userID, ChannelID: channelID}.Key())
}
