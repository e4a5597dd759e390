package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory. Abandoned sessions
// live until explicitly cleared; acceptable for single-instance runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*record
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*record)}
}

func (m *MemoryStore) State(_ context.Context, sid string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sid]
	if !ok {
		return "", nil
	}
	return rec.State, nil
}

func (m *MemoryStore) SetState(_ context.Context, sid, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(sid).State = state
	return nil
}

func (m *MemoryStore) SetValue(_ context.Context, sid, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.ensure(sid)
	rec.Data[key] = value
	return nil
}

func (m *MemoryStore) Data(_ context.Context, sid string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sid]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(rec.Data))
	for k, v := range rec.Data {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

// ensure must be called with the write lock held.
func (m *MemoryStore) ensure(sid string) *record {
	rec, ok := m.sessions[sid]
	if !ok {
		rec = &record{Data: make(map[string]string)}
		m.sessions[sid] = rec
	}
	return rec
}
