package registry

import (
	"context"
	"sync"

	"tasmota_mqtt/internal/models"
)

// MemoryStore keeps settings in memory. Err, when set, is returned by Save.
type MemoryStore struct {
	mu    sync.Mutex
	s     models.Settings
	saves int
	Err   error
}

func NewMemoryStore(s models.Settings) *MemoryStore {
	return &MemoryStore{s: s.Clone()}
}

func (m *MemoryStore) Load(ctx context.Context) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, s models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.s = s.Clone()
	m.saves++
	return nil
}

// Saves returns how many successful writes the store has seen.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
