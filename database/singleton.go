package database

import (
	"log"
	"sync"

	"github.com/kinnevo/fastinnovation-api/config"
)

// Manager hands out one shared Storage per process. Initialization is lazy
// and guarded: concurrent first callers block on one connection attempt, and
// a failed attempt leaves the manager clean for the next try.
type Manager struct {
	mu    sync.Mutex
	store Storage
	env   *config.EnviornmentVariable
}

func NewManager(getEnv *config.EnviornmentVariable) *Manager {
	return &Manager{env: getEnv}
}

// Get returns the shared store, connecting on first use.
func (m *Manager) Get() (Storage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		return m.store, nil
	}

	store, err := NewStorage(m.env)
	if err != nil {
		return nil, err
	}
	m.store = store
	return m.store, nil
}

// Reset closes the shared store and forgets it, so the next Get reconnects.
// Used by tests and by recovery paths after a fatal pool error.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	if err != nil {
		log.Println("[Database] error closing store during reset:", err)
	}
	return err
}
