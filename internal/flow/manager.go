package flow

import (
	"log/slog"
	"sync"

	"github.com/cardiolab/afdash/internal/analysis"
)

// Manager hands out one Controller per (user, mode) pair, created lazily on
// first use. Controllers live for the length of the process; their held
// results are transient session state, never persisted.
type Manager struct {
	modes   map[analysis.Mode]analysis.ModeConfig
	backend Backend
	store   RecordStore
	notify  Notifier
	log     *slog.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewManager creates a Manager for the configured mode set.
func NewManager(modes map[analysis.Mode]analysis.ModeConfig, backend Backend, store RecordStore, notify Notifier, log *slog.Logger) *Manager {
	return &Manager{
		modes:       modes,
		backend:     backend,
		store:       store,
		notify:      notify,
		log:         log,
		controllers: make(map[string]*Controller),
	}
}

// Get returns the controller for the given user and mode, or false when the
// mode is not configured.
func (m *Manager) Get(userID string, mode analysis.Mode) (*Controller, bool) {
	cfg, ok := m.modes[mode]
	if !ok {
		return nil, false
	}

	key := userID + "/" + string(mode)

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.controllers[key]; ok {
		return c, true
	}
	c := NewController(cfg, m.backend, m.store, m.notify, userID, m.log)
	m.controllers[key] = c
	return c, true
}

// Drop discards all of a user's controllers, e.g. on logout.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.controllers {
		if len(key) > len(userID) && key[:len(userID)] == userID && key[len(userID)] == '/' {
			delete(m.controllers, key)
		}
	}
}
