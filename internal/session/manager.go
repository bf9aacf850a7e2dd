// Package session maps transport identities (channel + chat id) to
// per-conversation assistants. Each session owns exactly one assistant and
// its confirmation state; transports serialize message handling per session
// through the assistant's own lock.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"alfred/internal/assistant"
)

// Factory builds a fresh assistant for a new session.
type Factory func() *assistant.Assistant

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*assistant.Assistant
	factory  Factory
	logger   *slog.Logger
}

func NewManager(factory Factory, logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*assistant.Assistant),
		factory:  factory,
		logger:   logger,
	}
}

// Key derives the canonical session key for a transport identity.
func Key(channel, chatID string) string {
	return fmt.Sprintf("%s:%s", channel, chatID)
}

// Get returns the assistant for key, creating one on first use.
func (m *Manager) Get(key string) *assistant.Assistant {
	// Fast path: read lock (most calls hit here)
	m.mu.RLock()
	a, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		return a
	}

	// Slow path: write lock, double-check
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.sessions[key]; ok {
		return a
	}

	a = m.factory()
	m.sessions[key] = a
	m.logger.Info("session created", "session", key)
	return a
}

// Clear drops the session so the next message starts fresh.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; ok {
		delete(m.sessions, key)
		m.logger.Info("session cleared", "session", key)
	}
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Keys returns the live session keys in unspecified order.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	return keys
}
