// Package conversation tracks lightweight per-conversation metadata in
// process memory. It does not persist anything: progressive parameter
// state lives in internal/store, not here.
package conversation

import (
	"sync"
	"time"
)

// Metadata is what the manager remembers about one conversation id.
type Metadata struct {
	ConversationID string
	CallerEmail    string
	LastEndpointID string
	LastIntent     string
	TurnCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Manager owns conversation metadata for the life of the process. Reads
// are non-blocking with respect to each other; writes are briefly
// exclusive.
type Manager struct {
	mu   sync.RWMutex
	rows map[string]Metadata
	now  func() time.Time
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{
		rows: make(map[string]Metadata),
		now:  time.Now,
	}
}

// Touch records one turn for id, creating the row on first use.
func (m *Manager) Touch(id, callerEmail, endpointID, intent string) Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, exists := m.rows[id]
	if !exists {
		row = Metadata{ConversationID: id, CreatedAt: m.now()}
	}
	row.CallerEmail = callerEmail
	row.LastEndpointID = endpointID
	row.LastIntent = intent
	row.TurnCount++
	row.UpdatedAt = m.now()
	m.rows[id] = row
	return row
}

// Get returns the metadata for id and whether it was found.
func (m *Manager) Get(id string) (Metadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	return row, ok
}

// Forget removes a conversation's metadata, e.g. once its progressive
// match completes.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
}

// Count reports how many conversations are currently tracked.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
