package store

import (
	"encoding/json"
	"sync"

	"github.com/pitdev14/workgp/go/internal/models"
)

// MemoryStore keeps the state document in process memory. Used for tests
// and for running without a data directory.
type MemoryStore struct {
	mu      sync.Mutex
	raw     []byte
	session string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() *models.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.raw == nil {
		return models.NewState()
	}
	var state models.State
	if err := json.Unmarshal(m.raw, &state); err != nil {
		return models.NewState()
	}
	if state.Users == nil {
		state.Users = make(map[string]*models.User)
	}
	return &state
}

func (m *MemoryStore) Save(state *models.State) error {
	bs, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.raw = bs
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CurrentUser() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *MemoryStore) SetCurrentUser(username string) error {
	m.mu.Lock()
	m.session = username
	m.mu.Unlock()
	return nil
}
