package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pitdev14/workgp/go/internal/models"
)

// FileStore persists the state document as a single JSON file, with the
// current-user pointer in a sibling file. Every Save rewrites the whole
// document.
type FileStore struct {
	statePath   string
	sessionPath string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{
		statePath:   filepath.Join(dir, "users.json"),
		sessionPath: filepath.Join(dir, "session"),
	}, nil
}

// Load reads the state document. Missing or malformed JSON is logged and
// recovered as an empty state.
func (f *FileStore) Load() *models.State {
	bs, err := os.ReadFile(f.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("path", f.statePath).Msg("failed to read state file")
		}
		return models.NewState()
	}

	var state models.State
	if err := json.Unmarshal(bs, &state); err != nil {
		log.Error().Err(err).Str("path", f.statePath).Msg("malformed state file, starting empty")
		return models.NewState()
	}
	if state.Users == nil {
		state.Users = make(map[string]*models.User)
	}
	return &state
}

// Save writes the full state document.
func (f *FileStore) Save(state *models.State) error {
	bs, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(f.statePath, bs, 0o660); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// CurrentUser returns the persisted session username, or "" when absent.
func (f *FileStore) CurrentUser() string {
	bs, err := os.ReadFile(f.sessionPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(bs))
}

// SetCurrentUser records the session username; empty clears the session.
func (f *FileStore) SetCurrentUser(username string) error {
	if username == "" {
		if err := os.Remove(f.sessionPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear session: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(f.sessionPath, []byte(username), 0o660); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
