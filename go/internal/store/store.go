package store

import (
	"github.com/pitdev14/workgp/go/internal/models"
)

// Store is the persistent key-value adapter: one document holding every
// user's records, and a separate current-user pointer. Writes are wholesale;
// the last writer wins.
type Store interface {
	// Load returns the persisted state document. A missing or unreadable
	// document is recovered as an empty state, never an error surfaced to
	// the caller.
	Load() *models.State
	// Save persists the full state document.
	Save(state *models.State) error

	// CurrentUser returns the logged-in username, or "" when logged out.
	CurrentUser() string
	// SetCurrentUser records the logged-in username. Empty clears it.
	SetCurrentUser(username string) error
}
