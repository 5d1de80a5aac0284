package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitdev14/workgp/go/internal/models"
)

func TestFileStoreSaveLoad(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	state := models.NewState()
	state.Users["alice"] = &models.User{
		Username: "alice",
		Points:   30,
		Friends:  []string{"bob"},
		Records:  map[string]models.DayRecord{},
	}
	require.NoError(t, fs.Save(state))

	loaded := fs.Load()
	require.Contains(t, loaded.Users, "alice")
	assert.Equal(t, 30, loaded.Users["alice"].Points)
	assert.Equal(t, []string{"bob"}, loaded.Users["alice"].Friends)
}

func TestFileStoreMissingFileIsEmptyState(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	state := fs.Load()
	require.NotNil(t, state)
	assert.Empty(t, state.Users)
}

func TestFileStoreMalformedJSONRecoversEmpty(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte("{not json"), 0o660))

	state := fs.Load()
	require.NotNil(t, state)
	assert.Empty(t, state.Users)
}

func TestFileStoreSession(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "", fs.CurrentUser())

	require.NoError(t, fs.SetCurrentUser("alice"))
	assert.Equal(t, "alice", fs.CurrentUser())

	require.NoError(t, fs.SetCurrentUser(""))
	assert.Equal(t, "", fs.CurrentUser())
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ms := NewMemoryStore()

	state := ms.Load()
	assert.Empty(t, state.Users)

	state.Users["bob"] = &models.User{Username: "bob"}
	require.NoError(t, ms.Save(state))

	// Load returns a copy: mutating it without Save must not leak back.
	loaded := ms.Load()
	loaded.Users["bob"].Points = 99
	assert.Equal(t, 0, ms.Load().Users["bob"].Points)
}
