package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings(t *testing.T) {
	t.Run("test BoltStorePersists", testBoltStorePersists)
	t.Run("test BoltStoreClosed", testBoltStoreClosed)
	t.Run("test MemoryStore", testMemoryStore)
}

func testBoltStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")

	store, err := NewBoltStore(path)
	require.NoError(t, err)

	_, ok, err := store.GetMaxResident()
	assert.NoError(t, err)
	assert.False(t, ok)

	err = store.SetMaxResident(7)
	assert.NoError(t, err)
	assert.NoError(t, store.Close())

	// reopen, as a restarted process would
	reopened, err := NewBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.GetMaxResident()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, value)
}

func testBoltStoreClosed(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	// closing twice is fine
	assert.NoError(t, store.Close())

	_, _, err = store.GetMaxResident()
	assert.Error(t, err)
	assert.Error(t, store.SetMaxResident(3))
}

func testMemoryStore(t *testing.T) {
	var store Store = NewMemoryStore()

	_, ok, err := store.GetMaxResident()
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, store.SetMaxResident(2))

	value, ok, err := store.GetMaxResident()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, value)
}
