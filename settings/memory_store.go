package settings

import "sync"

// MemoryStore implements Store in memory, nothing survives a restart
type MemoryStore struct {
	maxResident    int
	hasMaxResident bool
	mutex          sync.Mutex
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Close does nothing
func (store *MemoryStore) Close() error {
	return nil
}

// GetMaxResident returns the stored maximum number of resident models
func (store *MemoryStore) GetMaxResident() (int, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	return store.maxResident, store.hasMaxResident, nil
}

// SetMaxResident stores the maximum number of resident models
func (store *MemoryStore) SetMaxResident(maxResident int) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.maxResident = maxResident
	store.hasMaxResident = true
	return nil
}
