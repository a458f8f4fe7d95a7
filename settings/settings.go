package settings

// Store keeps settings that survive process restarts
type Store interface {
	Close() error

	// GetMaxResident returns the persisted maximum number of resident models
	// the second return value is false when nothing has been persisted yet
	GetMaxResident() (int, bool, error)
	SetMaxResident(maxResident int) error
}
