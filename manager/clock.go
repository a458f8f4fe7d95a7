package manager

import "time"

// Clock tells the current time, replaceable in tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystemClock returns a Clock that reads wall-clock time
func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}
