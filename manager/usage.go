package manager

import (
	"sync"
	"time"

	"github.com/Zmmoly/modelcache/utils"
)

// UsageStats is a snapshot of how often and how recently a model was requested
type UsageStats struct {
	AccessCount int64
	LastUsedAt  time.Time
}

// Score returns accessCount / (minutesSinceLastUse + 1), higher means hotter
func (stats UsageStats) Score(now time.Time) float64 {
	minutes := utils.GetElapsedMinutes(stats.LastUsedAt, now)
	return float64(stats.AccessCount) / (minutes + 1)
}

// usageEntry is the mutable usage record of a name
type usageEntry struct {
	accessCount int64
	lastUsedAt  time.Time
	mutex       sync.Mutex
}

func (usage *usageEntry) record(now time.Time) {
	usage.mutex.Lock()
	defer usage.mutex.Unlock()

	usage.accessCount++
	usage.lastUsedAt = now
}

func (usage *usageEntry) snapshot() UsageStats {
	usage.mutex.Lock()
	defer usage.mutex.Unlock()

	return UsageStats{
		AccessCount: usage.accessCount,
		LastUsedAt:  usage.lastUsedAt,
	}
}
