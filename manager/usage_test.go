package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsage(t *testing.T) {
	t.Run("test Score", testScore)
	t.Run("test ConcurrentRecord", testConcurrentRecord)
}

func testScore(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	fresh := UsageStats{AccessCount: 1, LastUsedAt: now}
	assert.Equal(t, 1.0, fresh.Score(now))

	old := UsageStats{AccessCount: 10, LastUsedAt: now.Add(-9 * time.Minute)}
	assert.Equal(t, 1.0, old.Score(now))

	half := UsageStats{AccessCount: 3, LastUsedAt: now.Add(-30 * time.Second)}
	assert.Equal(t, 2.0, half.Score(now))

	// decays toward zero
	assert.Less(t, old.Score(now.Add(time.Hour)), 0.2)

	never := UsageStats{}
	assert.Equal(t, 0.0, never.Score(now))
}

func testConcurrentRecord(t *testing.T) {
	usage := &usageEntry{}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	waitGroup := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for j := 0; j < 100; j++ {
				usage.record(now)
			}
		}()
	}
	waitGroup.Wait()

	stats := usage.snapshot()
	assert.Equal(t, int64(5000), stats.AccessCount)
	assert.Equal(t, now, stats.LastUsedAt)
}
