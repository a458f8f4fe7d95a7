package manager

import (
	"sort"

	"github.com/Zmmoly/modelcache/metrics"
	"github.com/Zmmoly/modelcache/utils"
	log "github.com/sirupsen/logrus"
)

type evictionCandidate struct {
	entry *residentEntry
	usage UsageStats
	score float64
}

// evictTo evicts the lowest scoring models until at most target models are resident
// exclude names a model being admitted, it is never chosen
// passes run one at a time on a snapshot of the resident set
func (manager *ModelManager) evictTo(target int, exclude string, reason string) int {
	manager.evictMutex.Lock()
	defer manager.evictMutex.Unlock()

	return manager.evictToLocked(target, exclude, reason)
}

// insertWithRoom makes room for the entry and inserts it in the same pass
// inserts and evictions never interleave, so resident count never exceeds capacity
// returns false if the manager is closed
func (manager *ModelManager) insertWithRoom(entry *residentEntry) bool {
	manager.evictMutex.Lock()
	defer manager.evictMutex.Unlock()

	manager.evictToLocked(manager.GetCapacity()-1, entry.name, metrics.ReasonAdmission)
	return manager.resident.insert(entry, manager.isClosed)
}

// evictToLocked must be called with evictMutex held
func (manager *ModelManager) evictToLocked(target int, exclude string, reason string) int {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"struct":   "ModelManager",
		"function": "evictToLocked",
	})

	if target < 0 {
		target = 0
	}

	entries := manager.resident.snapshot()
	excess := len(entries) - target
	if excess <= 0 {
		return 0
	}

	now := manager.clock.Now()
	candidates := make([]evictionCandidate, 0, len(entries))
	for _, entry := range entries {
		if entry.name == exclude {
			continue
		}

		usage := entry.usage.snapshot()
		candidates = append(candidates, evictionCandidate{
			entry: entry,
			usage: usage,
			score: usage.Score(now),
		})
	}

	sort.Slice(candidates, func(i int, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].entry.name < candidates[j].entry.name
	})

	evicted := 0
	for _, candidate := range candidates {
		if evicted >= excess {
			break
		}

		// it may have been released since the snapshot
		if !manager.resident.remove(candidate.entry) {
			continue
		}

		logger.Infof("evicting model %s - score %f, accessed %d times, last at %s (%s)", candidate.entry.name, candidate.score, candidate.usage.AccessCount, utils.MakeTimeToString(candidate.usage.LastUsedAt), reason)
		manager.metrics.ObserveEvent(metrics.EventEviction, reason)
		manager.metrics.ObserveOperation(metrics.OperationEvict, metrics.StatusOK)
		candidate.entry.release()
		evicted++
	}

	if evicted > 0 {
		manager.metrics.ObserveSizeChange(manager.resident.size())
	}
	return evicted
}
