package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zmmoly/modelcache/materialize"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	shardCount int = 16
)

// residentEntry is a materialized model held by the cache
// refs counts the cache itself plus every outstanding lease
type residentEntry struct {
	name       string
	handle     materialize.Handle
	usage      *usageEntry
	admittedAt time.Time

	refs      int64
	closeOnce sync.Once
}

func newResidentEntry(name string, handle materialize.Handle, usage *usageEntry, admittedAt time.Time) *residentEntry {
	return &residentEntry{
		name:       name,
		handle:     handle,
		usage:      usage,
		admittedAt: admittedAt,
		refs:       1,
	}
}

// tryRetain adds a reference unless the entry is already released
func (entry *residentEntry) tryRetain() bool {
	for {
		refs := atomic.LoadInt64(&entry.refs)
		if refs <= 0 {
			return false
		}

		if atomic.CompareAndSwapInt64(&entry.refs, refs, refs+1) {
			return true
		}
	}
}

// release drops a reference, the handle is closed with the last one
func (entry *residentEntry) release() {
	refs := atomic.AddInt64(&entry.refs, -1)
	if refs < 0 {
		panic(xerrors.Errorf("reference count of model %s dropped below zero", entry.name))
	}

	if refs == 0 {
		entry.closeOnce.Do(func() {
			logger := log.WithFields(log.Fields{
				"package":  "manager",
				"struct":   "residentEntry",
				"function": "release",
			})

			err := entry.handle.Close()
			if err != nil {
				logger.WithError(err).Errorf("failed to close model %s", entry.name)
				return
			}

			logger.Debugf("closed model %s", entry.name)
		})
	}
}

// pinnedUsage keeps the usage record of a name with an acquisition in progress
type pinnedUsage struct {
	usage *usageEntry
	pins  int
}

// shard holds resident entries and usage history of names hashed to it
type shard struct {
	resident map[string]*residentEntry
	// inflight pins usage records of names being acquired, so the history cannot drop them
	inflight map[string]*pinnedUsage
	// usage keeps usage history of recently requested names, resident or not
	usage *lru.Cache
	mutex sync.RWMutex
}

func newShard(usageHistorySize int) (*shard, error) {
	usage, err := lru.New(usageHistorySize)
	if err != nil {
		return nil, xerrors.Errorf("failed to create usage history: %w", err)
	}

	return &shard{
		resident: map[string]*residentEntry{},
		inflight: map[string]*pinnedUsage{},
		usage:    usage,
	}, nil
}

func (shard *shard) get(name string) *residentEntry {
	shard.mutex.RLock()
	defer shard.mutex.RUnlock()

	return shard.resident[name]
}

// lookupUsage returns the usage record of the name, creating one if absent
// resident and pinned records win over the history, which may have dropped them
// must be called with the write lock held
func (shard *shard) lookupUsage(name string) *usageEntry {
	var usage *usageEntry
	if entry, ok := shard.resident[name]; ok {
		usage = entry.usage
	} else if pinned, ok := shard.inflight[name]; ok {
		usage = pinned.usage
	} else if value, ok := shard.usage.Get(name); ok {
		usage = value.(*usageEntry)
	} else {
		usage = &usageEntry{}
	}

	shard.usage.Add(name, usage)
	return usage
}

func (shard *shard) getUsage(name string) *usageEntry {
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	return shard.lookupUsage(name)
}

// pinUsage returns the usage record of the name and keeps it until unpinUsage
func (shard *shard) pinUsage(name string) *usageEntry {
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	usage := shard.lookupUsage(name)

	pinned, ok := shard.inflight[name]
	if !ok {
		pinned = &pinnedUsage{
			usage: usage,
		}
		shard.inflight[name] = pinned
	}

	pinned.pins++
	return usage
}

func (shard *shard) unpinUsage(name string) {
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	pinned, ok := shard.inflight[name]
	if !ok {
		return
	}

	pinned.pins--
	if pinned.pins <= 0 {
		delete(shard.inflight, name)
	}
}

func (shard *shard) peekUsage(name string) (*usageEntry, bool) {
	shard.mutex.RLock()
	defer shard.mutex.RUnlock()

	if entry, ok := shard.resident[name]; ok {
		return entry.usage, true
	}

	if pinned, ok := shard.inflight[name]; ok {
		return pinned.usage, true
	}

	if value, ok := shard.usage.Peek(name); ok {
		return value.(*usageEntry), true
	}
	return nil, false
}

// insert adds the entry unless rejected returns true under the shard lock
func (shard *shard) insert(entry *residentEntry, rejected func() bool) bool {
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	if rejected() {
		return false
	}

	if _, ok := shard.resident[entry.name]; ok {
		// admissions are single-flight per name
		panic(xerrors.Errorf("model %s is already resident", entry.name))
	}

	shard.resident[entry.name] = entry
	return true
}

// remove removes the exact entry given, returns false if it is no longer resident
func (shard *shard) remove(entry *residentEntry) bool {
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	if current, ok := shard.resident[entry.name]; ok && current == entry {
		delete(shard.resident, entry.name)
		return true
	}
	return false
}

func (shard *shard) removeName(name string) *residentEntry {
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	entry, ok := shard.resident[name]
	if !ok {
		return nil
	}

	delete(shard.resident, name)
	return entry
}

func (shard *shard) removeAll() []*residentEntry {
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	entries := make([]*residentEntry, 0, len(shard.resident))
	for _, entry := range shard.resident {
		entries = append(entries, entry)
	}

	shard.resident = map[string]*residentEntry{}
	return entries
}

func (shard *shard) list() []*residentEntry {
	shard.mutex.RLock()
	defer shard.mutex.RUnlock()

	entries := make([]*residentEntry, 0, len(shard.resident))
	for _, entry := range shard.resident {
		entries = append(entries, entry)
	}
	return entries
}

// residentSet is the sharded set of resident entries
type residentSet struct {
	shards []*shard
	count  int64
}

func newResidentSet(usageHistorySize int) (*residentSet, error) {
	perShard := usageHistorySize / shardCount
	if perShard < 1 {
		perShard = 1
	}

	shards := make([]*shard, shardCount)
	for i := 0; i < shardCount; i++ {
		shard, err := newShard(perShard)
		if err != nil {
			return nil, err
		}
		shards[i] = shard
	}

	return &residentSet{
		shards: shards,
	}, nil
}

func (set *residentSet) shardFor(name string) *shard {
	return set.shards[xxhash.Sum64String(name)%uint64(shardCount)]
}

func (set *residentSet) get(name string) *residentEntry {
	return set.shardFor(name).get(name)
}

func (set *residentSet) insert(entry *residentEntry, rejected func() bool) bool {
	if !set.shardFor(entry.name).insert(entry, rejected) {
		return false
	}

	atomic.AddInt64(&set.count, 1)
	return true
}

func (set *residentSet) remove(entry *residentEntry) bool {
	if !set.shardFor(entry.name).remove(entry) {
		return false
	}

	atomic.AddInt64(&set.count, -1)
	return true
}

func (set *residentSet) removeName(name string) *residentEntry {
	entry := set.shardFor(name).removeName(name)
	if entry != nil {
		atomic.AddInt64(&set.count, -1)
	}
	return entry
}

func (set *residentSet) removeAll() []*residentEntry {
	entries := []*residentEntry{}
	for _, shard := range set.shards {
		removed := shard.removeAll()
		atomic.AddInt64(&set.count, -int64(len(removed)))
		entries = append(entries, removed...)
	}
	return entries
}

// snapshot lists resident entries of all shards
func (set *residentSet) snapshot() []*residentEntry {
	entries := []*residentEntry{}
	for _, shard := range set.shards {
		entries = append(entries, shard.list()...)
	}
	return entries
}

func (set *residentSet) size() int64 {
	return atomic.LoadInt64(&set.count)
}
