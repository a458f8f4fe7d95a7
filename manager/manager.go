package manager

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Zmmoly/modelcache/config"
	"github.com/Zmmoly/modelcache/fetch"
	"github.com/Zmmoly/modelcache/locator"
	"github.com/Zmmoly/modelcache/materialize"
	"github.com/Zmmoly/modelcache/metrics"
	"github.com/Zmmoly/modelcache/settings"
	"github.com/Zmmoly/modelcache/utils"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/xerrors"
)

// Locator resolves model names to local files or download URLs
type Locator interface {
	Resolve(name string) locator.Location
	Register(name string, path string)
	Refresh()
	ListKnown() []string
}

// Dependencies are collaborators of ModelManager, nil fields get defaults
type Dependencies struct {
	Locator      Locator
	Fetcher      fetch.Fetcher
	Materializer materialize.Materializer
	Settings     settings.Store
	Clock        Clock
	Metrics      *metrics.Metrics
}

// ModelManager loads, shares, bounds and evicts models by name
type ModelManager struct {
	config       *config.Config
	locator      Locator
	fetcher      fetch.Fetcher
	materializer materialize.Materializer
	settings     settings.Store
	clock        Clock
	metrics      *metrics.Metrics

	resident *residentSet
	capacity int64
	closed   int32

	admissionGroup singleflight.Group
	fetchGroup     singleflight.Group
	evictMutex     sync.Mutex

	// background work (fetches, preloads) stops when ctx is cancelled
	ctx            context.Context
	cancel         context.CancelFunc
	preloadWaiter  sync.WaitGroup
	preloadMutex   sync.Mutex
	shutdownOnce   sync.Once
	shutdownResult error
}

// NewModelManager creates a new ModelManager with default collaborators
// constructor builds runtime instances from mapped model bytes and can be nil
// metrics are registered to registerer if it is not nil
func NewModelManager(cfg *config.Config, constructor materialize.Constructor, registerer prometheus.Registerer) (*ModelManager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid configuration: %w", err)
	}

	store, err := settings.NewBoltStore(cfg.GetSettingsPath())
	if err != nil {
		return nil, err
	}

	managerMetrics := metrics.NewMetrics(registerer)

	manager, err := NewModelManagerWithDependencies(cfg, Dependencies{
		Locator:      locator.NewLocator(cfg, nil),
		Fetcher:      fetch.NewHTTPFetcher(cfg.FetchTimeout, managerMetrics),
		Materializer: materialize.NewMmapMaterializer(constructor),
		Settings:     store,
		Metrics:      managerMetrics,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return manager, nil
}

// NewModelManagerWithDependencies creates a new ModelManager with collaborators given
func NewModelManagerWithDependencies(cfg *config.Config, deps Dependencies) (*ModelManager, error) {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"function": "NewModelManagerWithDependencies",
	})

	defer utils.StackTraceFromPanic(logger)

	err := cfg.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid configuration: %w", err)
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(nil)
	}

	if deps.Locator == nil {
		deps.Locator = locator.NewLocator(cfg, nil)
	}

	if deps.Fetcher == nil {
		deps.Fetcher = fetch.NewHTTPFetcher(cfg.FetchTimeout, deps.Metrics)
	}

	if deps.Materializer == nil {
		deps.Materializer = materialize.NewMmapMaterializer(nil)
	}

	if deps.Settings == nil {
		deps.Settings = settings.NewMemoryStore()
	}

	if deps.Clock == nil {
		deps.Clock = NewSystemClock()
	}

	resident, err := newResidentSet(cfg.UsageHistorySize)
	if err != nil {
		return nil, err
	}

	capacity := cfg.DefaultMaxResident
	persisted, ok, err := deps.Settings.GetMaxResident()
	if err != nil {
		logger.WithError(err).Warnf("failed to read persisted capacity, using default %d", capacity)
	} else if ok && persisted >= 1 {
		capacity = persisted
	}

	ctx, cancel := context.WithCancel(context.Background())

	manager := &ModelManager{
		config:       cfg,
		locator:      deps.Locator,
		fetcher:      deps.Fetcher,
		materializer: deps.Materializer,
		settings:     deps.Settings,
		clock:        deps.Clock,
		metrics:      deps.Metrics,
		resident:     resident,
		capacity:     int64(capacity),
		ctx:          ctx,
		cancel:       cancel,
	}

	manager.metrics.ObserveMaxObjects(capacity)
	manager.metrics.ObserveSizeChange(0)

	logger.Infof("model manager is ready - capacity %d", capacity)
	return manager, nil
}

// Acquire returns a lease on the model, loading (and downloading) it when it is not resident
// the caller must return the lease when done with the model
// if ctx is cancelled while loading, Acquire returns early and the load still completes for later callers
func (manager *ModelManager) Acquire(ctx context.Context, name string) (*Lease, error) {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"struct":   "ModelManager",
		"function": "Acquire",
	})

	defer utils.StackTraceFromPanic(logger)

	if manager.isClosed() {
		return nil, ErrClosed
	}

	// the record stays pinned until this call, or the flight it waits for, is done
	shard := manager.resident.shardFor(name)
	usage := shard.pinUsage(name)
	usage.record(manager.clock.Now())

	pinned := true
	defer func() {
		if pinned {
			shard.unpinUsage(name)
		}
	}()

	for {
		entry := manager.resident.get(name)
		if entry != nil && entry.tryRetain() {
			manager.metrics.ObserveOperation(metrics.OperationAcquire, metrics.StatusHit)
			return newLease(entry), nil
		}

		resultChan := manager.admissionGroup.DoChan(name, func() (interface{}, error) {
			return manager.admit(name, usage)
		})

		select {
		case <-ctx.Done():
			logger.Debugf("gave up waiting for model %s", name)

			// the abandoned flight still attaches the record when it commits
			pinned = false
			go func() {
				<-resultChan
				shard.unpinUsage(name)
			}()
			return nil, xerrors.Errorf("failed to acquire model %s: %w", name, ctx.Err())
		case result := <-resultChan:
			if result.Err != nil {
				manager.metrics.ObserveOperation(metrics.OperationAcquire, metrics.StatusFailure)
				return nil, result.Err
			}

			admitted := result.Val.(*residentEntry)
			if admitted.tryRetain() {
				manager.metrics.ObserveOperation(metrics.OperationAcquire, metrics.StatusMiss)
				return newLease(admitted), nil
			}

			// evicted by a concurrent admission before we could take it, load again
			logger.Debugf("model %s is evicted before retained, retrying", name)
		}
	}
}

// admit loads the model and inserts it into the resident set, called once per name at a time
// usage is the pinned usage record of the caller that started the flight
func (manager *ModelManager) admit(name string, usage *usageEntry) (*residentEntry, error) {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"struct":   "ModelManager",
		"function": "admit",
	})

	defer utils.StackTraceFromPanic(logger)

	if manager.isClosed() {
		return nil, ErrClosed
	}

	// a previous flight may have completed after the caller checked
	if entry := manager.resident.get(name); entry != nil {
		return entry, nil
	}

	location := manager.locator.Resolve(name)
	logger.Debugf("resolved model %s to %s", name, location.ToString())

	switch location.Kind {
	case locator.LocationLocal:
	case locator.LocationRemote:
		err := manager.fetchShared(name, location)
		if err != nil {
			return nil, NewAcquireError(AcquireErrorFetchFailed, name, err)
		}
	default:
		logger.Warnf("model %s is not found locally nor in the asset document", name)
		return nil, NewAcquireError(AcquireErrorUnresolved, name, nil)
	}

	// make room first, the admitted name is never its own victim
	manager.evictTo(manager.GetCapacity()-1, name, metrics.ReasonAdmission)

	handle, err := manager.materializer.Open(name, location.Path)
	if err != nil {
		logger.WithError(err).Errorf("failed to materialize model %s", name)
		manager.metrics.ObserveOperation(metrics.OperationOpen, metrics.StatusFailure)
		return nil, NewAcquireError(AcquireErrorOpenFailed, name, err)
	}

	manager.metrics.ObserveOperation(metrics.OperationOpen, metrics.StatusOK)

	entry := newResidentEntry(name, handle, usage, manager.clock.Now())
	inserted := manager.insertWithRoom(entry)
	if !inserted {
		entry.release()
		return nil, ErrClosed
	}

	manager.metrics.ObserveSizeChange(manager.resident.size())
	logger.Infof("model %s is resident", name)
	return entry, nil
}

// fetchShared downloads the model, concurrent downloads of the same name are merged
func (manager *ModelManager) fetchShared(name string, location locator.Location) error {
	_, err, _ := manager.fetchGroup.Do(name, func() (interface{}, error) {
		if utils.IsNonEmptyFile(location.Path) {
			// downloaded by a preload that finished meanwhile
			manager.locator.Register(name, location.Path)
			return nil, nil
		}

		fetchErr := manager.fetcher.Fetch(manager.ctx, name, location.URL, location.Path)
		if fetchErr != nil {
			return nil, fetchErr
		}

		manager.locator.Register(name, location.Path)
		return nil, nil
	})
	return err
}

// IsAvailable returns true if the model is present locally or can be downloaded
func (manager *ModelManager) IsAvailable(name string) bool {
	return !manager.locator.Resolve(name).IsUnknown()
}

// ListResident returns names of resident models, sorted
func (manager *ModelManager) ListResident() []string {
	entries := manager.resident.snapshot()

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.name)
	}

	sort.Strings(names)
	return names
}

// ListKnown returns names of models present locally or listed in the asset document, sorted
func (manager *ModelManager) ListKnown() []string {
	return manager.locator.ListKnown()
}

// Release evicts the model, does nothing if it is not resident
// the model is closed when all of its leases are returned
func (manager *ModelManager) Release(name string) {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"struct":   "ModelManager",
		"function": "Release",
	})

	entry := manager.resident.removeName(name)
	if entry == nil {
		return
	}

	logger.Infof("released model %s, resident since %s", name, utils.MakeTimeToString(entry.admittedAt))
	manager.metrics.ObserveEvent(metrics.EventEviction, metrics.ReasonRelease)
	manager.metrics.ObserveOperation(metrics.OperationEvict, metrics.StatusOK)
	manager.metrics.ObserveSizeChange(manager.resident.size())
	entry.release()
}

// ReleaseAll evicts every resident model
func (manager *ModelManager) ReleaseAll() {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"struct":   "ModelManager",
		"function": "ReleaseAll",
	})

	entries := manager.resident.removeAll()
	for _, entry := range entries {
		manager.metrics.ObserveEvent(metrics.EventEviction, metrics.ReasonRelease)
		manager.metrics.ObserveOperation(metrics.OperationEvict, metrics.StatusOK)
		entry.release()
	}

	manager.metrics.ObserveSizeChange(manager.resident.size())
	logger.Infof("released %d models", len(entries))
}

// GetCapacity returns the maximum number of resident models
func (manager *ModelManager) GetCapacity() int {
	return int(atomic.LoadInt64(&manager.capacity))
}

// SetCapacity changes the maximum number of resident models, persists it, and evicts the excess
func (manager *ModelManager) SetCapacity(capacity int) error {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"struct":   "ModelManager",
		"function": "SetCapacity",
	})

	defer utils.StackTraceFromPanic(logger)

	if capacity < 1 {
		return NewCapacityError(capacity)
	}

	atomic.StoreInt64(&manager.capacity, int64(capacity))
	manager.metrics.ObserveMaxObjects(capacity)

	err := manager.settings.SetMaxResident(capacity)
	if err != nil {
		// the new capacity is still in effect for this process
		logger.WithError(err).Warnf("failed to persist capacity %d", capacity)
	}

	manager.evictTo(capacity, "", metrics.ReasonCapacity)
	logger.Infof("capacity is set to %d", capacity)
	return nil
}

// GetUsage returns usage stats of the name if it is in the usage history
func (manager *ModelManager) GetUsage(name string) (UsageStats, bool) {
	usage, ok := manager.resident.shardFor(name).peekUsage(name)
	if !ok {
		return UsageStats{}, false
	}
	return usage.snapshot(), true
}

// Refresh reloads the asset document and rescans local dirs
func (manager *ModelManager) Refresh() {
	manager.locator.Refresh()
}

// Shutdown rejects new acquisitions, releases all models and waits for preloads for a while
func (manager *ModelManager) Shutdown() error {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"struct":   "ModelManager",
		"function": "Shutdown",
	})

	defer utils.StackTraceFromPanic(logger)

	manager.shutdownOnce.Do(func() {
		manager.preloadMutex.Lock()
		atomic.StoreInt32(&manager.closed, 1)
		manager.preloadMutex.Unlock()

		manager.ReleaseAll()
		manager.cancel()

		if !manager.waitForPreloadTimeout() {
			logger.Warnf("preloads did not finish within %s", manager.config.ShutdownTimeout)
		}

		err := manager.settings.Close()
		if err != nil {
			manager.shutdownResult = xerrors.Errorf("failed to close settings: %w", err)
		}

		logger.Info("model manager is shut down")
	})
	return manager.shutdownResult
}

func (manager *ModelManager) isClosed() bool {
	return atomic.LoadInt32(&manager.closed) == 1
}
