package manager

import (
	"time"

	"github.com/Zmmoly/modelcache/locator"
	"github.com/Zmmoly/modelcache/metrics"
	"github.com/Zmmoly/modelcache/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Preload downloads the models in background without loading them
// failures are logged and otherwise ignored
func (manager *ModelManager) Preload(names []string) {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"struct":   "ModelManager",
		"function": "Preload",
	})

	if len(names) == 0 {
		return
	}

	// drop duplicates
	targets := []string{}
	seen := map[string]bool{}
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			targets = append(targets, name)
		}
	}

	// Shutdown must not start waiting between the check and Add
	manager.preloadMutex.Lock()
	if manager.isClosed() {
		manager.preloadMutex.Unlock()
		return
	}
	manager.preloadWaiter.Add(1)
	manager.preloadMutex.Unlock()

	go func() {
		defer manager.preloadWaiter.Done()
		defer utils.StackTraceFromPanic(logger)

		group := errgroup.Group{}
		group.SetLimit(manager.config.PreloadConcurrency)

		for _, name := range targets {
			name := name
			group.Go(func() error {
				manager.preload(name)
				return nil
			})
		}

		group.Wait()
		logger.Debugf("preloaded %d models", len(targets))
	}()
}

func (manager *ModelManager) preload(name string) {
	logger := log.WithFields(log.Fields{
		"package":  "manager",
		"struct":   "ModelManager",
		"function": "preload",
	})

	if manager.ctx.Err() != nil {
		return
	}

	location := manager.locator.Resolve(name)
	if location.Kind != locator.LocationRemote {
		// local already, or nothing to download
		return
	}

	err := manager.fetchShared(name, location)
	if err != nil {
		logger.WithError(err).Debugf("failed to preload model %s", name)
		manager.metrics.ObserveOperation(metrics.OperationPreload, metrics.StatusFailure)
		return
	}

	manager.metrics.ObserveOperation(metrics.OperationPreload, metrics.StatusOK)
}

// WaitForPreload blocks until all preloads started so far complete
func (manager *ModelManager) WaitForPreload() {
	manager.preloadWaiter.Wait()
}

func (manager *ModelManager) waitForPreloadTimeout() bool {
	done := make(chan struct{})
	go func() {
		manager.preloadWaiter.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(manager.config.ShutdownTimeout):
		return false
	}
}
