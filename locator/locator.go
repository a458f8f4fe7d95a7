package locator

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Zmmoly/modelcache/config"
	"github.com/Zmmoly/modelcache/utils"
	log "github.com/sirupsen/logrus"
)

// Locator maps model names to local files or download URLs
type Locator struct {
	config      *config.Config
	assetSource *config.AssetSource

	// localModels holds scan results and downloaded models. Key is model name, value is local path
	localModels map[string]string
	// assetMapping holds downloadable entries of the asset document. Key is relative path, value is URL
	assetMapping map[string]string
	mutex        sync.RWMutex
}

// NewLocator creates a new Locator, loads the asset document and scans local dirs
func NewLocator(cfg *config.Config, assetSource *config.AssetSource) *Locator {
	if assetSource == nil {
		assetSource = config.NewAssetSource(cfg.GetAssetsConfigPath(), nil)
	}

	locator := &Locator{
		config:       cfg,
		assetSource:  assetSource,
		localModels:  map[string]string{},
		assetMapping: map[string]string{},
	}

	locator.Refresh()
	return locator
}

// Refresh reloads the asset document and rescans local dirs
func (locator *Locator) Refresh() {
	locator.ReloadAssets()
	locator.Scan()
}

// ReloadAssets reloads the asset document
// a broken document results in an empty mapping
func (locator *Locator) ReloadAssets() {
	logger := log.WithFields(log.Fields{
		"package":  "locator",
		"struct":   "Locator",
		"function": "ReloadAssets",
	})

	mapping, err := locator.assetSource.Load()
	if err != nil {
		logger.WithError(err).Warn("continuing without downloadable models")
	}

	locator.mutex.Lock()
	defer locator.mutex.Unlock()

	locator.assetMapping = mapping
}

// Scan scans local dirs for model files and returns name to path mapping
// when the same name exists in multiple dirs, the dir scanned last wins
func (locator *Locator) Scan() map[string]string {
	logger := log.WithFields(log.Fields{
		"package":  "locator",
		"struct":   "Locator",
		"function": "Scan",
	})

	defer utils.StackTraceFromPanic(logger)

	found := map[string]string{}
	for _, dir := range locator.config.GetScanDirPaths() {
		dirEntries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.WithError(err).Warnf("failed to scan dir %s", dir)
			}
			continue
		}

		for _, dirEntry := range dirEntries {
			if dirEntry.IsDir() || !utils.HasFileExtension(dirEntry.Name(), locator.config.ModelExtension) {
				continue
			}

			name := utils.GetFileNameWithoutExtension(dirEntry.Name())
			found[name] = utils.JoinPath(dir, dirEntry.Name())
			logger.Debugf("found model %s in %s", name, dir)
		}
	}

	logger.Infof("found %d models", len(found))

	locator.mutex.Lock()
	locator.localModels = found
	locator.mutex.Unlock()

	return copyMap(found)
}

// Register records a local file for the model, e.g., after a download
func (locator *Locator) Register(name string, path string) {
	locator.mutex.Lock()
	defer locator.mutex.Unlock()

	locator.localModels[name] = path
}

// Resolve finds where the model can be obtained from
func (locator *Locator) Resolve(name string) Location {
	if !isValidName(name) {
		return Location{Kind: LocationUnknown, Name: name}
	}

	locator.mutex.RLock()
	localPath, hasLocal := locator.localModels[name]
	mapping := locator.assetMapping
	locator.mutex.RUnlock()

	if hasLocal {
		return Location{Kind: LocationLocal, Name: name, Path: localPath}
	}

	entry, ok := config.FindEntryForFile(mapping, name+locator.config.ModelExtension)
	if !ok {
		return Location{Kind: LocationUnknown, Name: name}
	}

	destination := locator.makeDestinationPath(entry.Path)
	if utils.IsNonEmptyFile(destination) {
		// downloaded before, outside of scan dirs
		locator.Register(name, destination)
		return Location{Kind: LocationLocal, Name: name, Path: destination}
	}

	return Location{
		Kind: LocationRemote,
		Name: name,
		Path: destination,
		URL:  entry.URL,
	}
}

// IsLocal returns true if the model is present locally
func (locator *Locator) IsLocal(name string) bool {
	return locator.Resolve(name).IsLocal()
}

// ListLocal returns names of models present locally, sorted
func (locator *Locator) ListLocal() []string {
	locator.mutex.RLock()
	defer locator.mutex.RUnlock()

	names := make([]string, 0, len(locator.localModels))
	for name := range locator.localModels {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// ListKnown returns names of models present locally or listed in the asset document, sorted
func (locator *Locator) ListKnown() []string {
	locator.mutex.RLock()
	defer locator.mutex.RUnlock()

	known := map[string]bool{}
	for name := range locator.localModels {
		known[name] = true
	}

	for path := range locator.assetMapping {
		if utils.HasFileExtension(path, locator.config.ModelExtension) {
			known[utils.GetFileNameWithoutExtension(path)] = true
		}
	}

	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// DefaultPath returns where a model named name would be stored by default
func (locator *Locator) DefaultPath(name string) string {
	return utils.JoinPath(locator.config.RootPath, config.DefaultModelDir, name+locator.config.ModelExtension)
}

func (locator *Locator) makeDestinationPath(assetPath string) string {
	relPath := utils.StripPathPrefix(assetPath, locator.config.StripPathPrefix)
	return utils.JoinPath(locator.config.RootPath, relPath)
}

func isValidName(name string) bool {
	if len(name) == 0 || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func copyMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
