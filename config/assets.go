package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Zmmoly/modelcache/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

//go:embed assets-config.yml
var defaultAssetsDocument []byte

// keys describing the release rather than an installable file
// the Arabic keys are creation and update dates in documents generated for the app
var informationalKeys = map[string]bool{
	"releaseTag":    true,
	"releaseUrl":    true,
	"createdAt":     true,
	"updatedAt":     true,
	"تاريخ_الإنشاء": true,
	"تاريخ_التحديث": true,
}

// DefaultAssetsDocument returns a copy of the bundled asset document
func DefaultAssetsDocument() []byte {
	doc := make([]byte, len(defaultAssetsDocument))
	copy(doc, defaultAssetsDocument)
	return doc
}

// AssetEntry is an installable file listed in the asset document
type AssetEntry struct {
	Path string
	URL  string
}

// AssetSource reads the asset document, a map of storage-relative path to download URL
type AssetSource struct {
	path            string
	defaultDocument []byte
	mutex           sync.Mutex
}

// NewAssetSource creates a new AssetSource
// if defaultDocument is nil, the bundled document is used to seed a missing file
func NewAssetSource(path string, defaultDocument []byte) *AssetSource {
	if defaultDocument == nil {
		defaultDocument = defaultAssetsDocument
	}

	return &AssetSource{
		path:            path,
		defaultDocument: defaultDocument,
	}
}

// GetPath returns the path of the asset document
func (source *AssetSource) GetPath() string {
	return source.path
}

// Load returns downloadable entries, keyed by path
// on failure, returns an empty map with ConfigError
func (source *AssetSource) Load() (map[string]string, error) {
	logger := log.WithFields(log.Fields{
		"package":  "config",
		"struct":   "AssetSource",
		"function": "Load",
	})

	defer utils.StackTraceFromPanic(logger)

	source.mutex.Lock()
	defer source.mutex.Unlock()

	document, err := source.readDocument(true)
	if err != nil {
		configErr := NewConfigError(source.path, err)
		logger.WithError(configErr).Error("failed to load asset document, using empty mapping")
		return map[string]string{}, configErr
	}

	mapping := map[string]string{}
	for key, value := range document {
		if url, ok := asURL(value); ok {
			mapping[key] = url
		}
	}

	logger.Debugf("loaded asset document %s - %d downloadable entries", source.path, len(mapping))
	return mapping, nil
}

// Downloads returns installable entries sorted by path, without informational keys
func (source *AssetSource) Downloads() ([]AssetEntry, error) {
	mapping, err := source.Load()
	if err != nil {
		return nil, err
	}

	entries := []AssetEntry{}
	for path, url := range mapping {
		if informationalKeys[path] {
			continue
		}

		entries = append(entries, AssetEntry{
			Path: path,
			URL:  url,
		})
	}

	sort.Slice(entries, func(i int, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

func (source *AssetSource) readDocument(seed bool) (map[string]interface{}, error) {
	docBytes, err := os.ReadFile(source.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && seed {
			seedErr := source.seed()
			if seedErr != nil {
				return nil, seedErr
			}

			// reload the seeded copy
			return source.readDocument(false)
		}
		return nil, xerrors.Errorf("failed to read asset document %s: %w", source.path, err)
	}

	document := map[string]interface{}{}
	err = yaml.Unmarshal(docBytes, &document)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse asset document %s: %w", source.path, err)
	}

	return document, nil
}

func (source *AssetSource) seed() error {
	logger := log.WithFields(log.Fields{
		"package":  "config",
		"struct":   "AssetSource",
		"function": "seed",
	})

	logger.Infof("seeding asset document %s from bundled copy", source.path)

	err := os.MkdirAll(utils.GetDir(source.path), 0755)
	if err != nil {
		return xerrors.Errorf("failed to make dir for %s: %w", source.path, err)
	}

	err = os.WriteFile(source.path, source.defaultDocument, 0644)
	if err != nil {
		return xerrors.Errorf("failed to write asset document %s: %w", source.path, err)
	}
	return nil
}

func asURL(value interface{}) (string, bool) {
	str, ok := value.(string)
	if !ok {
		return "", false
	}

	lower := strings.ToLower(str)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return str, true
	}
	return "", false
}

// FindEntryForFile finds the entry for the given file name (e.g., hotword.tflite)
// an entry whose base name equals the file name wins over one that merely contains it
func FindEntryForFile(mapping map[string]string, filename string) (AssetEntry, bool) {
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var candidate *AssetEntry
	for _, key := range keys {
		if informationalKeys[key] || !strings.Contains(key, filename) {
			continue
		}

		if utils.GetFileName(key) == filename {
			return AssetEntry{Path: key, URL: mapping[key]}, true
		}

		if candidate == nil {
			candidate = &AssetEntry{Path: key, URL: mapping[key]}
		}
	}

	if candidate != nil {
		return *candidate, true
	}
	return AssetEntry{}, false
}

// String returns a human readable form
func (entry AssetEntry) String() string {
	return fmt.Sprintf("<AssetEntry %s %s>", entry.Path, entry.URL)
}
