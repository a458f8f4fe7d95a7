package materialize

import (
	"io"
	"os"
	"sync"

	"github.com/Zmmoly/modelcache/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"
	"golang.org/x/xerrors"
)

// Handle is a materialized model, closed exactly once by its owner
type Handle interface {
	io.Closer
}

// Mapping is a read-only view of model file bytes
type Mapping interface {
	io.ReaderAt
	Len() int
	At(i int) byte
}

// Constructor builds a runtime instance (e.g., an interpreter) from mapped model bytes
// the mapping stays valid until the returned handle is closed
type Constructor func(name string, mapping Mapping) (Handle, error)

// Materializer turns a local model file into a Handle
type Materializer interface {
	Open(name string, path string) (Handle, error)
}

// MmapMaterializer maps model files read-only
type MmapMaterializer struct {
	constructor Constructor
}

// NewMmapMaterializer creates a new MmapMaterializer
// constructor can be nil, then handles carry the mapping only
func NewMmapMaterializer(constructor Constructor) *MmapMaterializer {
	return &MmapMaterializer{
		constructor: constructor,
	}
}

// Open maps the file at path and builds a Model from it
// ownership of the returned Model transfers to the caller
func (materializer *MmapMaterializer) Open(name string, path string) (Handle, error) {
	logger := log.WithFields(log.Fields{
		"package":  "materialize",
		"struct":   "MmapMaterializer",
		"function": "Open",
	})

	defer utils.StackTraceFromPanic(logger)

	st, err := os.Stat(path)
	if err != nil {
		return nil, NewOpenError(OpenErrorMissing, path, err)
	}

	if !st.Mode().IsRegular() {
		return nil, NewOpenError(OpenErrorMissing, path, xerrors.Errorf("%s is not a regular file", path))
	}

	if st.Size() == 0 {
		return nil, NewOpenError(OpenErrorCorrupt, path, xerrors.Errorf("model file %s is empty", path))
	}

	mapping, err := mmap.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewOpenError(OpenErrorMissing, path, err)
		}
		return nil, NewOpenError(OpenErrorCorrupt, path, xerrors.Errorf("failed to map %s: %w", path, err))
	}

	if mapping.Len() == 0 {
		// truncated after stat
		mapping.Close()
		return nil, NewOpenError(OpenErrorCorrupt, path, xerrors.Errorf("model file %s is empty", path))
	}

	var instance Handle
	if materializer.constructor != nil {
		instance, err = materializer.constructor(name, mapping)
		if err != nil {
			mapping.Close()
			return nil, NewOpenError(OpenErrorCorrupt, path, err)
		}
	}

	logger.Debugf("materialized model %s from %s - %d bytes", name, path, mapping.Len())

	return &Model{
		name:     name,
		path:     path,
		mapping:  mapping,
		instance: instance,
	}, nil
}

// Model is a Handle backed by a read-only file mapping
type Model struct {
	name     string
	path     string
	mapping  *mmap.ReaderAt
	instance Handle

	closeOnce sync.Once
	closeErr  error
}

// GetName returns the model name
func (model *Model) GetName() string {
	return model.name
}

// GetPath returns the model file path
func (model *Model) GetPath() string {
	return model.path
}

// GetInstance returns the runtime instance built by the constructor, nil if there is no constructor
func (model *Model) GetInstance() Handle {
	return model.instance
}

// GetMapping returns the mapped bytes
func (model *Model) GetMapping() Mapping {
	return model.mapping
}

// GetSize returns the size of the mapped bytes
func (model *Model) GetSize() int {
	return model.mapping.Len()
}

// Close closes the runtime instance, then unmaps the bytes
func (model *Model) Close() error {
	model.closeOnce.Do(func() {
		if model.instance != nil {
			err := model.instance.Close()
			if err != nil {
				model.closeErr = xerrors.Errorf("failed to close instance of model %s: %w", model.name, err)
			}
		}

		err := model.mapping.Close()
		if err != nil && model.closeErr == nil {
			model.closeErr = xerrors.Errorf("failed to unmap model %s: %w", model.name, err)
		}
	})
	return model.closeErr
}
