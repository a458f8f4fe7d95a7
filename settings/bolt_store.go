package settings

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Zmmoly/modelcache/utils"
	log "github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

const (
	preferencesBucket string = "model_manager_prefs"
	maxResidentKey    string = "max_loaded_models"
)

// BoltStore implements Store on a bbolt file
type BoltStore struct {
	path  string
	db    *bbolt.DB
	mutex sync.Mutex
}

// NewBoltStore opens (creates if missing) the settings file
func NewBoltStore(path string) (*BoltStore, error) {
	logger := log.WithFields(log.Fields{
		"package":  "settings",
		"function": "NewBoltStore",
	})

	defer utils.StackTraceFromPanic(logger)

	err := os.MkdirAll(utils.GetDir(path), 0755)
	if err != nil {
		return nil, xerrors.Errorf("failed to make dir for %s: %w", path, err)
	}

	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, xerrors.Errorf("failed to open settings file %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists([]byte(preferencesBucket))
		if bucketErr != nil {
			return xerrors.Errorf("failed to create bucket %s: %w", preferencesBucket, bucketErr)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debugf("opened settings file %s", path)

	return &BoltStore{
		path: path,
		db:   db,
	}, nil
}

// GetPath returns path of the settings file
func (store *BoltStore) GetPath() string {
	return store.path
}

// Close closes the settings file
func (store *BoltStore) Close() error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.db == nil {
		return nil
	}

	err := store.db.Close()
	store.db = nil
	if err != nil {
		return xerrors.Errorf("failed to close settings file %s: %w", store.path, err)
	}
	return nil
}

// GetMaxResident returns the persisted maximum number of resident models
func (store *BoltStore) GetMaxResident() (int, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.db == nil {
		return 0, false, xerrors.Errorf("settings file %s is closed", store.path)
	}

	var value []byte
	err := store.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(preferencesBucket))
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte(maxResidentKey))
		if data != nil {
			// data is only valid within the transaction
			value = append([]byte{}, data...)
		}
		return nil
	})
	if err != nil {
		return 0, false, xerrors.Errorf("failed to read %s: %w", maxResidentKey, err)
	}

	if value == nil {
		return 0, false, nil
	}

	maxResident, err := strconv.Atoi(string(value))
	if err != nil {
		return 0, false, xerrors.Errorf("failed to parse %s value %q: %w", maxResidentKey, string(value), err)
	}
	return maxResident, true, nil
}

// SetMaxResident persists the maximum number of resident models
func (store *BoltStore) SetMaxResident(maxResident int) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.db == nil {
		return xerrors.Errorf("settings file %s is closed", store.path)
	}

	err := store.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(preferencesBucket))
		return bucket.Put([]byte(maxResidentKey), []byte(strconv.Itoa(maxResident)))
	})
	if err != nil {
		return xerrors.Errorf("failed to write %s: %w", maxResidentKey, err)
	}
	return nil
}
