package manager

import (
	"sync/atomic"

	"github.com/Zmmoly/modelcache/materialize"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
)

// Lease is a borrowed reference to a resident model
// the handle stays valid until the lease is returned, even if the model is evicted meanwhile
type Lease struct {
	id       string
	entry    *residentEntry
	returned int32
}

func newLease(entry *residentEntry) *Lease {
	return &Lease{
		id:    xid.New().String(),
		entry: entry,
	}
}

// GetID returns the lease ID
func (lease *Lease) GetID() string {
	return lease.id
}

// GetName returns the model name
func (lease *Lease) GetName() string {
	return lease.entry.name
}

// GetHandle returns the materialized model
func (lease *Lease) GetHandle() materialize.Handle {
	return lease.entry.handle
}

// GetModel returns the materialized model if it is created by MmapMaterializer
func (lease *Lease) GetModel() (*materialize.Model, bool) {
	model, ok := lease.entry.handle.(*materialize.Model)
	return model, ok
}

// Return gives the reference back, the lease must not be used afterwards
func (lease *Lease) Return() error {
	if !atomic.CompareAndSwapInt32(&lease.returned, 0, 1) {
		logger := log.WithFields(log.Fields{
			"package":  "manager",
			"struct":   "Lease",
			"function": "Return",
		})

		logger.Warnf("lease %s for model %s is returned twice", lease.id, lease.entry.name)
		return ErrLeaseReturned
	}

	lease.entry.release()
	return nil
}
