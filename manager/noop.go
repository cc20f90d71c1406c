package manager

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/scheduler"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/util"
)

const (
	noopMessage = "noop"
)

// NoopManager grants every call locally. Reservations expire through an in-process
// timer. It cannot lock resources for real.
type NoopManager struct {
	inventory Inventory
	filter    *scheduler.AvailabilityFilter

	mutex  sync.Mutex
	timers map[string]*time.Timer
}

func NewNoopManager(inventory Inventory) *NoopManager {
	return &NoopManager{
		inventory: inventory,
		filter:    scheduler.NewAvailabilityFilter(),
		timers:    map[string]*time.Timer{},
	}
}

func (m *NoopManager) Name() string {
	return types.ResourceManagerNoop
}

func (m *NoopManager) Reserve(ctx context.Context, node *resource.Node, r *resource.ExternalResource, seconds int, holder string) *types.StashResult {
	key := util.UUID()
	nodeName, id := node.Name, r.GetID()

	m.mutex.Lock()
	m.timers[key] = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		m.expire(nodeName, id, key)
	})
	m.mutex.Unlock()

	return types.NewOKResult(noopMessage, key, types.NewLeaseAfter(seconds))
}

func (m *NoopManager) expire(nodeName, id, key string) {
	m.mutex.Lock()
	delete(m.timers, key)
	m.mutex.Unlock()

	log := logrus.WithFields(logrus.Fields{"node": nodeName, "resource": id})
	log.Debug("Reservation timeout")

	if m.inventory == nil {
		return
	}
	node, err := m.inventory.GetNode(nodeName)
	if err != nil || node == nil {
		log.WithError(err).Warn("Failed to time out a reservation, node not found")
		return
	}
	r := m.filter.FindByID(node, id)
	if r == nil {
		log.Warn("Failed to time out a reservation, resource not found")
		return
	}
	expired, err := r.ExpireReservationFor(key)
	if err != nil {
		log.WithError(err).Warn("Failed to save the expired reservation")
		return
	}
	if expired {
		log.Info("Reservation expired")
	}
}

func (m *NoopManager) Lock(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	return types.NewOKResult(noopMessage, key, nil)
}

func (m *NoopManager) Release(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	return types.NewOKResult(noopMessage, key, nil)
}

func (m *NoopManager) IsExternalLockingOk() bool {
	return false
}

// Stop cancels every pending reservation timer.
func (m *NoopManager) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for key, t := range m.timers {
		t.Stop()
		delete(m.timers, key)
	}
}

// PendingTimers returns the number of reservations which have not expired yet.
func (m *NoopManager) PendingTimers() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.timers)
}
