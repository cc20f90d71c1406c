package manager

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
)

const (
	OperationReserve = "reserve"
	OperationLock    = "lock"
	OperationRelease = "release"
)

// ResourceManager performs the reserve, lock and release handshake for a resource with
// whatever owns the physical device. Implementations never return a nil result for a
// failure they can describe, and never touch the resource state themselves.
type ResourceManager interface {
	Name() string
	Reserve(ctx context.Context, node *resource.Node, r *resource.ExternalResource, seconds int, holder string) *types.StashResult
	Lock(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult
	Release(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult
	IsExternalLockingOk() bool
}

// Inventory resolves nodes by name.
type Inventory interface {
	GetNode(name string) (*resource.Node, error)
}

// CallObserver is told about every backend call.
type CallObserver interface {
	ObserveBackendCall(manager, operation string, result *types.StashResult)
}

// Config carries what the backends need from the settings.
type Config struct {
	RootURL                string
	ResourceMonitorPort    int
	ResourceMonitorTimeout int
}

// NewResourceManager returns the backend with the given name. Unknown names fall back
// to noop.
func NewResourceManager(name string, config Config, inventory Inventory, observer CallObserver) ResourceManager {
	var m ResourceManager
	switch name {
	case types.ResourceManagerNone:
		m = NewNoneManager()
	case types.ResourceManagerResourceMonitor:
		m = NewResourceMonitorManager(config)
	case types.ResourceManagerNoop:
		m = NewNoopManager(inventory)
	default:
		logrus.Warnf("Unknown resource manager %v, falling back to %v", name, types.ResourceManagerNoop)
		m = NewNoopManager(inventory)
	}
	if observer == nil {
		return m
	}
	return &observedManager{ResourceManager: m, observer: observer}
}

type observedManager struct {
	ResourceManager
	observer CallObserver
}

func (m *observedManager) Reserve(ctx context.Context, node *resource.Node, r *resource.ExternalResource, seconds int, holder string) *types.StashResult {
	result := m.ResourceManager.Reserve(ctx, node, r, seconds, holder)
	m.observer.ObserveBackendCall(m.Name(), OperationReserve, result)
	return result
}

func (m *observedManager) Lock(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	result := m.ResourceManager.Lock(ctx, node, r, key, holder)
	m.observer.ObserveBackendCall(m.Name(), OperationLock, result)
	return result
}

func (m *observedManager) Release(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	result := m.ResourceManager.Release(ctx, node, r, key, holder)
	m.observer.ObserveBackendCall(m.Name(), OperationRelease, result)
	return result
}

// Switch holds the active resource manager. The active manager changes when the
// resource-manager setting changes.
type Switch struct {
	mutex   sync.RWMutex
	current ResourceManager
}

func NewSwitch(m ResourceManager) *Switch {
	return &Switch{current: m}
}

func (s *Switch) Current() ResourceManager {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current
}

// Set installs m and returns the manager it replaced.
func (s *Switch) Set(m ResourceManager) ResourceManager {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	previous := s.current
	s.current = m
	return previous
}

func (s *Switch) IsExternalLockingOk() bool {
	return s.Current().IsExternalLockingOk()
}

// Stop releases what the manager holds in process, such as pending reservation timers.
func Stop(m ResourceManager) {
	if observed, ok := m.(*observedManager); ok {
		m = observed.ResourceManager
	}
	if noop, ok := m.(*NoopManager); ok {
		noop.Stop()
	}
}
