package manager

import (
	"context"

	"github.com/pkg/errors"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
)

// NoneManager has no backend at all. Every call fails and locking is not supported.
type NoneManager struct {
}

func NewNoneManager() *NoneManager {
	return &NoneManager{}
}

func (m *NoneManager) Name() string {
	return types.ResourceManagerNone
}

func (m *NoneManager) unsupported(operation string) *types.StashResult {
	return types.NewErrorResult(types.ErrorKindUnsupported,
		errors.Errorf("resource manager %v cannot %v resources", m.Name(), operation))
}

func (m *NoneManager) Reserve(ctx context.Context, node *resource.Node, r *resource.ExternalResource, seconds int, holder string) *types.StashResult {
	return m.unsupported(OperationReserve)
}

func (m *NoneManager) Lock(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	return m.unsupported(OperationLock)
}

func (m *NoneManager) Release(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	return m.unsupported(OperationRelease)
}

func (m *NoneManager) IsExternalLockingOk() bool {
	return false
}
