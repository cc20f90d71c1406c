package resource

import (
	"github.com/pkg/errors"

	"github.com/longhorn/resource-dispatcher/types"
)

type Permission string

const (
	PermissionReserveLock   = Permission("reserve-lock")
	PermissionEnableDisable = Permission("enable-disable")

	// AnyPrincipal grants its permissions to every caller.
	AnyPrincipal = "*"
)

type Authorizer interface {
	HasPermission(principal string, permission Permission) bool
}

// LockingCapability is implemented by resource managers.
type LockingCapability interface {
	IsExternalLockingOk() bool
}

type allowAll struct{}

func (allowAll) HasPermission(string, Permission) bool {
	return true
}

// AllowAll grants every permission to every principal.
var AllowAll Authorizer = allowAll{}

// StaticAuthorizer maps a principal to the permissions it holds.
type StaticAuthorizer map[string][]Permission

func (a StaticAuthorizer) HasPermission(principal string, permission Permission) bool {
	for _, p := range []string{principal, AnyPrincipal} {
		for _, granted := range a[p] {
			if granted == permission {
				return true
			}
		}
	}
	return false
}

// Operator is the caller of an administrative transition.
type Operator struct {
	Principal  string
	Authorizer Authorizer
	Capability LockingCapability
}

func (op *Operator) checkPermission(permission Permission) error {
	if op == nil || op.Authorizer == nil {
		return errors.Wrapf(types.ErrPermissionDenied, "missing operator for %v", permission)
	}
	if !op.Authorizer.HasPermission(op.Principal, permission) {
		return errors.Wrapf(types.ErrPermissionDenied, "%v lacks %v", op.Principal, permission)
	}
	return nil
}

func (op *Operator) checkStashTransition() error {
	if op == nil || op.Capability == nil || !op.Capability.IsExternalLockingOk() {
		return types.ErrIllegalState
	}
	return op.checkPermission(PermissionReserveLock)
}
