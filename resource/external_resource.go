package resource

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/longhorn/resource-dispatcher/types"
)

// Saver persists the container of a resource.
type Saver interface {
	Save() error
}

// ExternalResource is one physical resource attached to a node. All state transitions are
// serialized by the resource's own mutex. Persistence happens after the mutex is released.
type ExternalResource struct {
	mutex sync.Mutex

	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	ID          string           `json:"id" yaml:"id"`
	Enabled     *bool            `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Reserved    *types.StashInfo `json:"reserved,omitempty" yaml:"-"`
	Locked      *types.StashInfo `json:"locked,omitempty" yaml:"-"`
	Children    []*Value         `json:"children,omitempty" yaml:"children,omitempty"`
	Exposed     bool             `json:"exposed,omitempty" yaml:"exposed,omitempty"`

	saver Saver
}

func NewExternalResource(name, id string, children ...*Value) *ExternalResource {
	return &ExternalResource{
		Name:     name,
		ID:       id,
		Children: children,
	}
}

func (r *ExternalResource) setSaver(saver Saver) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.saver = saver
}

func (r *ExternalResource) children() []*Value {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.Children
}

func (r *ExternalResource) save() error {
	r.mutex.Lock()
	saver := r.saver
	r.mutex.Unlock()

	if saver == nil {
		return nil
	}
	if err := saver.Save(); err != nil {
		return &types.SaveError{Err: err}
	}
	return nil
}

// GetID is safe to call while other goroutines change the resource.
func (r *ExternalResource) GetID() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.ID
}

func (r *ExternalResource) GetReserved() *types.StashInfo {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.Reserved.DeepCopy()
}

func (r *ExternalResource) GetLocked() *types.StashInfo {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.Locked.DeepCopy()
}

// Attribute returns the string form of the leaf at path below the resource.
func (r *ExternalResource) Attribute(path []string) (string, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	value := Lookup(r.Children, path)
	if value == nil || value.Kind != ValueKindLeaf {
		return "", false
	}
	return value.String(), true
}

// IsAvailable is true when the resource is neither reserved nor locked, regardless of
// whether it is enabled.
func (r *ExternalResource) IsAvailable() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.Reserved == nil && r.Locked == nil
}

// IsEnabled treats an unset flag as enabled.
func (r *ExternalResource) IsEnabled() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.Enabled == nil || *r.Enabled
}

// Reserve sets the reservation and clears any lock.
func (r *ExternalResource) Reserve(op *Operator, info *types.StashInfo) error {
	if err := op.checkStashTransition(); err != nil {
		return errors.Wrapf(err, "failed to reserve resource %v", r.GetID())
	}
	r.mutex.Lock()
	r.Reserved = info.DeepCopy()
	r.Locked = nil
	r.mutex.Unlock()
	return r.save()
}

// Lock sets the lock and clears any reservation.
func (r *ExternalResource) Lock(op *Operator, info *types.StashInfo) error {
	if err := op.checkStashTransition(); err != nil {
		return errors.Wrapf(err, "failed to lock resource %v", r.GetID())
	}
	r.mutex.Lock()
	r.Locked = info.DeepCopy()
	r.Reserved = nil
	r.mutex.Unlock()
	return r.save()
}

// Release clears both the reservation and the lock.
func (r *ExternalResource) Release(op *Operator) error {
	if err := op.checkStashTransition(); err != nil {
		return errors.Wrapf(err, "failed to release resource %v", r.GetID())
	}
	r.mutex.Lock()
	r.Reserved = nil
	r.Locked = nil
	r.mutex.Unlock()
	return r.save()
}

// SetEnabled changes the administrative enabled flag.
func (r *ExternalResource) SetEnabled(op *Operator, enabled bool) error {
	if err := op.checkPermission(PermissionEnableDisable); err != nil {
		return errors.Wrapf(err, "failed to change enabled state of resource %v", r.GetID())
	}
	r.mutex.Lock()
	r.Enabled = &enabled
	r.mutex.Unlock()
	return r.save()
}

// ExpireReservation clears the reservation only. An existing lock is kept.
func (r *ExternalResource) ExpireReservation() error {
	r.mutex.Lock()
	if r.Reserved == nil {
		r.mutex.Unlock()
		return nil
	}
	r.Reserved = nil
	r.mutex.Unlock()
	return r.save()
}

// ExpireReservationFor clears the reservation only when it still carries the key, so a
// late timer does not drop a newer reservation. It reports whether anything was cleared.
func (r *ExternalResource) ExpireReservationFor(key string) (bool, error) {
	r.mutex.Lock()
	if r.Reserved == nil || r.Reserved.Key != key {
		r.mutex.Unlock()
		return false, nil
	}
	r.Reserved = nil
	r.mutex.Unlock()
	return true, r.save()
}

// AuthorizeKey checks that key may lock or release the current stash. Stashes without a
// key may be changed by anyone. The master key, when configured, is always accepted.
func (r *ExternalResource) AuthorizeKey(key, masterKey string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	current := r.Locked
	if current == nil {
		current = r.Reserved
	}
	if current == nil || current.Key == "" {
		return nil
	}
	if key == current.Key || (masterKey != "" && key == masterKey) {
		return nil
	}
	return errors.Wrapf(types.ErrKeyMismatch, "resource %v", r.ID)
}

// TryReserve sets the reservation only if the resource is still enabled and available.
// Used by dispatch, after the resource manager granted the reservation.
func (r *ExternalResource) TryReserve(info *types.StashInfo) (bool, error) {
	r.mutex.Lock()
	if r.Reserved != nil || r.Locked != nil || (r.Enabled != nil && !*r.Enabled) {
		r.mutex.Unlock()
		return false, nil
	}
	r.Reserved = info.DeepCopy()
	r.mutex.Unlock()
	return true, r.save()
}

// MarkLocked converts to a lock after the resource manager granted it.
func (r *ExternalResource) MarkLocked(info *types.StashInfo) error {
	r.mutex.Lock()
	r.Locked = info.DeepCopy()
	r.Reserved = nil
	r.mutex.Unlock()
	return r.save()
}

// ClearLock drops the lock after the resource manager released it.
func (r *ExternalResource) ClearLock() error {
	r.mutex.Lock()
	r.Locked = nil
	r.Reserved = nil
	r.mutex.Unlock()
	return r.save()
}

// ReplacementOf keeps the runtime state of old for every field this definition leaves unset.
func (r *ExternalResource) ReplacementOf(old *ExternalResource) {
	if old == nil || old == r {
		return
	}
	old.mutex.Lock()
	id, enabled := old.ID, old.Enabled
	reserved, locked := old.Reserved.DeepCopy(), old.Locked.DeepCopy()
	old.mutex.Unlock()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.ID == "" {
		r.ID = id
	}
	if r.Enabled == nil && enabled != nil {
		e := *enabled
		r.Enabled = &e
	}
	if r.Reserved == nil && r.Locked == nil {
		r.Reserved = reserved
		r.Locked = locked
	}
}

// Clone returns a detached deep copy. Saving the clone never touches the original's node.
func (r *ExternalResource) Clone() *ExternalResource {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := &ExternalResource{
		Name:        r.Name,
		Description: r.Description,
		ID:          r.ID,
		Reserved:    r.Reserved.DeepCopy(),
		Locked:      r.Locked.DeepCopy(),
		Children:    DeepCopyValues(r.Children),
		Exposed:     r.Exposed,
	}
	if r.Enabled != nil {
		e := *r.Enabled
		out.Enabled = &e
	}
	return out
}

type externalResourceJSON struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	ID          string           `json:"id"`
	Enabled     *bool            `json:"enabled,omitempty"`
	Reserved    *types.StashInfo `json:"reserved,omitempty"`
	Locked      *types.StashInfo `json:"locked,omitempty"`
	Children    []*Value         `json:"children,omitempty"`
	Exposed     bool             `json:"exposed,omitempty"`
}

func (r *ExternalResource) MarshalJSON() ([]byte, error) {
	r.mutex.Lock()
	snapshot := externalResourceJSON{
		Name:        r.Name,
		Description: r.Description,
		ID:          r.ID,
		Enabled:     r.Enabled,
		Reserved:    r.Reserved.DeepCopy(),
		Locked:      r.Locked.DeepCopy(),
		Children:    r.Children,
		Exposed:     r.Exposed,
	}
	r.mutex.Unlock()
	return json.Marshal(snapshot)
}

func (r *ExternalResource) UnmarshalJSON(data []byte) error {
	decoded := externalResourceJSON{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.ID == "" {
		return errors.Errorf("external resource %v is missing the id", decoded.Name)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Name = decoded.Name
	r.Description = decoded.Description
	r.ID = decoded.ID
	r.Enabled = decoded.Enabled
	r.Reserved = decoded.Reserved
	r.Locked = decoded.Locked
	r.Children = decoded.Children
	r.Exposed = decoded.Exposed
	return nil
}
