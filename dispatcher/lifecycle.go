package dispatcher

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/notify"
	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/workload"
)

// runLog writes a user facing line to the run.
func runLog(run *workload.Run, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	run.Messages = append(run.Messages, msg)
	if run.Log != nil {
		fmt.Fprintln(run.Log, msg)
	}
}

// OnPrepare converts the reservation made for the run into a lock, and attaches a snapshot
// of the locked resource to the run. Returning false aborts the run.
func (d *Dispatcher) OnPrepare(ctx context.Context, run *workload.Run) bool {
	log := logrus.WithFields(logrus.Fields{"run": run.ID, "node": run.NodeName})

	if !run.Criteria().IsActive() {
		return true
	}

	entry := d.carriers.Pop(run.PendingID)
	if entry == nil {
		log.Error("Run needs an external resource but none was reserved for it")
		runLog(run, "No external resource was reserved for this run")
		d.notify(notify.MessageTypeError, notify.OperationLock, run.NodeName, "",
			"No reservation recorded for run %v of %v", run.ID, run.Holder())
		return false
	}
	log = log.WithField("resource", entry.ResourceID)

	// the run executes, and is later released, on the node the resource was reserved on
	if run.NodeName == "" {
		run.NodeName = entry.NodeName
	}
	if run.NodeName != entry.NodeName {
		log.Errorf("Resource was reserved on node %v, not on the node of the run", entry.NodeName)
		runLog(run, "External resource %v was reserved on node %v, not on %v", entry.ResourceID, entry.NodeName, run.NodeName)
		d.notify(notify.MessageTypeError, notify.OperationLock, run.NodeName, entry.ResourceID,
			"Run %v started on a different node than its reservation on %v", run.ID, entry.NodeName)
		d.dropEntry(ctx, entry, run.Holder())
		return false
	}

	node, r, err := d.lookup(entry.NodeName, entry.ResourceID)
	if err != nil {
		log.WithError(err).Error("Reserved resource vanished before the run started")
		runLog(run, "Reserved external resource %v is gone: %v", entry.ResourceID, err)
		d.notify(notify.MessageTypeError, notify.OperationLock, entry.NodeName, entry.ResourceID,
			"Reserved resource vanished before run %v started", run.ID)
		return false
	}

	m := d.managers.Current()
	holder := run.Holder()
	key := entry.Stash.Key

	reserved := r.GetReserved()
	switch {
	case reserved == nil:
		log.Info("Reservation lapsed before the run started, reserving again")
		result := m.Reserve(ctx, node, r, d.reserveTime(), holder)
		if !result.IsOK() {
			runLog(run, "External resource %v was taken by someone else", entry.ResourceID)
			d.notify(notify.MessageTypeWarning, notify.OperationReserve, node.Name, entry.ResourceID,
				"Failed to reserve again for run %v: %v", run.ID, result)
			return false
		}
		info := types.NewStashInfoFromResult(result, holder)
		ok, err := r.TryReserve(info)
		if err != nil {
			log.WithError(err).Warn("Failed to save the reservation")
		}
		if !ok {
			d.giveBack(ctx, m, node, r, info, holder)
			runLog(run, "External resource %v was taken by someone else", entry.ResourceID)
			return false
		}
		key = info.Key
	case reserved.Key != key:
		runLog(run, "External resource %v was taken by someone else", entry.ResourceID)
		d.notify(notify.MessageTypeWarning, notify.OperationLock, node.Name, entry.ResourceID,
			"Resource is held by %v, not by run %v", reserved.Holder, run.ID)
		return false
	}

	result := m.Lock(ctx, node, r, key, holder)
	if !result.IsOK() {
		log.Warnf("Failed to lock resource: %v", result)
		runLog(run, "Failed to lock external resource %v: %v", entry.ResourceID, result)
		d.notify(notify.MessageTypeError, notify.OperationLock, node.Name, entry.ResourceID,
			"Failed to lock for run %v: %v", run.ID, result)
		if _, err := r.ExpireReservationFor(key); err != nil {
			log.WithError(err).Warn("Failed to save the dropped reservation")
		}
		d.giveBack(ctx, m, node, r, &types.StashInfo{Key: key}, holder)
		return false
	}

	lock := types.NewStashInfoFromResult(result, holder)
	if lock.Key == "" {
		lock.Key = key
	}
	if err := r.MarkLocked(lock); err != nil {
		log.WithError(err).Warn("Locked resource but failed to save the state")
		runLog(run, "Locked external resource %v but failed to save its state", entry.ResourceID)
	}

	snapshot := r.Clone()
	snapshot.Exposed = true
	run.SetLockedResource(snapshot)

	log.Infof("Locked resource for %v", holder)
	runLog(run, "Locked external resource %v", entry.ResourceID)
	return true
}

// OnComplete releases the resource locked for the run. Failures are reported but never
// fail the run.
func (d *Dispatcher) OnComplete(ctx context.Context, run *workload.Run) {
	snapshot := run.LockedResource()
	if snapshot == nil {
		return
	}
	id := snapshot.GetID()
	log := logrus.WithFields(logrus.Fields{"run": run.ID, "node": run.NodeName, "resource": id})

	ours := snapshot.GetLocked()
	defer func() {
		if err := snapshot.ClearLock(); err != nil {
			log.WithError(err).Debug("Failed to clear the snapshot lock")
		}
	}()

	node, r, err := d.lookup(run.NodeName, id)
	if err != nil {
		log.WithError(err).Warn("Locked resource vanished before release")
		runLog(run, "External resource %v is gone, nothing to release", id)
		d.notify(notify.MessageTypeWarning, notify.OperationRelease, run.NodeName, id,
			"Resource vanished before run %v released it", run.ID)
		return
	}

	live := r.GetLocked()
	if live == nil {
		log.Info("Resource was already released")
		runLog(run, "External resource %v was already released", id)
		d.notify(notify.MessageTypeWarning, notify.OperationRelease, node.Name, id,
			"Resource was not locked anymore when run %v completed", run.ID)
		return
	}
	if ours != nil && live.Key != ours.Key {
		log.Info("Resource is locked by someone else, not releasing")
		runLog(run, "External resource %v was already released", id)
		d.notify(notify.MessageTypeWarning, notify.OperationRelease, node.Name, id,
			"Resource is locked by %v, run %v does not release it", live.Holder, run.ID)
		return
	}

	result := d.managers.Current().Release(ctx, node, r, live.Key, run.Holder())
	if !result.IsOK() {
		log.Warnf("Failed to release resource: %v", result)
		runLog(run, "Failed to release external resource %v: %v", id, result)
		d.notify(notify.MessageTypeError, notify.OperationRelease, node.Name, id,
			"Failed to release for run %v: %v", run.ID, result)
		return
	}
	if err := r.ClearLock(); err != nil {
		log.WithError(err).Warn("Released resource but failed to save the state")
		runLog(run, "Released external resource %v but failed to save its state", id)
		return
	}
	log.Info("Released resource")
	runLog(run, "Released external resource %v", id)
}

// dropEntry gives back a reservation no run is going to lock.
func (d *Dispatcher) dropEntry(ctx context.Context, entry *CarrierEntry, holder string) {
	node, r, err := d.lookup(entry.NodeName, entry.ResourceID)
	if err != nil {
		return
	}
	if _, err := r.ExpireReservationFor(entry.Stash.Key); err != nil {
		logrus.WithFields(logrus.Fields{"node": node.Name, "resource": r.GetID()}).
			WithError(err).Warn("Failed to save the dropped reservation")
	}
	d.giveBack(ctx, d.managers.Current(), node, r, entry.Stash, holder)
}

func (d *Dispatcher) lookup(nodeName, id string) (*resource.Node, *resource.ExternalResource, error) {
	node, err := d.inventory.GetNode(nodeName)
	if err != nil {
		return nil, nil, err
	}
	if node == nil {
		return nil, nil, &types.NotFoundError{Name: "node " + nodeName}
	}
	r := d.filter.FindByID(node, id)
	if r == nil {
		return nil, nil, &types.NotFoundError{Name: "resource " + id}
	}
	return node, r, nil
}
