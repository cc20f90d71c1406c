package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/manager"
	"github.com/longhorn/resource-dispatcher/notify"
	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/scheduler"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/workload"
)

// Ordinal is the priority of the dispatcher among the admission checks of a scheduler.
const Ordinal = 5

type VetoReason string

const (
	VetoReasonAlreadyReserved      = VetoReason("already-reserved")
	VetoReasonNoAvailableResources = VetoReason("no-available-resources")
	VetoReasonNoMatchingResource   = VetoReason("no-matching-resource")
	VetoReasonNothingReserved      = VetoReason("nothing-reserved")
)

const (
	DispatchResultAdmitted   = "admitted"
	DispatchResultNoCriteria = "no-criteria"
)

// Veto blocks a pending workload from running on a node.
type Veto struct {
	Reason   VetoReason `json:"reason"`
	NodeName string     `json:"nodeName"`
	Message  string     `json:"message"`
}

func newVeto(reason VetoReason, nodeName string) *Veto {
	messages := map[VetoReason]string{
		VetoReasonAlreadyReserved:      "A resource is already reserved for this build",
		VetoReasonNoAvailableResources: "No available external resources on %v",
		VetoReasonNoMatchingResource:   "No external resource on %v matches the selection criteria",
		VetoReasonNothingReserved:      "None of the matching external resources on %v could be reserved",
	}
	msg := messages[reason]
	if reason != VetoReasonAlreadyReserved {
		msg = fmt.Sprintf(msg, nodeName)
	}
	return &Veto{
		Reason:   reason,
		NodeName: nodeName,
		Message:  msg,
	}
}

func (v *Veto) String() string {
	return v.Message
}

type Inventory interface {
	GetNode(name string) (*resource.Node, error)
}

type ManagerSource interface {
	Current() manager.ResourceManager
}

type SettingsProvider interface {
	GetSettingAsInt(name types.SettingName) (int, error)
}

// Observer is told the outcome of every admission check.
type Observer interface {
	ObserveDispatch(result string)
}

// Dispatcher is the admission hook of the scheduler together with the start and
// completion hooks of the workloads it admitted.
type Dispatcher struct {
	managers  ManagerSource
	inventory Inventory
	settings  SettingsProvider
	notifier  notify.Notifier
	observer  Observer

	filter   *scheduler.AvailabilityFilter
	carriers *CarrierStore

	sweepMutex sync.Mutex
	sweeper    *sweeper
}

func NewDispatcher(managers ManagerSource, inventory Inventory, settings SettingsProvider,
	notifier notify.Notifier, observer Observer) *Dispatcher {
	return &Dispatcher{
		managers:  managers,
		inventory: inventory,
		settings:  settings,
		notifier:  notifier,
		observer:  observer,

		filter:   scheduler.NewAvailabilityFilter(),
		carriers: NewCarrierStore(),
	}
}

func (d *Dispatcher) Carriers() *CarrierStore {
	return d.carriers
}

func (d *Dispatcher) reserveTime() int {
	if d.settings != nil {
		seconds, err := d.settings.GetSettingAsInt(types.SettingNameReserveTime)
		if err == nil && seconds > 0 {
			return seconds
		}
		if err != nil {
			logrus.WithError(err).Warnf("Failed to get setting %v, using default", types.SettingNameReserveTime)
		}
	}
	return types.DefaultReserveTime
}

func (d *Dispatcher) notify(msgType notify.MessageType, operation notify.OperationType, nodeName, resourceID, format string, args ...interface{}) {
	if d.notifier == nil {
		return
	}
	d.notifier.Notify(msgType, operation, nodeName, resourceID, fmt.Sprintf(format, args...))
}

func (d *Dispatcher) observe(result string) {
	if d.observer != nil {
		d.observer.ObserveDispatch(result)
	}
}

func (d *Dispatcher) veto(reason VetoReason, nodeName string) *Veto {
	d.observe(string(reason))
	return newVeto(reason, nodeName)
}

// CanTake decides whether the pending workload may run on the node. A nil veto admits
// it. When the workload needs a resource, the first matching one that the resource
// manager agrees to reserve is recorded for the workload, and later checks for the same
// workload are vetoed until it starts.
func (d *Dispatcher) CanTake(ctx context.Context, node *resource.Node, pending *workload.Pending) *Veto {
	log := logrus.WithFields(logrus.Fields{"node": node.Name, "pending": pending.ID})

	if d.carriers.Reserved(pending.ID) {
		log.Debug("A resource is already reserved for the pending workload")
		return d.veto(VetoReasonAlreadyReserved, node.Name)
	}

	criteria := pending.Criteria()
	if !criteria.IsActive() {
		d.observe(DispatchResultNoCriteria)
		return nil
	}

	resources := d.filter.ListResources(node)
	if len(resources) == 0 {
		log.Debug("No resources configured on node")
		return d.veto(VetoReasonNoAvailableResources, node.Name)
	}
	resources = d.filter.FilterAvailable(resources)
	if len(resources) == 0 {
		log.Debug("No available resources on node")
		return d.veto(VetoReasonNoAvailableResources, node.Name)
	}
	resources = criteria.Match(resources)
	if len(resources) == 0 {
		log.Debug("No matching resource on node")
		return d.veto(VetoReasonNoMatchingResource, node.Name)
	}

	m := d.managers.Current()
	holder := pending.Holder()
	seconds := d.reserveTime()

	var reserved *resource.ExternalResource
	var stash *types.StashInfo
	for _, r := range resources {
		rlog := log.WithField("resource", r.GetID())
		result := m.Reserve(ctx, node, r, seconds, holder)
		if !result.IsOK() {
			rlog.Debugf("Failed to reserve resource: %v", result)
			continue
		}
		info := types.NewStashInfoFromResult(result, holder)
		ok, err := r.TryReserve(info)
		if err != nil {
			rlog.WithError(err).Warn("Reserved resource but failed to save the state")
		}
		if !ok {
			rlog.Info("Resource was taken while reserving it, giving it back")
			d.giveBack(ctx, m, node, r, info, holder)
			continue
		}
		reserved, stash = r, info
		break
	}

	if reserved == nil {
		log.Info("Nothing reserved")
		d.notify(notify.MessageTypeError, notify.OperationReserve, node.Name, "",
			"None of the %v matching resources could be reserved for %v", len(resources), holder)
		return d.veto(VetoReasonNothingReserved, node.Name)
	}

	entry := &CarrierEntry{
		NodeName:   node.Name,
		ResourceID: reserved.GetID(),
		Stash:      stash,
		PushedAt:   time.Now(),
	}
	if !d.carriers.PushIfEmpty(pending.ID, entry) {
		log.Info("Another check reserved a resource for the pending workload first")
		if _, err := reserved.ExpireReservationFor(stash.Key); err != nil {
			log.WithError(err).Warn("Failed to save the dropped reservation")
		}
		d.giveBack(ctx, m, node, reserved, stash, holder)
		return d.veto(VetoReasonAlreadyReserved, node.Name)
	}

	log.WithField("resource", entry.ResourceID).Infof("Reserved resource for %v", holder)
	d.observe(DispatchResultAdmitted)
	return nil
}

func (d *Dispatcher) giveBack(ctx context.Context, m manager.ResourceManager, node *resource.Node, r *resource.ExternalResource, info *types.StashInfo, holder string) {
	if result := m.Release(ctx, node, r, info.Key, holder); !result.IsOK() {
		logrus.WithFields(logrus.Fields{"node": node.Name, "resource": r.GetID()}).
			Debugf("Failed to give back reservation: %v", result)
	}
}
