package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/longhorn/resource-dispatcher/notify"
	"github.com/longhorn/resource-dispatcher/types"
)

const (
	// SweepGracePeriod is added to the reserve time before an unconsumed reservation
	// is dropped from its carrier.
	SweepGracePeriod = 60 * time.Second

	DefaultSweepSchedule = "@every 30s"
)

type sweeper struct {
	mutex    sync.Mutex
	cron     *cron.Cron
	schedule string
}

// StartSweep runs Sweep on the cron schedule until StopSweep. Calling it again replaces
// the schedule.
func (d *Dispatcher) StartSweep(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := cron.Parse(schedule); err != nil {
		return errors.Wrapf(err, "invalid carrier sweep schedule %v", schedule)
	}

	c := cron.New()
	if err := c.AddFunc(schedule, func() {
		if err := d.Sweep(context.Background(), time.Now()); err != nil {
			logrus.WithError(err).Warn("Carrier sweep finished with errors")
		}
	}); err != nil {
		return errors.Wrapf(err, "failed to schedule carrier sweep")
	}

	d.StopSweep()

	d.sweepMutex.Lock()
	defer d.sweepMutex.Unlock()
	d.sweeper = &sweeper{cron: c, schedule: schedule}
	c.Start()
	logrus.Infof("Carrier sweep scheduled %v", schedule)
	return nil
}

func (d *Dispatcher) StopSweep() {
	d.sweepMutex.Lock()
	defer d.sweepMutex.Unlock()
	if d.sweeper == nil {
		return
	}
	d.sweeper.cron.Stop()
	d.sweeper = nil
}

func (d *Dispatcher) SweepSchedule() string {
	d.sweepMutex.Lock()
	defer d.sweepMutex.Unlock()
	if d.sweeper == nil {
		return ""
	}
	return d.sweeper.schedule
}

// Sweep drops the reservations of workloads which never started. A resource still
// reserved under the dropped key gets its reservation expired and given back.
func (d *Dispatcher) Sweep(ctx context.Context, now time.Time) error {
	deadline := now.Add(-time.Duration(d.reserveTime())*time.Second - SweepGracePeriod)

	var result error
	for pendingID, entries := range d.carriers.Expire(deadline) {
		for _, entry := range entries {
			if err := d.sweepEntry(ctx, pendingID, entry); err != nil {
				result = multierr.Append(result, err)
			}
		}
	}
	return result
}

func (d *Dispatcher) sweepEntry(ctx context.Context, pendingID string, entry *CarrierEntry) error {
	log := logrus.WithFields(logrus.Fields{"pending": pendingID, "node": entry.NodeName, "resource": entry.ResourceID})
	log.Info("Dropping reservation of a workload which never started")

	node, r, err := d.lookup(entry.NodeName, entry.ResourceID)
	if err != nil {
		if types.IsNotFoundError(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to sweep reservation of %v", pendingID)
	}

	expired, err := r.ExpireReservationFor(entry.Stash.Key)
	if !expired {
		return nil
	}
	d.giveBack(ctx, d.managers.Current(), node, r, entry.Stash, entry.Stash.Holder)
	d.notify(notify.MessageTypeInfo, notify.OperationReleaseAll, node.Name, entry.ResourceID,
		"Dropped reservation of %v, the workload never started", entry.Stash.Holder)
	if err != nil {
		return errors.Wrapf(err, "failed to save swept reservation of %v", pendingID)
	}
	return nil
}
