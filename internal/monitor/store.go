package monitor

import (
	"context"
	"time"

	"github.com/banshee-data/carry.report/internal/model"
)

// Store is the data-access surface the monitor runs against. The production
// implementation is db.JobStore, bound to one (job, truck) pair; tests and
// the scenario player substitute their own.
//
// Every mutating call is expected to be atomic per call and to honor the
// store's dry-run flag.
type Store interface {
	JobID() int64
	TruckID() int64

	IsJobActive() (bool, error)
	Tasks() ([]*model.Task, error)

	LocationsSince(ts time.Time) ([]model.LocSample, error)
	LocSamplesBetween(tmin, tmax time.Time) ([]model.LocSample, error)
	WaitForRFID(ctx context.Context, target time.Time, timeout time.Duration) error
	ItemsDetected(tmin, tmax time.Time) ([]*model.Item, error)

	HasActiveAlerts() (bool, error)
	LocHasActiveDropLocationAlert(locID int64) (bool, error)
	AlertsMatching(item *model.Item) ([]*model.Alert, error)
	HasPlacementAlerts() (bool, error)
	CreateAlert(locID int64, typ model.AlertType, items []*model.Item, ts time.Time) error
	CancelAlert(alertID int64) error
	CancelAlertsByType(typ model.AlertType) error
	CancelAlertsByItems(items []*model.Item) error
	CancelRemainingTasksAlert(locID int64) error

	UpdateItemLocation(itemID, locID int64) error
	SaveTask(task *model.Task) error
	SaveJob(start, finish time.Time, carries []*model.Carry) error
	SaveCarries(carries []*model.Carry) error

	Close() error
}
