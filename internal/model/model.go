// Package model defines the domain records the job monitor operates on:
// tasks, trips, carries, sensed items, alerts, and location samples. The
// records are held in memory by a single monitor worker; the store keeps the
// durable projection.
package model

import (
	"fmt"
	"time"

	"github.com/banshee-data/carry.report/internal/geo"
)

// Location types as reported by the positioning system. Aisles and the
// charging area never hold inventory, so clamp activity there is ignored.
const (
	LocTypeStow     = "stow"
	LocTypeDock     = "dock"
	LocTypeDockOS   = "dockOS"
	LocTypeAisle    = "aisle"
	LocTypeCharging = "charging"
)

// AlertType labels the condition an alert reports.
type AlertType string

const (
	// AlertClampsClosedEvent fires when clamps close at a correct origin
	// while tasks remain open. Informational; cleared as the truck drives off.
	AlertClampsClosedEvent AlertType = "clamps_closed_event"
	// AlertClampsClosedWarning fires when clamps close at a location that is
	// neither a correct origin nor a correct destination.
	AlertClampsClosedWarning AlertType = "clamps_closed_warning"
	// AlertDropItems reports wrong items dropped at a correct destination.
	AlertDropItems AlertType = "drop_items"
	// AlertDropLocation reports items dropped at an incorrect location.
	AlertDropLocation AlertType = "drop_location"
	// AlertRemainingTasks reports that a correct destination still has open
	// tasks after a drop completed some of them.
	AlertRemainingTasks AlertType = "remaining_tasks"
	// AlertCannotPlace and AlertDamagedItem are raised by the floor tooling,
	// not by the monitor; the monitor only reads them to decide whether the
	// NOE sink accepts out-of-task drops.
	AlertCannotPlace AlertType = "cannot_place"
	AlertDamagedItem AlertType = "damaged_item"
)

// LocSample is one positioning record for a truck: where it is, how fast it
// moves, and the raw clamp status byte.
type LocSample struct {
	LocID       int64
	LocType     string
	Coords      geo.Point
	Speed       float64
	ClampStatus byte
	Timestamp   time.Time
}

// Task is one line of the job's task list: move one unit of Model from
// Origin to Dest. A task is complete exactly when an item has been bound to
// it and a finish time recorded.
type Task struct {
	ID         int64
	Model      string
	Origin     int64
	Dest       int64
	Complete   bool
	ItemID     *int64
	StartTime  *time.Time
	FinishTime *time.Time
	AvgSpeed   float64
}

func (t *Task) String() string {
	return fmt.Sprintf("[task-%d model %s from %d to %d done %v]",
		t.ID, t.Model, t.Origin, t.Dest, t.Complete)
}

// Bind marks the task complete with the given item and timing. AvgSpeed is
// the mean truck speed accumulated since the previous task completion.
func (t *Task) Bind(itemID int64, start, finish time.Time, avgSpeed float64) {
	id := itemID
	s, f := start, finish
	t.ItemID = &id
	t.StartTime = &s
	t.FinishTime = &f
	t.AvgSpeed = avgSpeed
	t.Complete = true
}

// Item is one inventory unit as observed in an RFID pickup or drop window.
// Origin is the item's current location on record at detection time.
// SerialLock nonzero means the physical unit is identity-locked and cannot
// substitute for another unit of the same model. CorrectLocID is filled in
// by drop validation when the item ends up somewhere it should not be.
type Item struct {
	ID           int64
	Model        string
	Origin       int64
	SerialLock   int64
	CorrectLocID *int64
}

func (i *Item) String() string {
	return fmt.Sprintf("[item-%d %s from %d lock %d]", i.ID, i.Model, i.Origin, i.SerialLock)
}

// Fungible reports whether the item may stand in for any other unit of the
// same model.
func (i *Item) Fungible() bool { return i.SerialLock == 0 }

// Alert is the monitor's product: a typed, located flag the floor staff act
// on. ItemID is set for item-level alerts (drop_items always carries one),
// nil for location-level ones.
type Alert struct {
	ID           int64
	JobID        int64
	Type         AlertType
	LocID        int64
	ItemID       *int64
	CorrectLocID *int64
	Active       bool
	Timestamp    time.Time
}
