package monitor

import (
	"time"

	"github.com/banshee-data/carry.report/internal/model"
)

// Scenario entry points. The scenario player injects synthetic pickup and
// drop events straight into the validation paths, bypassing clamp-edge
// detection and the distance gates. Events name their items explicitly
// instead of sensing them over RFID.

// OpenCarry seeds the first carry at the scenario's initial location.
func (m *Monitor) OpenCarry(locID int64, at time.Time) {
	m.currTime = at
	if len(m.carries) == 0 {
		m.carries = append(m.carries, model.NewCarry(1, at, locID))
	}
}

// SimulatePickup plays a pickup of the named items at a location.
func (m *Monitor) SimulatePickup(locID int64, itemIDs []int64, at time.Time) {
	m.logf("simulating pickup of %v at %d", itemIDs, locID)
	m.currTime = at
	if m.notePickup(locID) {
		m.finalizeTrip(locID, at, false)
	}
	for _, id := range itemIDs {
		m.latestPickupItemIDs[id] = struct{}{}
	}
}

// SimulateDrop plays a drop of the named items at a location, running the
// full drop validation.
func (m *Monitor) SimulateDrop(store ItemLookup, locID int64, itemIDs []int64, at time.Time) error {
	m.logf("simulating drop of %v at %d", itemIDs, locID)
	m.currTime = at
	m.dropHistory = append(m.dropHistory, locID)
	sensed, err := store.ItemsByID(itemIDs)
	if err != nil {
		return err
	}
	return m.checkDrop(locID, sensed)
}

// ItemLookup resolves named item ids to full item records. Implemented by
// db.JobStore for the scenario player.
type ItemLookup interface {
	ItemsByID(ids []int64) ([]*model.Item, error)
}
