package monitor

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/carry.report/internal/geo"
	"github.com/banshee-data/carry.report/internal/model"
)

// pickupBackWindow bounds how far before a pickup the RFID window may start.
const pickupBackWindow = 60 * time.Second

// checkPickup resolves the pending pickup, if any. It never raises or
// cancels item-level alerts: it only accumulates the detected item ids into
// the latest-pickup set, which the drop check consults later. The RFID fetch
// happens only when the truck has already cleared the pickup distance gate.
func (m *Monitor) checkPickup(ctx context.Context) error {
	m.logf("checking pickup load")

	var items []*model.Item
	if m.pickupArmed && m.beyond(m.cfg.GetPickupCheckDistanceTrigger(), m.pickupCoords) {
		var err error
		items, err = m.pickupWindowItems(ctx)
		if err != nil {
			return err
		}
	}
	m.pickupArmed = false

	for _, item := range items {
		m.latestPickupItemIDs[item.ID] = struct{}{}
	}
	if len(items) > 0 {
		m.logf("pickup set now holds %d items", len(m.latestPickupItemIDs))
	}
	return nil
}

// pickupWindowItems computes the pickup RFID window and returns the items
// detected in it. The window starts at the latest sample within the last 60
// seconds whose distance from the pickup coordinates is at least the
// configured window radius (the moment the truck entered the pickup circle),
// and ends pickup_post_seconds after the pickup. The RFID wait is bounded;
// timing out just means validating with what arrived so far.
func (m *Monitor) pickupWindowItems(ctx context.Context) ([]*model.Item, error) {
	floor := m.pickupTime.Add(-pickupBackWindow)
	samples, err := m.store.LocSamplesBetween(floor, m.pickupTime)
	if err != nil {
		return nil, err
	}

	loadStart := floor
	window := m.cfg.GetPickupCheckDistanceWindow()
	for _, s := range samples {
		if geo.Distance(m.pickupCoords, s.Coords) >= window {
			loadStart = s.Timestamp
			break
		}
	}
	loadEnd := m.pickupTime.Add(time.Duration(m.cfg.GetPickupPostSeconds() * float64(time.Second)))

	if err := m.store.WaitForRFID(ctx, loadEnd, m.cfg.GetRFIDWaitTimeout()); err != nil {
		return nil, err
	}
	diagf("pickup RFID window [%s, %s]", geo.FormatTimestamp(loadStart), geo.FormatTimestamp(loadEnd))
	return m.store.ItemsDetected(loadStart, loadEnd)
}

// dropWindowItems returns the items detected between drop_pre_seconds before
// the drop and the current sample, after waiting for the RFID stream to
// catch up.
func (m *Monitor) dropWindowItems(ctx context.Context) ([]*model.Item, error) {
	start := m.dropTime.Add(-time.Duration(m.cfg.GetDropPreSeconds() * float64(time.Second)))
	if err := m.store.WaitForRFID(ctx, m.currTime, m.cfg.GetRFIDWaitTimeout()); err != nil {
		return nil, err
	}
	diagf("drop RFID window [%s, %s]", geo.FormatTimestamp(start), geo.FormatTimestamp(m.currTime))
	return m.store.ItemsDetected(start, m.currTime)
}

// shouldCheckItemAtDrop decides whether a sensed item takes part in drop
// validation. Items seen at the latest pickup always do. Otherwise the item
// must come from a location in the pickup history, and items from locations
// that already carry a drop_location alert (and are not correct origins) are
// skipped so a driver fixing an alert does not trip new ones from
// neighbouring stows.
func (m *Monitor) shouldCheckItemAtDrop(item *model.Item) (bool, error) {
	if _, ok := m.latestPickupItemIDs[item.ID]; ok {
		return true, nil
	}
	if _, ok := m.correctOrigins[item.Origin]; !ok {
		flagged, err := m.store.LocHasActiveDropLocationAlert(item.Origin)
		if err != nil {
			return false, err
		}
		if flagged {
			return false, nil
		}
	}
	return m.inPickupHistory(item.Origin), nil
}

// checkDrop validates the sensed load against the open tasks. Each checked
// item is classified as correct (closes a task), returned (put back at its
// origin), or wrong; classification completes over the whole load before any
// alert is emitted.
func (m *Monitor) checkDrop(dropLoc int64, sensed []*model.Item) error {
	m.logf("checking drop load at %d: %d sensed items", dropLoc, len(sensed))

	var correct, returned, wrong []*model.Item
	for _, item := range sensed {
		check, err := m.shouldCheckItemAtDrop(item)
		if err != nil {
			return err
		}
		if !check {
			tracef("skipping item %d from loc %d", item.ID, item.Origin)
			continue
		}

		matched, err := m.matchOpenTask(item, dropLoc)
		if err != nil {
			return err
		}
		if matched {
			correct = append(correct, item)
			continue
		}

		if item.Origin == dropLoc {
			returned = append(returned, item)
			continue
		}
		label, err := m.checkAllegedWrongItem(item, dropLoc)
		if err != nil {
			return err
		}
		switch label {
		case labelCorrect:
			correct = append(correct, item)
		case labelReturned:
			returned = append(returned, item)
		default:
			wrong = append(wrong, item)
		}
	}

	m.assignCorrectLocations(wrong)

	_, atCorrectDest := m.correctDests[dropLoc]
	anyClassified := len(correct)+len(returned)+len(wrong) > 0

	if len(correct) > 0 && atCorrectDest {
		m.speedAccumulator = nil
		m.taskCompletionTimes = append(m.taskCompletionTimes, m.currTime)
	}

	if len(returned) > 0 {
		if err := m.store.CancelAlertsByItems(returned); err != nil {
			return err
		}
	}

	if len(wrong) > 0 {
		alertType := model.AlertDropLocation
		if atCorrectDest {
			alertType = model.AlertDropItems
		}
		m.logf("%d wrong items in drop at %d", len(wrong), dropLoc)
		opsf("%s: %d wrong items at loc %d", alertType, len(wrong), dropLoc)
		if err := m.createAlert(alertType, dropLoc, wrong); err != nil {
			return err
		}
	}

	if anyClassified && atCorrectDest {
		m.finalizeTrip(dropLoc, m.currTime, len(correct) > 0)
	}

	if len(correct) > 0 {
		if err := m.store.CancelAlertsByItems(correct); err != nil {
			return err
		}
		m.finalizeCarry(dropLoc, m.currTime, len(correct))
		if err := m.checkRemainingTasks(dropLoc); err != nil {
			return err
		}
	}

	if err := m.checkJob(); err != nil {
		return err
	}
	m.latestPickupItemIDs = make(map[int64]struct{})
	return nil
}

// matchOpenTask scans the open tasks for one the item closes at this drop:
// same model, fungible item, item coming from the task's origin, and the
// drop landing on the task's destination. With NOE routing enabled and a
// placement alert open, a drop at the NOE sink closes the task regardless of
// its destination.
func (m *Monitor) matchOpenTask(item *model.Item, dropLoc int64) (bool, error) {
	noeOpen := false
	if m.cfg.GetNOERoutingEnabled() {
		_, noeOpen = m.correctDests[m.cfg.GetNOELocID()]
	}

	for _, task := range m.tasks {
		if task.Complete {
			continue
		}
		if item.Model != task.Model || !item.Fungible() || item.Origin != task.Origin {
			continue
		}
		if dropLoc == task.Dest {
			return true, m.bindTask(task, item, dropLoc)
		}
		if noeOpen && dropLoc == m.cfg.GetNOELocID() {
			m.logf("closing task %d via NOE drop for model %s", task.ID, task.Model)
			return true, m.bindTask(task, item, dropLoc)
		}
	}
	return false, nil
}

// bindTask completes the task with the item, moves the item's recorded
// location to the drop point, and persists both.
func (m *Monitor) bindTask(task *model.Task, item *model.Item, dropLoc int64) error {
	if err := m.store.UpdateItemLocation(item.ID, dropLoc); err != nil {
		return err
	}
	start := m.jobStartTime
	if n := len(m.taskCompletionTimes); n > 0 {
		start = m.taskCompletionTimes[n-1]
	}
	task.Bind(item.ID, start, m.currTime, m.taskAvgSpeed())
	return m.store.SaveTask(task)
}

// taskAvgSpeed is the mean truck speed accumulated since the previous task
// completion, rounded to two decimals.
func (m *Monitor) taskAvgSpeed() float64 {
	if len(m.speedAccumulator) == 0 {
		return 0
	}
	return math.Round(stat.Mean(m.speedAccumulator, nil)*100) / 100
}

type dropLabel int

const (
	labelWrong dropLabel = iota
	labelCorrect
	labelReturned
)

// checkAllegedWrongItem handles an item that matched no open task and was
// dropped away from its origin. Same-model items are interchangeable, so the
// driver must not be forced to move one specific physical unit when an
// equivalent one already sits in the right place: if this item previously
// closed a task and an equivalent item was left behind under an alert, the
// two are swapped — the left-behind item takes over the prior task, and this
// item either closes the open task targeting the drop location (correct) or
// goes back to the prior task's origin (returned). Anything else confirms
// the item as wrong.
func (m *Monitor) checkAllegedWrongItem(item *model.Item, dropLoc int64) (dropLabel, error) {
	if !item.Fungible() {
		return labelWrong, nil
	}

	var prior *model.Task
	for _, task := range m.tasks {
		if task.Model == item.Model && task.Complete &&
			task.ItemID != nil && *task.ItemID == item.ID {
			prior = task
			break
		}
	}

	alerts, err := m.store.AlertsMatching(item)
	if err != nil {
		return labelWrong, err
	}
	if prior == nil || len(alerts) == 0 {
		return labelWrong, nil
	}

	var correction *model.Task
	var alertToCancel *model.Alert

	if prior.Origin != dropLoc {
		for _, task := range m.tasks {
			if task.Model == item.Model && !task.Complete && task.Dest == dropLoc {
				correction = task
				break
			}
		}
		for _, a := range alerts {
			if a.CorrectLocID != nil && *a.CorrectLocID == dropLoc {
				alertToCancel = a
				break
			}
		}
		if correction == nil || alertToCancel == nil {
			return labelWrong, nil
		}
	} else {
		alertToCancel = alerts[0]
	}

	// The left-behind item under the alert takes over the prior task. Its
	// recorded location moves to the prior task's destination, which is where
	// it physically sits.
	if alertToCancel.ItemID != nil {
		swapped := *alertToCancel.ItemID
		prior.ItemID = &swapped
		if err := m.store.UpdateItemLocation(swapped, prior.Dest); err != nil {
			return labelWrong, err
		}
	}
	if err := m.store.SaveTask(prior); err != nil {
		return labelWrong, err
	}

	label := labelReturned
	if correction != nil {
		if err := m.bindTask(correction, item, dropLoc); err != nil {
			return labelWrong, err
		}
		label = labelCorrect
	}
	if err := m.store.CancelAlert(alertToCancel.ID); err != nil {
		return labelWrong, err
	}
	m.logf("swapped item %d into task %d, cancelled alert %d",
		item.ID, prior.ID, alertToCancel.ID)
	return label, nil
}

// assignCorrectLocations fills in where each wrong item should have gone:
// the destination of the first open task its model and origin fit, with each
// task reserved by at most one wrong item per drop, or the item's own origin
// when no task wants it.
func (m *Monitor) assignCorrectLocations(wrong []*model.Item) {
	reserved := make(map[int64]struct{})
	for _, item := range wrong {
		assigned := false
		for _, task := range m.tasks {
			if task.Complete {
				continue
			}
			if _, taken := reserved[task.ID]; taken {
				continue
			}
			if item.Model == task.Model && item.Fungible() && item.Origin == task.Origin {
				dest := task.Dest
				item.CorrectLocID = &dest
				reserved[task.ID] = struct{}{}
				assigned = true
				break
			}
		}
		if !assigned {
			origin := item.Origin
			item.CorrectLocID = &origin
		}
	}
}
