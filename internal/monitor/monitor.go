// Package monitor implements the per-job monitoring state machine. One
// Monitor owns one (job, truck) pair: it polls the truck's location and
// clamp telemetry, detects pickup and drop events, validates them against
// the job's task list, maintains the trip/carry analytics, and raises or
// cancels alerts as the job progresses.
//
// The monitor is single-threaded: all state mutations happen on the tick
// loop, and every observable effect of a location sample is committed
// before the next sample is handled.
package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/carry.report/internal/config"
	"github.com/banshee-data/carry.report/internal/geo"
	"github.com/banshee-data/carry.report/internal/model"
	"github.com/banshee-data/carry.report/internal/monitoring"
)

// Monitor tracks one job on one truck. Construct with New, drive with Run,
// or feed events directly through the scenario entry points.
type Monitor struct {
	cfg   *config.Config
	store Store
	logf  func(format string, v ...interface{})
	runID string

	jobStartTime time.Time
	cursor       time.Time

	// Current sample, updated per location tuple.
	currLocID   int64
	currLocType string
	currCoords  geo.Point
	currTime    time.Time
	prevTime    time.Time
	hasPrev     bool
	prevClamp   byte

	// Pending pickup: armed on a clamp-open falling edge, resolved when the
	// truck clears the pickup distance gate.
	pickupArmed  bool
	pickupCoords geo.Point
	pickupTime   time.Time
	// activePickup tracks a correct-origin pickup whose clamps_closed_event
	// notification is cleared once the truck drives off.
	activePickup bool

	// Pending drop, resolved when the truck clears the drop distance gate.
	dropArmed  bool
	dropCoords geo.Point
	dropTime   time.Time
	dropLoc    int64

	tasks               []*model.Task
	carries             []*model.Carry
	correctOrigins      map[int64]struct{}
	correctDests        map[int64]struct{}
	pickupHistory       []int64
	dropHistory         []int64
	latestPickupItemIDs map[int64]struct{}
	taskCompletionTimes []time.Time
	speedAccumulator    []float64
}

// New builds a monitor for the store's bound job, loading its task list and
// deriving the correct origin and destination sets from it.
func New(cfg *config.Config, store Store) (*Monitor, error) {
	m := &Monitor{
		cfg:                 cfg,
		store:               store,
		logf:                monitoring.Logf,
		runID:               uuid.NewString(),
		jobStartTime:        time.Now(),
		correctOrigins:      make(map[int64]struct{}),
		correctDests:        make(map[int64]struct{}),
		latestPickupItemIDs: make(map[int64]struct{}),
	}
	m.cursor = m.jobStartTime
	if err := m.loadTasks(); err != nil {
		return nil, err
	}
	return m, nil
}

// SetLogger redirects the monitor's event log, typically to the per-worker
// log file.
func (m *Monitor) SetLogger(logf func(format string, v ...interface{})) {
	if logf != nil {
		m.logf = logf
	}
}

// RunID returns this monitor run's correlation id.
func (m *Monitor) RunID() string { return m.runID }

func (m *Monitor) loadTasks() error {
	tasks, err := m.store.Tasks()
	if err != nil {
		return err
	}
	m.tasks = tasks
	for _, t := range tasks {
		m.correctOrigins[t.Origin] = struct{}{}
		m.correctDests[t.Dest] = struct{}{}
	}
	m.logf("run %s: job %d on truck %d with %d tasks",
		m.runID, m.store.JobID(), m.store.TruckID(), len(tasks))
	return nil
}

// Run is the monitor's main loop. Each tick it checks the job's active flag,
// fetches the location samples that arrived since the cursor, and processes
// them in ascending timestamp order. Run returns nil when the job manager
// deactivates the job, ctx.Err() on cancellation, and the underlying error
// when a store call fails; the caller supervises restarts.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.GetTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		active, err := m.store.IsJobActive()
		if err != nil {
			return err
		}
		if !active {
			m.logf("job %d deactivated, monitor exiting", m.store.JobID())
			return m.store.Close()
		}

		if err := m.Tick(ctx); err != nil {
			return err
		}
	}
}

// Tick processes one batch of location samples and advances the cursor.
// Exposed so tests and the scenario player can drive the loop directly.
func (m *Monitor) Tick(ctx context.Context) error {
	samples, err := m.store.LocationsSince(m.cursor)
	if err != nil {
		return err
	}
	for i := range samples {
		if err := m.processSample(ctx, samples[i]); err != nil {
			return err
		}
	}
	if len(samples) > 0 {
		m.cursor = samples[len(samples)-1].Timestamp
	}
	return nil
}

func (m *Monitor) processSample(ctx context.Context, s model.LocSample) error {
	m.setLocData(s)
	tracef("sample loc=%d type=%s speed=%.2f clamp=%#x at %s",
		s.LocID, s.LocType, s.Speed, s.ClampStatus, geo.FormatTimestamp(s.Timestamp))

	if len(m.carries) == 0 {
		m.carries = append(m.carries, model.NewCarry(1, s.Timestamp, s.LocID))
	}
	m.updateCarryTimes()
	trip := m.currentCarry().CurrentTrip()
	trip.AppendSpeed(s.Speed)
	trip.AppendCoords(s.Coords)

	sig := model.DetectClampEdges(m.prevClamp, s.ClampStatus)
	m.prevClamp = s.ClampStatus

	// Pickup edge first: when both edges land on one sample the load must be
	// accounted before the drop is validated.
	if sig.Pickup {
		if err := m.handlePickupSignal(); err != nil {
			return err
		}
	}
	if sig.Drop {
		if err := m.handleDropSignal(ctx); err != nil {
			return err
		}
	}

	if m.dropArmed && m.beyond(m.cfg.GetDropCheckDistance(), m.dropCoords) {
		m.dropArmed = false
		sensed, err := m.dropWindowItems(ctx)
		if err != nil {
			return err
		}
		if err := m.checkDrop(m.dropLoc, sensed); err != nil {
			return err
		}
	}

	if m.activePickup && m.beyond(m.cfg.GetPickupCheckDistanceTrigger(), m.pickupCoords) {
		m.activePickup = false
		if err := m.store.CancelAlertsByType(model.AlertClampsClosedEvent); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) setLocData(s model.LocSample) {
	m.prevTime = m.currTime
	m.hasPrev = !m.currTime.IsZero()
	m.currLocID = s.LocID
	m.currLocType = s.LocType
	m.currCoords = s.Coords
	m.currTime = s.Timestamp
	m.speedAccumulator = append(m.speedAccumulator, s.Speed)
}

func (m *Monitor) handlePickupSignal() error {
	m.logf("PICKUP @ %d at %v", m.currLocID, m.currCoords)
	if !m.clampCheckEnabled() {
		return nil
	}

	correctOrigin := m.notePickup(m.currLocID)
	_, correctDest := m.correctDests[m.currLocID]

	warning := model.AlertClampsClosedWarning
	if correctOrigin {
		warning = model.AlertClampsClosedEvent
	}
	if m.hasOpenTasks() && !correctDest {
		if err := m.createAlert(warning, m.currLocID, nil); err != nil {
			return err
		}
	}

	diagf("arming pickup distance check at loc %d", m.currLocID)
	m.pickupArmed = true
	m.pickupCoords = m.currCoords
	m.pickupTime = m.currTime

	if correctOrigin {
		// A correct origin starts a new loaded leg: clear stale warnings and
		// close the trip that brought the truck here.
		m.activePickup = true
		if err := m.store.CancelAlertsByType(model.AlertClampsClosedWarning); err != nil {
			return err
		}
		m.finalizeTrip(m.currLocID, m.currTime, false)
	}
	return nil
}

func (m *Monitor) handleDropSignal(ctx context.Context) error {
	m.logf("DROP @ %d at %v", m.currLocID, m.currCoords)
	if !m.clampCheckEnabled() || m.dropArmed {
		return nil
	}

	// Flush the pending pickup so its RFID window is accounted before the
	// drop load is examined.
	if err := m.checkPickup(ctx); err != nil {
		return err
	}

	m.dropHistory = append(m.dropHistory, m.currLocID)
	diagf("arming drop distance check at loc %d", m.currLocID)
	m.dropArmed = true
	m.dropCoords = m.currCoords
	m.dropTime = m.currTime
	m.dropLoc = m.currLocID

	if m.cfg.GetNOERoutingEnabled() {
		open, err := m.store.HasPlacementAlerts()
		if err != nil {
			return err
		}
		if open {
			// A cannot_place or damaged_item alert opens the NOE sink as a
			// temporary correct destination.
			m.correctDests[m.cfg.GetNOELocID()] = struct{}{}
		}
	}

	if _, ok := m.correctDests[m.currLocID]; ok {
		if err := m.store.CancelAlertsByType(model.AlertClampsClosedWarning); err != nil {
			return err
		}
	}
	return nil
}

// clampCheckEnabled reports whether the current location can contain
// inventory. Aisles and the charging area are excluded so maneuvering trucks
// do not trigger spurious checks.
func (m *Monitor) clampCheckEnabled() bool {
	return m.currLocType != model.LocTypeAisle && m.currLocType != model.LocTypeCharging
}

func (m *Monitor) updateCarryTimes() {
	if !m.hasPrev {
		return
	}
	switch m.currLocType {
	case model.LocTypeStow:
		m.currentCarry().AddStowTime(m.prevTime, m.currTime)
	case model.LocTypeDock, model.LocTypeDockOS:
		m.currentCarry().AddDockTime(m.prevTime, m.currTime)
	}
}

// beyond reports whether the truck has moved further than threshold metres
// from the reference coordinates.
func (m *Monitor) beyond(threshold float64, ref geo.Point) bool {
	return geo.Distance(m.currCoords, ref) > threshold
}

func (m *Monitor) currentCarry() *model.Carry { return m.carries[len(m.carries)-1] }

func (m *Monitor) hasOpenTasks() bool {
	for _, t := range m.tasks {
		if !t.Complete {
			return true
		}
	}
	return false
}

// notePickup records the pickup site and reports whether it is a correct
// origin. Both the live clamp path and the scenario driver record pickups
// through here, so each event lands in the history exactly once.
func (m *Monitor) notePickup(locID int64) bool {
	m.pickupHistory = append(m.pickupHistory, locID)
	_, correctOrigin := m.correctOrigins[locID]
	return correctOrigin
}

func (m *Monitor) inPickupHistory(locID int64) bool {
	for _, loc := range m.pickupHistory {
		if loc == locID {
			return true
		}
	}
	return false
}

func (m *Monitor) createAlert(typ model.AlertType, locID int64, items []*model.Item) error {
	if err := m.store.CreateAlert(locID, typ, items, m.currTime); err != nil {
		return err
	}
	m.logf("%s alert created at %d", typ, locID)
	return nil
}

// finalizeTrip closes the open trip at the given location, then opens a
// successor leg unless the carry is closing too or no tasks remain. A trip
// may end where it started only when its carry also ends there.
func (m *Monitor) finalizeTrip(locID int64, at time.Time, carryFinished bool) {
	if len(m.carries) == 0 {
		return
	}
	trip := m.currentCarry().CurrentTrip()
	if trip.Origin == locID && !carryFinished {
		return
	}
	trip.Finish(locID, at)
	if m.hasOpenTasks() && !carryFinished {
		m.currentCarry().AppendTrip(at, locID)
	}
}

// finalizeCarry closes the open carry with the number of correct units
// dropped, then opens the next carry if tasks remain.
func (m *Monitor) finalizeCarry(locID int64, at time.Time, unitCount int) {
	if len(m.carries) > 0 {
		m.currentCarry().Finish(locID, unitCount, at)
	}
	if m.hasOpenTasks() {
		m.carries = append(m.carries, model.NewCarry(len(m.carries)+1, at, locID))
	}
}

// checkRemainingTasks raises a remaining_tasks alert when open tasks still
// target the drop location, or cancels one when none remain.
func (m *Monitor) checkRemainingTasks(locID int64) error {
	remaining := 0
	for _, t := range m.tasks {
		if !t.Complete && t.Dest == locID {
			remaining++
		}
	}
	if remaining > 0 {
		m.logf("%d incomplete tasks at loc %d", remaining, locID)
		return m.createAlert(model.AlertRemainingTasks, locID, nil)
	}
	return m.store.CancelRemainingTasksAlert(locID)
}

// checkJob persists completion once every task is closed and no blocking
// alert remains. The task and origin/destination sets are cleared afterwards:
// any further inventory movement by this truck raises an alert until a new
// job is launched.
func (m *Monitor) checkJob() error {
	if len(m.tasks) == 0 || m.hasOpenTasks() {
		return nil
	}
	blocked, err := m.store.HasActiveAlerts()
	if err != nil {
		return err
	}
	if blocked {
		return nil
	}

	m.logf("job %d completed at %s", m.store.JobID(), geo.FormatTimestamp(m.currTime))
	m.logCompletion()
	if err := m.store.SaveCarries(m.carries); err != nil {
		return err
	}
	if err := m.store.SaveJob(m.jobStartTime, m.currTime, m.carries); err != nil {
		return err
	}
	m.tasks = nil
	m.correctOrigins = make(map[int64]struct{})
	m.correctDests = make(map[int64]struct{})
	return nil
}

func (m *Monitor) logCompletion() {
	for _, t := range m.tasks {
		m.logf("task %s item=%v avg_speed=%.2f", t, t.ItemID, t.AvgSpeed)
	}
	for _, c := range m.carries {
		m.logf("carry %s units=%d trips=%d distance=%.2f",
			c, c.UnitCount, len(c.Trips), c.TotalDistance)
	}
}
