package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/carry.report/internal/geo"
	"github.com/banshee-data/carry.report/internal/model"
	"github.com/banshee-data/carry.report/internal/monitoring"
	"github.com/banshee-data/carry.report/internal/timeutil"
)

// JobStore is the data-access surface a single monitor worker runs against.
// It is bound to one (job, truck) pair for its whole lifetime. When live is
// false the store is in dry-run mode: reads behave normally, writes log the
// intended statement and do nothing.
type JobStore struct {
	db      *DB
	jobID   int64
	truckID int64
	live    bool
	logf    func(format string, v ...interface{})

	// clock is swapped out by tests to avoid real 1 Hz waits.
	clock timeutil.Clock
}

// NewJobStore binds a store surface to one job and truck. live=false
// suppresses all mutating writes (dry-run).
func (db *DB) NewJobStore(jobID, truckID int64, live bool) *JobStore {
	return &JobStore{
		db:      db,
		jobID:   jobID,
		truckID: truckID,
		live:    live,
		logf:    monitoring.Logf,
		clock:   timeutil.RealClock{},
	}
}

// SetLogger redirects the store's dry-run and diagnostic lines, typically to
// the per-worker log file.
func (s *JobStore) SetLogger(logf func(format string, v ...interface{})) {
	if logf != nil {
		s.logf = logf
	}
}

// JobID returns the bound job id.
func (s *JobStore) JobID() int64 { return s.jobID }

// TruckID returns the bound truck id.
func (s *JobStore) TruckID() int64 { return s.truckID }

// Close releases the store handle. The underlying DB is shared with the
// daemon, so per-worker close is a no-op kept for lifecycle symmetry.
func (s *JobStore) Close() error { return nil }

// IsJobActive reports whether the bound job is still marked active. The job
// manager flips the flag to stop a worker; a missing row counts as inactive.
func (s *JobStore) IsJobActive() (bool, error) {
	var active int
	err := s.db.QueryRow(`SELECT active FROM jobs WHERE id = ?`, s.jobID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query job active flag: %w", err)
	}
	return active == 1, nil
}

// Tasks returns the bound job's task list. Completed tasks come back bound
// to their item so a restarted worker resumes with consistent state.
func (s *JobStore) Tasks() ([]*model.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, model, origin, destination, item_id, status, start_time, finish_time, avg_speed
		FROM job_tasks
		WHERE job_id = ?
		ORDER BY id`, s.jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		var t model.Task
		var itemID sql.NullInt64
		var status int
		var startTime, finishTime sql.NullString
		var avgSpeed sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.Model, &t.Origin, &t.Dest,
			&itemID, &status, &startTime, &finishTime, &avgSpeed); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Complete = status == 1
		if itemID.Valid {
			id := itemID.Int64
			t.ItemID = &id
		}
		if ts, ok := parseNullTimestamp(startTime); ok {
			t.StartTime = &ts
		}
		if ts, ok := parseNullTimestamp(finishTime); ok {
			t.FinishTime = &ts
		}
		if avgSpeed.Valid {
			t.AvgSpeed = avgSpeed.Float64
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// LocationsSince returns the truck's location samples strictly after ts,
// sorted ascending by timestamp. Samples with null or unparseable fields are
// skipped with a log line.
func (s *JobStore) LocationsSince(ts time.Time) ([]model.LocSample, error) {
	rows, err := s.db.Query(`
		SELECT loc_id, loc_type, x, y, speed, clamp_status, timestamp
		FROM loc_data
		WHERE truck_id = ? AND timestamp > ?
		ORDER BY timestamp ASC`,
		s.truckID, geo.FormatTimestamp(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to query loc data: %w", err)
	}
	defer rows.Close()
	return s.scanLocSamples(rows)
}

// LocSamplesBetween returns the truck's location samples in [tmin, tmax]
// sorted descending by timestamp, for the pickup back-window scan.
func (s *JobStore) LocSamplesBetween(tmin, tmax time.Time) ([]model.LocSample, error) {
	rows, err := s.db.Query(`
		SELECT loc_id, loc_type, x, y, speed, clamp_status, timestamp
		FROM loc_data
		WHERE truck_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC`,
		s.truckID, geo.FormatTimestamp(tmin), geo.FormatTimestamp(tmax))
	if err != nil {
		return nil, fmt.Errorf("failed to query loc window: %w", err)
	}
	defer rows.Close()
	return s.scanLocSamples(rows)
}

func (s *JobStore) scanLocSamples(rows *sql.Rows) ([]model.LocSample, error) {
	var samples []model.LocSample
	for rows.Next() {
		var locID sql.NullInt64
		var locType, tsRaw sql.NullString
		var x, y, speed sql.NullFloat64
		var clamp sql.NullInt64
		if err := rows.Scan(&locID, &locType, &x, &y, &speed, &clamp, &tsRaw); err != nil {
			return nil, fmt.Errorf("failed to scan loc sample: %w", err)
		}
		if !locID.Valid || !locType.Valid || !x.Valid || !y.Valid || !speed.Valid || !clamp.Valid || !tsRaw.Valid {
			s.logf("skipping loc sample with null fields for truck %d", s.truckID)
			continue
		}
		ts, err := geo.ParseTimestamp(tsRaw.String)
		if err != nil {
			s.logf("skipping loc sample with bad timestamp %q: %v", tsRaw.String, err)
			continue
		}
		samples = append(samples, model.LocSample{
			LocID:       locID.Int64,
			LocType:     locType.String,
			Coords:      geo.Point{x.Float64, y.Float64},
			Speed:       speed.Float64,
			ClampStatus: byte(clamp.Int64),
			Timestamp:   ts,
		})
	}
	return samples, rows.Err()
}

// WaitForRFID blocks until the truck's latest RFID timestamp reaches target
// or the timeout elapses, polling the store at 1 Hz. Timing out is a normal
// outcome: validation proceeds with whatever was detected by then.
func (s *JobStore) WaitForRFID(ctx context.Context, target time.Time, timeout time.Duration) error {
	deadline := s.clock.Now().Add(timeout)
	for {
		var raw sql.NullString
		err := s.db.QueryRow(
			`SELECT latest_rfid_timestamp FROM clamp_trucks WHERE id = ?`,
			s.truckID).Scan(&raw)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query latest rfid timestamp: %w", err)
		}
		if raw.Valid {
			latest, err := geo.ParseTimestamp(raw.String)
			if err == nil {
				s.logf("latest RFID timestamp is %s", raw.String)
				if !latest.Before(target) {
					return nil
				}
			}
		}
		if s.clock.Now().After(deadline) {
			s.logf("RFID wait for %s timed out after %s", geo.FormatTimestamp(target), timeout)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(time.Second):
		}
	}
}

// ItemsDetected returns the items whose RFID events for this truck fall in
// [tmin, tmax], de-duplicated by item id.
func (s *JobStore) ItemsDetected(tmin, tmax time.Time) ([]*model.Item, error) {
	rows, err := s.db.Query(`
		SELECT i.id, i.model, i.curr_loc_id, i.serial_lock
		FROM detected_items d
		INNER JOIN items i ON (d.item_id = i.id)
		WHERE d.truck_id = ? AND d.timestamp >= ? AND d.timestamp <= ?
		GROUP BY i.id`,
		s.truckID, geo.FormatTimestamp(tmin), geo.FormatTimestamp(tmax))
	if err != nil {
		return nil, fmt.Errorf("failed to query detected items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ItemsByID returns the full item rows for the given ids. Used by the
// scenario player, which names items instead of sensing them.
func (s *JobStore) ItemsByID(ids []int64) ([]*model.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT id, model, curr_loc_id, serial_lock
		FROM items WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items by id: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]*model.Item, error) {
	var items []*model.Item
	for rows.Next() {
		var it model.Item
		var currLoc sql.NullInt64
		if err := rows.Scan(&it.ID, &it.Model, &currLoc, &it.SerialLock); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if currLoc.Valid {
			it.Origin = currLoc.Int64
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func parseNullTimestamp(ns sql.NullString) (time.Time, bool) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, false
	}
	ts, err := geo.ParseTimestamp(ns.String)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
