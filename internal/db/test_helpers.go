package db

import (
	"testing"
	"time"

	"github.com/banshee-data/carry.report/internal/geo"
)

// newTestDB opens a fresh in-memory database with the full schema.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedJob inserts a job row with the given active flag. Driver 0 means no
// driver assignment.
func seedJob(t *testing.T, db *DB, jobID, driverID int64, active bool) {
	t.Helper()
	activeInt := 0
	if active {
		activeInt = 1
	}
	var driver interface{}
	if driverID != 0 {
		driver = driverID
	}
	if _, err := db.Exec(
		`INSERT INTO jobs (id, driver_id, active) VALUES (?, ?, ?)`,
		jobID, driver, activeInt); err != nil {
		t.Fatalf("seedJob failed: %v", err)
	}
}

func seedDriver(t *testing.T, db *DB, driverID, clampID int64) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO clamp_drivers (id, clamp_id) VALUES (?, ?)`,
		driverID, clampID); err != nil {
		t.Fatalf("seedDriver failed: %v", err)
	}
}

func seedTask(t *testing.T, db *DB, taskID, jobID int64, itemModel string, origin, dest int64) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO job_tasks (id, job_id, model, origin, destination) VALUES (?, ?, ?, ?, ?)`,
		taskID, jobID, itemModel, origin, dest); err != nil {
		t.Fatalf("seedTask failed: %v", err)
	}
}

func seedItem(t *testing.T, db *DB, itemID int64, itemModel string, currLoc, serialLock int64) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO items (id, model, serial_lock, curr_loc_id) VALUES (?, ?, ?, ?)`,
		itemID, itemModel, serialLock, currLoc); err != nil {
		t.Fatalf("seedItem failed: %v", err)
	}
}

func seedTruck(t *testing.T, db *DB, truckID int64, latestRFID string) {
	t.Helper()
	var latest interface{}
	if latestRFID != "" {
		latest = latestRFID
	}
	if _, err := db.Exec(
		`INSERT INTO clamp_trucks (id, latest_rfid_timestamp) VALUES (?, ?)`,
		truckID, latest); err != nil {
		t.Fatalf("seedTruck failed: %v", err)
	}
}

func seedLocSample(t *testing.T, db *DB, truckID, locID int64, locType string, x, y, speed float64, clamp byte, ts string) {
	t.Helper()
	if _, err := db.Exec(`
		INSERT INTO loc_data (truck_id, loc_id, loc_type, x, y, speed, clamp_status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		truckID, locID, locType, x, y, speed, clamp, ts); err != nil {
		t.Fatalf("seedLocSample failed: %v", err)
	}
}

func seedDetection(t *testing.T, db *DB, truckID, itemID int64, ts string) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO detected_items (truck_id, item_id, timestamp) VALUES (?, ?, ?)`,
		truckID, itemID, ts); err != nil {
		t.Fatalf("seedDetection failed: %v", err)
	}
}

// countActiveAlerts returns the number of active alerts of the given type
// for a job; an empty type counts every active alert.
func countActiveAlerts(t *testing.T, db *DB, jobID int64, alertType string) int {
	t.Helper()
	var n int
	var err error
	if alertType == "" {
		err = db.QueryRow(
			`SELECT COUNT(*) FROM alerts WHERE job_id = ? AND active = 1`, jobID).Scan(&n)
	} else {
		err = db.QueryRow(
			`SELECT COUNT(*) FROM alerts WHERE job_id = ? AND active = 1 AND type = ?`,
			jobID, alertType).Scan(&n)
	}
	if err != nil {
		t.Fatalf("countActiveAlerts failed: %v", err)
	}
	return n
}

// mustParse parses a wire-format timestamp or fails the test.
func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := geo.ParseTimestamp(s)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", s, err)
	}
	return ts
}
