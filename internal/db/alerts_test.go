package db

import (
	"strings"
	"testing"

	"github.com/banshee-data/carry.report/internal/model"
)

func TestDryRunSkipsWrites(t *testing.T) {
	db := newTestDB(t)
	s := db.NewJobStore(1, 10, false)
	var lines []string
	s.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})

	ts := mustParse(t, "2026-08-24 09:00:00.000000")
	if err := s.CreateAlert(5, model.AlertClampsClosedEvent, nil, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	if n := countActiveAlerts(t, db, 1, ""); n != 0 {
		t.Errorf("dry-run store wrote %d alerts, want 0", n)
	}
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "[dry-run]") {
		t.Errorf("expected one [dry-run] log line, got %v", lines)
	}
}

func TestHasActiveAlertsIgnoresClampNotifications(t *testing.T) {
	db := newTestDB(t)
	s := db.NewJobStore(1, 10, true)
	ts := mustParse(t, "2026-08-24 09:00:00.000000")

	has, err := s.HasActiveAlerts()
	if err != nil {
		t.Fatalf("HasActiveAlerts failed: %v", err)
	}
	if has {
		t.Fatal("empty alert table should report no active alerts")
	}

	// Clamp notifications alone never block job completion.
	if err := s.CreateAlert(5, model.AlertClampsClosedEvent, nil, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	if err := s.CreateAlert(5, model.AlertClampsClosedWarning, nil, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	has, err = s.HasActiveAlerts()
	if err != nil {
		t.Fatalf("HasActiveAlerts failed: %v", err)
	}
	if has {
		t.Error("clamp notifications should not count as active alerts")
	}

	if err := s.CreateAlert(5, model.AlertDropLocation, nil, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	has, err = s.HasActiveAlerts()
	if err != nil {
		t.Fatalf("HasActiveAlerts failed: %v", err)
	}
	if !has {
		t.Error("drop_location alert should count as active")
	}
}

func TestCreateAlertPerItem(t *testing.T) {
	db := newTestDB(t)
	s := db.NewJobStore(1, 10, true)
	ts := mustParse(t, "2026-08-24 09:00:00.000000")

	correct := int64(12)
	items := []*model.Item{
		{ID: 42, Model: "pallet-a", Origin: 5, CorrectLocID: &correct},
		{ID: 43, Model: "pallet-a", Origin: 5},
	}
	if err := s.CreateAlert(9, model.AlertDropItems, items, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	if n := countActiveAlerts(t, db, 1, string(model.AlertDropItems)); n != 2 {
		t.Fatalf("got %d alert rows, want one per item (2)", n)
	}

	var gotCorrect int64
	err := db.QueryRow(
		`SELECT correct_loc_id FROM alerts WHERE item_id = 42`).Scan(&gotCorrect)
	if err != nil {
		t.Fatalf("query correct_loc_id failed: %v", err)
	}
	if gotCorrect != correct {
		t.Errorf("correct_loc_id = %d, want %d", gotCorrect, correct)
	}
}

func TestLocHasActiveDropLocationAlert(t *testing.T) {
	db := newTestDB(t)
	s := db.NewJobStore(1, 10, true)
	ts := mustParse(t, "2026-08-24 09:00:00.000000")
	if err := s.CreateAlert(5, model.AlertDropLocation, nil, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}

	has, err := s.LocHasActiveDropLocationAlert(5)
	if err != nil {
		t.Fatalf("LocHasActiveDropLocationAlert failed: %v", err)
	}
	if !has {
		t.Error("loc 5 should have an active drop_location alert")
	}
	has, err = s.LocHasActiveDropLocationAlert(6)
	if err != nil {
		t.Fatalf("LocHasActiveDropLocationAlert failed: %v", err)
	}
	if has {
		t.Error("loc 6 should have no drop_location alert")
	}

	if err := s.CancelAlertsByType(model.AlertDropLocation); err != nil {
		t.Fatalf("CancelAlertsByType failed: %v", err)
	}
	has, err = s.LocHasActiveDropLocationAlert(5)
	if err != nil {
		t.Fatalf("LocHasActiveDropLocationAlert failed: %v", err)
	}
	if has {
		t.Error("cancelled alert should no longer be active")
	}
}

func TestAlertsMatching(t *testing.T) {
	db := newTestDB(t)
	s := db.NewJobStore(1, 10, true)
	ts := mustParse(t, "2026-08-24 09:00:00.000000")

	seedItem(t, db, 42, "pallet-a", 5, 0)
	seedItem(t, db, 43, "pallet-b", 5, 0)
	correct := int64(12)
	if err := s.CreateAlert(5, model.AlertDropItems,
		[]*model.Item{{ID: 42, Model: "pallet-a", CorrectLocID: &correct}}, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	if err := s.CreateAlert(5, model.AlertDropItems,
		[]*model.Item{{ID: 43, Model: "pallet-b"}}, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}

	// A fresh item of the same model picked up from the alert's location.
	candidate := &model.Item{ID: 44, Model: "pallet-a", Origin: 5}
	alerts, err := s.AlertsMatching(candidate)
	if err != nil {
		t.Fatalf("AlertsMatching failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d matching alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.ItemID == nil || *a.ItemID != 42 {
		t.Errorf("matched alert item = %v, want 42", a.ItemID)
	}
	if a.CorrectLocID == nil || *a.CorrectLocID != correct {
		t.Errorf("matched alert correct loc = %v, want %d", a.CorrectLocID, correct)
	}

	// Wrong origin: no match.
	elsewhere := &model.Item{ID: 44, Model: "pallet-a", Origin: 6}
	alerts, err = s.AlertsMatching(elsewhere)
	if err != nil {
		t.Fatalf("AlertsMatching failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("got %d matches for other origin, want 0", len(alerts))
	}
}

func TestHasPlacementAlerts(t *testing.T) {
	db := newTestDB(t)
	s := db.NewJobStore(1, 10, true)
	ts := mustParse(t, "2026-08-24 09:00:00.000000")

	has, err := s.HasPlacementAlerts()
	if err != nil {
		t.Fatalf("HasPlacementAlerts failed: %v", err)
	}
	if has {
		t.Fatal("no placement alerts yet")
	}

	if err := s.CreateAlert(5, model.AlertCannotPlace, nil, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	has, err = s.HasPlacementAlerts()
	if err != nil {
		t.Fatalf("HasPlacementAlerts failed: %v", err)
	}
	if !has {
		t.Error("cannot_place should count as a placement alert")
	}
}

func TestCancelVariants(t *testing.T) {
	db := newTestDB(t)
	s := db.NewJobStore(1, 10, true)
	ts := mustParse(t, "2026-08-24 09:00:00.000000")

	seedItem(t, db, 42, "pallet-a", 5, 0)
	seedItem(t, db, 43, "pallet-a", 5, 0)
	if err := s.CreateAlert(5, model.AlertDropItems,
		[]*model.Item{{ID: 42, Model: "pallet-a"}, {ID: 43, Model: "pallet-a"}}, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	if err := s.CreateAlert(7, model.AlertRemainingTasks, nil, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}

	if err := s.CancelAlertsByItems([]*model.Item{{ID: 42}}); err != nil {
		t.Fatalf("CancelAlertsByItems failed: %v", err)
	}
	if n := countActiveAlerts(t, db, 1, string(model.AlertDropItems)); n != 1 {
		t.Errorf("after item cancel: %d drop_items alerts active, want 1", n)
	}

	if err := s.CancelAlertsByModelLoc("pallet-a", 5); err != nil {
		t.Fatalf("CancelAlertsByModelLoc failed: %v", err)
	}
	if n := countActiveAlerts(t, db, 1, string(model.AlertDropItems)); n != 0 {
		t.Errorf("after model/loc cancel: %d drop_items alerts active, want 0", n)
	}

	if err := s.CancelRemainingTasksAlert(7); err != nil {
		t.Fatalf("CancelRemainingTasksAlert failed: %v", err)
	}
	if n := countActiveAlerts(t, db, 1, ""); n != 0 {
		t.Errorf("after all cancels: %d alerts active, want 0", n)
	}

	// Cancelling by id is idempotent: a second cancel is a no-op.
	if err := s.CreateAlert(8, model.AlertDropLocation, nil, ts); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	var alertID int64
	if err := db.QueryRow(
		`SELECT id FROM alerts WHERE job_id = 1 AND loc_id = 8`).Scan(&alertID); err != nil {
		t.Fatalf("query alert id failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.CancelAlert(alertID); err != nil {
			t.Fatalf("CancelAlert attempt %d failed: %v", i+1, err)
		}
	}
	if n := countActiveAlerts(t, db, 1, string(model.AlertDropLocation)); n != 0 {
		t.Errorf("after double cancel: %d drop_location alerts active, want 0", n)
	}
}

func TestSaveJobAndCarries(t *testing.T) {
	db := newTestDB(t)
	seedJob(t, db, 1, 0, true)
	s := db.NewJobStore(1, 10, true)

	start := mustParse(t, "2026-08-24 09:00:00.000000")
	finish := mustParse(t, "2026-08-24 09:30:00.000000")
	carry := model.NewCarry(1, start, 5)
	carry.CurrentTrip().AppendSpeed(1.0)
	carry.CurrentTrip().AppendCoords([2]float64{0, 0})
	carry.CurrentTrip().AppendCoords([2]float64{3, 4})
	carry.CurrentTrip().Finish(9, finish)
	carry.Finish(9, 2, finish)
	carries := []*model.Carry{carry}

	if err := s.SaveJob(start, finish, carries); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	if err := s.SaveCarries(carries); err != nil {
		t.Fatalf("SaveCarries failed: %v", err)
	}

	var status, totalCarries, totalTrips int
	err := db.QueryRow(
		`SELECT status, total_carries, total_trips FROM jobs WHERE id = 1`).
		Scan(&status, &totalCarries, &totalTrips)
	if err != nil {
		t.Fatalf("query job failed: %v", err)
	}
	if status != 1 || totalCarries != 1 || totalTrips != 1 {
		t.Errorf("job totals = (%d, %d, %d), want (1, 1, 1)", status, totalCarries, totalTrips)
	}

	var carryRows, tripRows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM carries WHERE job_id = 1`).Scan(&carryRows); err != nil {
		t.Fatalf("count carries failed: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM carry_trips WHERE job_id = 1`).Scan(&tripRows); err != nil {
		t.Fatalf("count trips failed: %v", err)
	}
	if carryRows != 1 || tripRows != 1 {
		t.Errorf("persisted %d carries and %d trips, want 1 and 1", carryRows, tripRows)
	}

	var distance float64
	if err := db.QueryRow(`SELECT distance FROM carry_trips WHERE job_id = 1`).Scan(&distance); err != nil {
		t.Fatalf("query trip distance failed: %v", err)
	}
	if distance != 5 {
		t.Errorf("trip distance = %v, want 5 (3-4-5 triangle)", distance)
	}
}

func TestManagerQueries(t *testing.T) {
	db := newTestDB(t)
	seedDriver(t, db, 3, 10)
	seedJob(t, db, 1, 3, true)
	seedTask(t, db, 100, 1, "pallet-a", 5, 9)
	seedJob(t, db, 2, 3, false)

	truckID, ok, err := db.TruckForJob(2)
	if err != nil {
		t.Fatalf("TruckForJob failed: %v", err)
	}
	if !ok || truckID != 10 {
		t.Errorf("TruckForJob(2) = (%d, %v), want (10, true)", truckID, ok)
	}
	if _, ok, err := db.TruckForJob(99); err != nil || ok {
		t.Errorf("TruckForJob(99) = (ok=%v, err=%v), want (false, nil)", ok, err)
	}

	open, err := db.TruckHasOpenTasks(10)
	if err != nil {
		t.Fatalf("TruckHasOpenTasks failed: %v", err)
	}
	if !open {
		t.Error("truck 10's active job has an open task")
	}

	if err := db.DeactivateJobsForTruck(10); err != nil {
		t.Fatalf("DeactivateJobsForTruck failed: %v", err)
	}
	open, err = db.TruckHasOpenTasks(10)
	if err != nil {
		t.Fatalf("TruckHasOpenTasks failed: %v", err)
	}
	if open {
		t.Error("deactivated job should not count as open tasks")
	}

	if err := db.ActivateJob(2); err != nil {
		t.Fatalf("ActivateJob failed: %v", err)
	}
	s := db.NewJobStore(2, 10, true)
	active, err := s.IsJobActive()
	if err != nil {
		t.Fatalf("IsJobActive failed: %v", err)
	}
	if !active {
		t.Error("job 2 should be active after ActivateJob")
	}
}
