package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/carry.report/internal/model"
	"github.com/banshee-data/carry.report/internal/timeutil"
)

// stubClock is a real clock with an interposed poll wait, so RFID polls run
// without real 1 Hz waits.
type stubClock struct {
	timeutil.Clock
	poll func(time.Duration)
}

func (c stubClock) After(d time.Duration) <-chan time.Time {
	c.poll(d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// blockedClock never fires its poll wait, for cancellation tests.
type blockedClock struct {
	timeutil.Clock
}

func (blockedClock) After(time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

func TestIsJobActive(t *testing.T) {
	db := newTestDB(t)
	seedJob(t, db, 1, 0, true)
	seedJob(t, db, 2, 0, false)

	tests := []struct {
		name  string
		jobID int64
		want  bool
	}{
		{"active job", 1, true},
		{"inactive job", 2, false},
		{"missing job", 99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := db.NewJobStore(tt.jobID, 10, true)
			got, err := s.IsJobActive()
			if err != nil {
				t.Fatalf("IsJobActive failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsJobActive = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTasksRoundTrip(t *testing.T) {
	db := newTestDB(t)
	seedJob(t, db, 1, 0, true)
	seedTask(t, db, 100, 1, "pallet-a", 5, 9)
	seedTask(t, db, 101, 1, "pallet-b", 6, 9)
	// Task on another job must not leak in.
	seedJob(t, db, 2, 0, true)
	seedTask(t, db, 200, 2, "pallet-c", 7, 9)

	s := db.NewJobStore(1, 10, true)
	tasks, err := s.Tasks()
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != 100 || tasks[1].ID != 101 {
		t.Fatalf("task order = %d, %d; want 100, 101", tasks[0].ID, tasks[1].ID)
	}
	if tasks[0].Complete || tasks[0].ItemID != nil {
		t.Errorf("fresh task should be incomplete and unbound: %+v", tasks[0])
	}

	// Bind and persist, then read back.
	start := mustParse(t, "2026-08-24 09:00:00.000000")
	finish := mustParse(t, "2026-08-24 09:05:30.500000")
	tasks[0].Bind(42, start, finish, 1.73)
	if err := s.SaveTask(tasks[0]); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	reread, err := s.Tasks()
	if err != nil {
		t.Fatalf("Tasks after save failed: %v", err)
	}
	got := reread[0]
	if !got.Complete {
		t.Error("task should read back complete")
	}
	if got.ItemID == nil || *got.ItemID != 42 {
		t.Errorf("item id = %v, want 42", got.ItemID)
	}
	if got.StartTime == nil || !got.StartTime.Equal(start) {
		t.Errorf("start time = %v, want %v", got.StartTime, start)
	}
	if got.FinishTime == nil || !got.FinishTime.Equal(finish) {
		t.Errorf("finish time = %v, want %v", got.FinishTime, finish)
	}
	if got.AvgSpeed != 1.73 {
		t.Errorf("avg speed = %v, want 1.73", got.AvgSpeed)
	}
}

func TestLocationsSince(t *testing.T) {
	db := newTestDB(t)
	seedLocSample(t, db, 10, 5, model.LocTypeStow, 1.0, 2.0, 0.5, 0xC0, "2026-08-24 09:00:00.000000")
	seedLocSample(t, db, 10, 5, model.LocTypeStow, 1.5, 2.0, 0.8, 0xC0, "2026-08-24 09:00:00.200000")
	seedLocSample(t, db, 10, 6, model.LocTypeAisle, 2.0, 2.0, 1.2, 0x40, "2026-08-24 09:00:00.400000")
	// Other truck, must not appear.
	seedLocSample(t, db, 11, 5, model.LocTypeStow, 9.0, 9.0, 0.1, 0xC0, "2026-08-24 09:00:00.300000")
	// Null loc_id, skipped with a log line.
	if _, err := db.Exec(`
		INSERT INTO loc_data (truck_id, loc_id, loc_type, x, y, speed, clamp_status, timestamp)
		VALUES (10, NULL, 'stow', 0, 0, 0, 192, '2026-08-24 09:00:00.250000')`); err != nil {
		t.Fatalf("seed null sample failed: %v", err)
	}

	s := db.NewJobStore(1, 10, true)
	var logged []string
	s.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, format)
	})

	samples, err := s.LocationsSince(mustParse(t, "2026-08-24 09:00:00.000000"))
	if err != nil {
		t.Fatalf("LocationsSince failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2 (strictly-after cursor, null skipped)", len(samples))
	}
	if !samples[0].Timestamp.Before(samples[1].Timestamp) {
		t.Error("samples not in ascending timestamp order")
	}
	if samples[1].LocID != 6 || samples[1].LocType != model.LocTypeAisle {
		t.Errorf("unexpected last sample: %+v", samples[1])
	}
	if len(logged) != 1 {
		t.Errorf("expected 1 skip log line, got %d", len(logged))
	}
}

func TestLocSamplesBetween(t *testing.T) {
	db := newTestDB(t)
	for i, ts := range []string{
		"2026-08-24 09:00:00.000000",
		"2026-08-24 09:00:10.000000",
		"2026-08-24 09:00:20.000000",
		"2026-08-24 09:00:30.000000",
	} {
		seedLocSample(t, db, 10, int64(i+1), model.LocTypeAisle, float64(i), 0, 1.0, 0x80, ts)
	}

	s := db.NewJobStore(1, 10, true)
	samples, err := s.LocSamplesBetween(
		mustParse(t, "2026-08-24 09:00:10.000000"),
		mustParse(t, "2026-08-24 09:00:30.000000"))
	if err != nil {
		t.Fatalf("LocSamplesBetween failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3 (inclusive bounds)", len(samples))
	}
	// Descending: back-window scans walk from newest to oldest.
	wantLocs := []int64{4, 3, 2}
	for i, want := range wantLocs {
		if samples[i].LocID != want {
			t.Errorf("samples[%d].LocID = %d, want %d", i, samples[i].LocID, want)
		}
	}
}

func TestWaitForRFID(t *testing.T) {
	target := "2026-08-24 09:00:05.000000"

	t.Run("already satisfied", func(t *testing.T) {
		db := newTestDB(t)
		seedTruck(t, db, 10, "2026-08-24 09:00:06.000000")
		s := db.NewJobStore(1, 10, true)
		s.clock = stubClock{timeutil.RealClock{}, func(time.Duration) {
			t.Fatal("should not wait when RFID is current")
		}}
		if err := s.WaitForRFID(context.Background(), mustParse(t, target), 5*time.Second); err != nil {
			t.Fatalf("WaitForRFID failed: %v", err)
		}
	})

	t.Run("arrives after polls", func(t *testing.T) {
		db := newTestDB(t)
		seedTruck(t, db, 10, "2026-08-24 09:00:01.000000")
		s := db.NewJobStore(1, 10, true)
		polls := 0
		s.clock = stubClock{timeutil.RealClock{}, func(time.Duration) {
			polls++
			if polls == 2 {
				if _, err := db.Exec(
					`UPDATE clamp_trucks SET latest_rfid_timestamp = ? WHERE id = 10`,
					"2026-08-24 09:00:07.000000"); err != nil {
					t.Fatalf("update rfid failed: %v", err)
				}
			}
		}}
		if err := s.WaitForRFID(context.Background(), mustParse(t, target), time.Minute); err != nil {
			t.Fatalf("WaitForRFID failed: %v", err)
		}
		if polls != 2 {
			t.Errorf("polled %d times, want 2", polls)
		}
	})

	t.Run("timeout is not an error", func(t *testing.T) {
		db := newTestDB(t)
		seedTruck(t, db, 10, "2026-08-24 09:00:01.000000")
		s := db.NewJobStore(1, 10, true)
		s.clock = stubClock{timeutil.RealClock{}, func(time.Duration) {}}
		if err := s.WaitForRFID(context.Background(), mustParse(t, target), -time.Second); err != nil {
			t.Fatalf("WaitForRFID timeout should return nil, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		db := newTestDB(t)
		seedTruck(t, db, 10, "2026-08-24 09:00:01.000000")
		s := db.NewJobStore(1, 10, true)
		s.clock = stubClock{timeutil.RealClock{}, func(time.Duration) {}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := s.WaitForRFID(ctx, mustParse(t, target), time.Minute); err != context.Canceled {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	})

	t.Run("cancelled during wait", func(t *testing.T) {
		db := newTestDB(t)
		seedTruck(t, db, 10, "2026-08-24 09:00:01.000000")
		s := db.NewJobStore(1, 10, true)
		s.clock = blockedClock{timeutil.RealClock{}}
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		if err := s.WaitForRFID(ctx, mustParse(t, target), time.Minute); err != context.Canceled {
			t.Fatalf("want context.Canceled during poll wait, got %v", err)
		}
	})
}

func TestItemsDetected(t *testing.T) {
	db := newTestDB(t)
	seedItem(t, db, 42, "pallet-a", 5, 0)
	seedItem(t, db, 43, "pallet-b", 6, 1)
	// Two detections of the same item inside the window collapse to one.
	seedDetection(t, db, 10, 42, "2026-08-24 09:00:01.000000")
	seedDetection(t, db, 10, 42, "2026-08-24 09:00:02.000000")
	seedDetection(t, db, 10, 43, "2026-08-24 09:00:03.000000")
	// Outside the window and on another truck.
	seedDetection(t, db, 10, 43, "2026-08-24 09:01:00.000000")
	seedDetection(t, db, 11, 42, "2026-08-24 09:00:02.000000")

	s := db.NewJobStore(1, 10, true)
	items, err := s.ItemsDetected(
		mustParse(t, "2026-08-24 09:00:00.000000"),
		mustParse(t, "2026-08-24 09:00:10.000000"))
	if err != nil {
		t.Fatalf("ItemsDetected failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	byID := map[int64]*model.Item{}
	for _, it := range items {
		byID[it.ID] = it
	}
	want := &model.Item{ID: 42, Model: "pallet-a", Origin: 5}
	if diff := cmp.Diff(want, byID[42]); diff != "" {
		t.Errorf("item 42 mismatch (-want +got):\n%s", diff)
	}
	if byID[43] == nil || byID[43].SerialLock != 1 {
		t.Errorf("item 43 should carry its serial lock: %+v", byID[43])
	}
}

func TestItemsByID(t *testing.T) {
	db := newTestDB(t)
	seedItem(t, db, 1, "pallet-a", 5, 0)
	seedItem(t, db, 2, "pallet-b", 6, 0)
	seedItem(t, db, 3, "pallet-c", 7, 0)

	s := db.NewJobStore(1, 10, true)
	items, err := s.ItemsByID([]int64{1, 3})
	if err != nil {
		t.Fatalf("ItemsByID failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	none, err := s.ItemsByID(nil)
	if err != nil {
		t.Fatalf("ItemsByID(nil) failed: %v", err)
	}
	if none != nil {
		t.Errorf("ItemsByID(nil) = %v, want nil", none)
	}
}

func TestUpdateItemLocation(t *testing.T) {
	db := newTestDB(t)
	seedItem(t, db, 42, "pallet-a", 5, 0)
	s := db.NewJobStore(1, 10, true)
	if err := s.UpdateItemLocation(42, 9); err != nil {
		t.Fatalf("UpdateItemLocation failed: %v", err)
	}
	items, err := s.ItemsByID([]int64{42})
	if err != nil {
		t.Fatalf("ItemsByID failed: %v", err)
	}
	if items[0].Origin != 9 {
		t.Errorf("curr loc = %d, want 9", items[0].Origin)
	}
}
