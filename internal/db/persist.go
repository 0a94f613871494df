package db

import (
	"time"

	"github.com/banshee-data/carry.report/internal/geo"
	"github.com/banshee-data/carry.report/internal/model"
)

// UpdateItemLocation moves an item's current location on record, done when a
// drop binds the item somewhere new.
func (s *JobStore) UpdateItemLocation(itemID, locID int64) error {
	return s.exec(`UPDATE items SET curr_loc_id = ? WHERE id = ?`, locID, itemID)
}

// SaveTask persists a task's completion state. Invoked every time drop
// validation binds or rebinds a task.
func (s *JobStore) SaveTask(task *model.Task) error {
	status := 0
	if task.Complete {
		status = 1
	}
	var itemID, startTime, finishTime interface{}
	if task.ItemID != nil {
		itemID = *task.ItemID
	}
	if task.StartTime != nil {
		startTime = geo.FormatTimestamp(*task.StartTime)
	}
	if task.FinishTime != nil {
		finishTime = geo.FormatTimestamp(*task.FinishTime)
	}
	return s.exec(`
		UPDATE job_tasks
		SET item_id = ?, status = ?, start_time = ?, finish_time = ?, avg_speed = ?
		WHERE id = ?`,
		itemID, status, startTime, finishTime, task.AvgSpeed, task.ID)
}

// SaveJob records job completion: timing and carry/trip totals.
func (s *JobStore) SaveJob(start, finish time.Time, carries []*model.Carry) error {
	tripCount := 0
	for _, c := range carries {
		tripCount += len(c.Trips)
	}
	return s.exec(`
		UPDATE jobs
		SET start_time = ?, finish_time = ?, status = 1, total_carries = ?, total_trips = ?
		WHERE id = ?`,
		geo.FormatTimestamp(start), geo.FormatTimestamp(finish),
		len(carries), tripCount, s.jobID)
}

// SaveCarries inserts the job's carry analytics and their trips. Called once
// at job completion, after every carry has been finalized.
func (s *JobStore) SaveCarries(carries []*model.Carry) error {
	for _, c := range carries {
		var finish interface{}
		if c.FinishTime != nil {
			finish = geo.FormatTimestamp(*c.FinishTime)
		}
		if err := s.exec(`
			INSERT INTO carries (
				job_id, carry_number, start_time, finish_time, unit_count,
				total_trips, origin, destination, stow_time, dock_time,
				total_distance, avg_trip_distance, avg_trip_time
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.jobID, c.Num, geo.FormatTimestamp(c.StartTime), finish, c.UnitCount,
			len(c.Trips), c.Origin, c.Dest, int(c.StowTime), int(c.DockTime),
			c.TotalDistance, c.AvgTripDistance, c.AvgTripTime); err != nil {
			return err
		}
		if err := s.saveTrips(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *JobStore) saveTrips(c *model.Carry) error {
	for _, tr := range c.Trips {
		var finish interface{}
		if tr.FinishTime != nil {
			finish = geo.FormatTimestamp(*tr.FinishTime)
		}
		if err := s.exec(`
			INSERT INTO carry_trips (
				job_id, carry_number, origin, destination, distance,
				avg_speed, travel_time, start_time, finish_time
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.jobID, tr.CarryNum, tr.Origin, tr.Dest, tr.Distance,
			tr.AvgSpeed, tr.TravelTime, geo.FormatTimestamp(tr.StartTime), finish); err != nil {
			return err
		}
	}
	return nil
}
