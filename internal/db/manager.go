package db

import (
	"database/sql"
	"fmt"
)

// Manager-side queries used by the job-manager endpoint. These run against
// the shared DB handle, not a per-job store: they span jobs.

// TruckForJob resolves the clamp truck assigned to a job through its driver.
// Returns 0, false when the job or its driver assignment is missing.
func (db *DB) TruckForJob(jobID int64) (int64, bool, error) {
	var truckID sql.NullInt64
	err := db.QueryRow(`
		SELECT d.clamp_id
		FROM jobs j
		INNER JOIN clamp_drivers d ON (j.driver_id = d.id)
		WHERE j.id = ?`, jobID).Scan(&truckID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve truck for job %d: %w", jobID, err)
	}
	if !truckID.Valid {
		return 0, false, nil
	}
	return truckID.Int64, true, nil
}

// TruckHasOpenTasks reports whether the truck's currently active job still
// has incomplete tasks. A new job cannot start while it does.
func (db *DB) TruckHasOpenTasks(truckID int64) (bool, error) {
	var id int64
	err := db.QueryRow(`
		SELECT jt.id
		FROM job_tasks jt
		INNER JOIN jobs j ON (jt.job_id = j.id)
		INNER JOIN clamp_drivers d ON (j.driver_id = d.id)
		WHERE j.active = 1 AND d.clamp_id = ? AND jt.status = 0
		LIMIT 1`, truckID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query open tasks for truck %d: %w", truckID, err)
	}
	return true, nil
}

// DeactivateJobsForTruck flips the active flag off for every active job on
// the truck. The truck's running monitor notices on its next tick and exits.
func (db *DB) DeactivateJobsForTruck(truckID int64) error {
	_, err := db.Exec(`
		UPDATE jobs SET active = 0
		WHERE active = 1 AND id IN (
			SELECT j.id FROM jobs j
			INNER JOIN clamp_drivers d ON (j.driver_id = d.id)
			WHERE d.clamp_id = ?
		)`, truckID)
	if err != nil {
		return fmt.Errorf("failed to deactivate jobs for truck %d: %w", truckID, err)
	}
	return nil
}

// ActivateJob flips a job's active flag on.
func (db *DB) ActivateJob(jobID int64) error {
	_, err := db.Exec(`UPDATE jobs SET active = 1 WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("failed to activate job %d: %w", jobID, err)
	}
	return nil
}
