package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/carry.report/internal/geo"
	"github.com/banshee-data/carry.report/internal/model"
)

// exec runs a mutating statement unless the store is in dry-run mode, in
// which case the intended statement is logged and nothing is written.
func (s *JobStore) exec(query string, args ...interface{}) error {
	if !s.live {
		s.logf("[dry-run] %s %v", strings.Join(strings.Fields(query), " "), args)
		return nil
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("statement failed: %w", err)
	}
	return nil
}

// HasActiveAlerts reports whether the job has active alerts, ignoring clamp
// event/warning notifications. This is the gate on job completion.
func (s *JobStore) HasActiveAlerts() (bool, error) {
	var id int64
	err := s.db.QueryRow(`
		SELECT id FROM alerts
		WHERE job_id = ? AND active = 1
		  AND type != ? AND type != ?
		LIMIT 1`,
		s.jobID, string(model.AlertClampsClosedEvent), string(model.AlertClampsClosedWarning)).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query active alerts: %w", err)
	}
	return true, nil
}

// LocHasActiveDropLocationAlert reports whether loc has an active
// drop_location alert for this job. Items coming from such a location are
// excluded from drop checks so drivers can fix alerts without triggering new
// ones from neighbouring stows.
func (s *JobStore) LocHasActiveDropLocationAlert(locID int64) (bool, error) {
	var id int64
	err := s.db.QueryRow(`
		SELECT id FROM alerts
		WHERE job_id = ? AND active = 1 AND type = ? AND loc_id = ?
		LIMIT 1`,
		s.jobID, string(model.AlertDropLocation), locID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query drop_location alerts: %w", err)
	}
	return true, nil
}

// AlertsMatching returns the job's active alerts whose attached item has the
// same model as item and which were raised at item's origin location. These
// are the candidates for the alleged-wrong swap.
func (s *JobStore) AlertsMatching(item *model.Item) ([]*model.Alert, error) {
	rows, err := s.db.Query(`
		SELECT a.id, a.loc_id, a.item_id, a.correct_loc_id, a.type, a.timestamp
		FROM alerts a
		INNER JOIN items i ON (a.item_id = i.id)
		WHERE a.job_id = ? AND a.active = 1 AND a.loc_id = ? AND i.model = ?
		ORDER BY a.id`,
		s.jobID, item.Origin, item.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to query matching alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		var a model.Alert
		var itemID, correctLoc sql.NullInt64
		var typ string
		var tsRaw sql.NullString
		if err := rows.Scan(&a.ID, &a.LocID, &itemID, &correctLoc, &typ, &tsRaw); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.JobID = s.jobID
		a.Type = model.AlertType(typ)
		a.Active = true
		if itemID.Valid {
			id := itemID.Int64
			a.ItemID = &id
		}
		if correctLoc.Valid {
			loc := correctLoc.Int64
			a.CorrectLocID = &loc
		}
		if ts, ok := parseNullTimestamp(tsRaw); ok {
			a.Timestamp = ts
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// HasPlacementAlerts reports whether the job has an active cannot_place or
// damaged_item alert. When NOE routing is enabled these open the NOE sink as
// a temporary correct destination.
func (s *JobStore) HasPlacementAlerts() (bool, error) {
	var id int64
	err := s.db.QueryRow(`
		SELECT id FROM alerts
		WHERE job_id = ? AND active = 1 AND (type = ? OR type = ?)
		LIMIT 1`,
		s.jobID, string(model.AlertCannotPlace), string(model.AlertDamagedItem)).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query placement alerts: %w", err)
	}
	return true, nil
}

// CreateAlert inserts one alert row, or one row per item when items are
// attached (wrong-item alerts carry the offending item and, when known, its
// correct destination).
func (s *JobStore) CreateAlert(locID int64, typ model.AlertType, items []*model.Item, ts time.Time) error {
	when := geo.FormatTimestamp(ts)
	if len(items) == 0 {
		return s.exec(`
			INSERT INTO alerts (job_id, loc_id, item_id, correct_loc_id, type, active, timestamp)
			VALUES (?, ?, NULL, NULL, ?, 1, ?)`,
			s.jobID, locID, string(typ), when)
	}
	for _, item := range items {
		var correctLoc interface{}
		if item.CorrectLocID != nil {
			correctLoc = *item.CorrectLocID
		}
		if err := s.exec(`
			INSERT INTO alerts (job_id, loc_id, item_id, correct_loc_id, type, active, timestamp)
			VALUES (?, ?, ?, ?, ?, 1, ?)`,
			s.jobID, locID, item.ID, correctLoc, string(typ), when); err != nil {
			return err
		}
	}
	return nil
}

// CancelAlert deactivates one alert by id. Cancelling an already-cancelled
// alert is a no-op.
func (s *JobStore) CancelAlert(alertID int64) error {
	return s.exec(`UPDATE alerts SET active = 0 WHERE job_id = ? AND id = ?`,
		s.jobID, alertID)
}

// CancelAlertsByType deactivates all of the job's active alerts of one type.
func (s *JobStore) CancelAlertsByType(typ model.AlertType) error {
	return s.exec(`UPDATE alerts SET active = 0 WHERE job_id = ? AND type = ?`,
		s.jobID, string(typ))
}

// CancelAlertsByItems deactivates all alerts attached to any of the given
// items.
func (s *JobStore) CancelAlertsByItems(items []*model.Item) error {
	for _, item := range items {
		if err := s.exec(`UPDATE alerts SET active = 0 WHERE job_id = ? AND item_id = ?`,
			s.jobID, item.ID); err != nil {
			return err
		}
	}
	return nil
}

// CancelAlertsByModelLoc deactivates alerts at loc whose attached item has
// the given model.
func (s *JobStore) CancelAlertsByModelLoc(itemModel string, locID int64) error {
	return s.exec(`
		UPDATE alerts SET active = 0
		WHERE id IN (
			SELECT a.id FROM alerts a
			INNER JOIN items i ON (a.item_id = i.id)
			WHERE i.model = ? AND a.job_id = ? AND a.loc_id = ?
		)`,
		itemModel, s.jobID, locID)
}

// CancelRemainingTasksAlert deactivates remaining_tasks alerts at loc.
func (s *JobStore) CancelRemainingTasksAlert(locID int64) error {
	return s.exec(`
		UPDATE alerts SET active = 0
		WHERE job_id = ? AND type = ? AND loc_id = ?`,
		s.jobID, string(model.AlertRemainingTasks), locID)
}
