// Package db implements the relational store behind the job monitor: job and
// task state, RFID detections, location telemetry, alerts, and the carry/trip
// analytics written on job completion. It is the only component that touches
// SQL; the monitor consumes it through the narrow per-job JobStore surface.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle shared by the daemon and its workers.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the sqlite database at path and
// ensures the schema exists. WAL mode keeps the monitor's frequent small
// reads from blocking the telemetry writers.
func NewDB(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := handle.Exec(pragma); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{handle}
	if err := db.ensureSchema(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// ensureSchema creates the tables if they do not exist. Deployments that
// track schema history run the migrations in migrations/ instead; the inline
// DDL matches migration 000001 so fresh databases work either way.
func (db *DB) ensureSchema() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS clamp_trucks (
			id                     INTEGER PRIMARY KEY,
			name                   TEXT,
			latest_rfid_timestamp  TEXT
		);
		CREATE TABLE IF NOT EXISTS clamp_drivers (
			id        INTEGER PRIMARY KEY,
			clamp_id  INTEGER,
			name      TEXT
		);
		CREATE TABLE IF NOT EXISTS jobs (
			id             INTEGER PRIMARY KEY,
			driver_id      INTEGER,
			active         INTEGER NOT NULL DEFAULT 0,
			status         INTEGER NOT NULL DEFAULT 0,
			start_time     TEXT,
			finish_time    TEXT,
			total_carries  INTEGER,
			total_trips    INTEGER
		);
		CREATE TABLE IF NOT EXISTS job_tasks (
			id           INTEGER PRIMARY KEY,
			job_id       INTEGER NOT NULL,
			model        TEXT NOT NULL,
			origin       INTEGER NOT NULL,
			destination  INTEGER NOT NULL,
			item_id      INTEGER,
			status       INTEGER NOT NULL DEFAULT 0,
			start_time   TEXT,
			finish_time  TEXT,
			avg_speed    DOUBLE
		);
		CREATE TABLE IF NOT EXISTS items (
			id           INTEGER PRIMARY KEY,
			item_tag     TEXT,
			model        TEXT NOT NULL,
			serial_lock  INTEGER NOT NULL DEFAULT 0,
			curr_loc_id  INTEGER
		);
		CREATE TABLE IF NOT EXISTS loc_data (
			truck_id      INTEGER NOT NULL,
			loc_id        INTEGER NOT NULL,
			loc_type      TEXT NOT NULL,
			x             DOUBLE NOT NULL,
			y             DOUBLE NOT NULL,
			speed         DOUBLE NOT NULL,
			clamp_status  INTEGER NOT NULL,
			timestamp     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_loc_data_truck_ts
			ON loc_data (truck_id, timestamp);
		CREATE TABLE IF NOT EXISTS detected_items (
			truck_id   INTEGER NOT NULL,
			item_id    INTEGER NOT NULL,
			timestamp  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_detected_items_truck_ts
			ON detected_items (truck_id, timestamp);
		CREATE TABLE IF NOT EXISTS alerts (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id          INTEGER NOT NULL,
			loc_id          INTEGER NOT NULL,
			item_id         INTEGER,
			correct_loc_id  INTEGER,
			type            TEXT NOT NULL,
			active          INTEGER NOT NULL DEFAULT 1,
			timestamp       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_job_active
			ON alerts (job_id, active);
		CREATE TABLE IF NOT EXISTS carries (
			job_id             INTEGER NOT NULL,
			carry_number       INTEGER NOT NULL,
			start_time         TEXT,
			finish_time        TEXT,
			unit_count         INTEGER,
			total_trips        INTEGER,
			origin             INTEGER,
			destination        INTEGER,
			stow_time          INTEGER,
			dock_time          INTEGER,
			total_distance     DOUBLE,
			avg_trip_distance  DOUBLE,
			avg_trip_time      DOUBLE
		);
		CREATE TABLE IF NOT EXISTS carry_trips (
			job_id        INTEGER NOT NULL,
			carry_number  INTEGER NOT NULL,
			origin        INTEGER,
			destination   INTEGER,
			distance      DOUBLE,
			avg_speed     DOUBLE,
			travel_time   DOUBLE,
			start_time    TEXT,
			finish_time   TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
