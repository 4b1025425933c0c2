// Package database persists the download history. Catalog data itself is
// never stored; it lives in memory for the session only.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

// DB wraps the SQLite database.
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and runs migrations.
func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS download_jobs (
			id TEXT PRIMARY KEY,
			phase TEXT NOT NULL,
			processed INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			total_count INTEGER NOT NULL,
			total_bytes INTEGER NOT NULL,
			archive_name TEXT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_download_jobs_started ON download_jobs(started_at)`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// RecordJobStart inserts a new history row for a starting job.
func (db *DB) RecordJobStart(status models.DownloadStatus) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO download_jobs
			(id, phase, processed, failed, total_count, total_bytes, archive_name, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		status.JobID, string(status.Phase), status.Processed, status.Failed,
		status.TotalCount, status.TotalBytes, status.ArchiveName, status.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record job start: %w", err)
	}
	return nil
}

// RecordJobFinish updates a history row once its job reaches a terminal
// phase.
func (db *DB) RecordJobFinish(status models.DownloadStatus) error {
	_, err := db.conn.Exec(
		`UPDATE download_jobs
			SET phase = ?, processed = ?, failed = ?, archive_name = ?, finished_at = ?
			WHERE id = ?`,
		string(status.Phase), status.Processed, status.Failed,
		status.ArchiveName, time.Now(), status.JobID,
	)
	if err != nil {
		return fmt.Errorf("failed to record job finish: %w", err)
	}
	return nil
}

// History returns the most recent download jobs, newest first.
func (db *DB) History(limit int) ([]models.DownloadRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		`SELECT id, phase, processed, failed, total_count, total_bytes,
			COALESCE(archive_name, ''), started_at, finished_at
			FROM download_jobs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query download history: %w", err)
	}
	defer rows.Close()

	var records []models.DownloadRecord
	for rows.Next() {
		var rec models.DownloadRecord
		var phase string
		var finished sql.NullTime
		if err := rows.Scan(&rec.JobID, &phase, &rec.Processed, &rec.Failed,
			&rec.TotalCount, &rec.TotalBytes, &rec.ArchiveName,
			&rec.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan download record: %w", err)
		}
		rec.Phase = models.DownloadPhase(phase)
		if finished.Valid {
			t := finished.Time
			rec.FinishedAt = &t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
