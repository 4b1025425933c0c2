package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "replaydeck.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordJobLifecycle(t *testing.T) {
	db := testDB(t)

	start := models.DownloadStatus{
		JobID:      "job-1",
		Phase:      models.DownloadPreparing,
		TotalCount: 10,
		TotalBytes: 4096,
		StartedAt:  time.Now().Add(-time.Minute),
	}
	if err := db.RecordJobStart(start); err != nil {
		t.Fatalf("RecordJobStart failed: %v", err)
	}

	finish := start
	finish.Phase = models.DownloadCompleted
	finish.Processed = 9
	finish.Failed = 1
	finish.ArchiveName = "lwg-replays-2023-06-01.zip"
	if err := db.RecordJobFinish(finish); err != nil {
		t.Fatalf("RecordJobFinish failed: %v", err)
	}

	records, err := db.History(10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.JobID != "job-1" {
		t.Errorf("Expected job-1, got %s", rec.JobID)
	}
	if rec.Phase != models.DownloadCompleted {
		t.Errorf("Expected completed, got %s", rec.Phase)
	}
	if rec.Processed != 9 || rec.Failed != 1 || rec.TotalCount != 10 {
		t.Errorf("Unexpected counters: %+v", rec)
	}
	if rec.ArchiveName != "lwg-replays-2023-06-01.zip" {
		t.Errorf("Unexpected archive name %q", rec.ArchiveName)
	}
	if rec.FinishedAt == nil {
		t.Error("Expected finished timestamp")
	}
}

func TestHistoryOrderAndLimit(t *testing.T) {
	db := testDB(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		status := models.DownloadStatus{
			JobID:      string(rune('a' + i)),
			Phase:      models.DownloadCompleted,
			TotalCount: 1,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.RecordJobStart(status); err != nil {
			t.Fatalf("RecordJobStart failed: %v", err)
		}
	}

	records, err := db.History(3)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].JobID != "e" || records[2].JobID != "c" {
		t.Errorf("Expected newest first (e..c), got %s..%s", records[0].JobID, records[2].JobID)
	}

	// Unfinished jobs have no finish timestamp
	if records[0].FinishedAt != nil {
		t.Error("Expected nil FinishedAt for unfinished job")
	}
}

func TestHistoryEmpty(t *testing.T) {
	db := testDB(t)

	records, err := db.History(0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}
