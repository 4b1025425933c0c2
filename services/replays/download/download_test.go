package download

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

// stubFetcher serves payloads from a map and can block until released, so
// tests can cancel mid-flight deterministically.
type stubFetcher struct {
	payloads map[string][]byte
	gate     chan struct{}
	fetched  chan string
}

func (f *stubFetcher) FetchReplay(ctx context.Context, url string) ([]byte, error) {
	if f.fetched != nil {
		f.fetched <- url
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	payload, ok := f.payloads[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return payload, nil
}

func snapshot(n int) []models.ReplayEntry {
	entries := make([]models.ReplayEntry, n)
	for i := range entries {
		entries[i] = models.ReplayEntry{
			URL:      fmt.Sprintf("tournaments/week%d/r%d.json", i, i),
			FileSize: 64,
			Players:  []models.Player{{Name: "alice"}},
			FileDate: models.NewTime(time.Now()),
		}
	}
	return entries
}

func payloadsFor(entries []models.ReplayEntry) map[string][]byte {
	payloads := make(map[string][]byte, len(entries))
	for i, e := range entries {
		payloads[e.URL] = []byte(fmt.Sprintf("replay-%d", i))
	}
	return payloads
}

// collect drains notifications until a terminal phase arrives.
func collect(t *testing.T, updates chan models.DownloadStatus) []models.DownloadStatus {
	t.Helper()

	var all []models.DownloadStatus
	for {
		select {
		case status := <-updates:
			all = append(all, status)
			if !status.Phase.Active() && status.Phase != models.DownloadIdle {
				return all
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for terminal download status")
		}
	}
}

func newTestOrchestrator(t *testing.T, fetcher Fetcher) (*Orchestrator, chan models.DownloadStatus) {
	t.Helper()

	o := NewOrchestrator(fetcher, t.TempDir(), nil)
	updates := make(chan models.DownloadStatus, 64)
	o.SetNotify(func(status models.DownloadStatus) {
		updates <- status
	})
	return o, updates
}

func TestDownloadCompletes(t *testing.T) {
	entries := snapshot(3)
	fetcher := &stubFetcher{payloads: payloadsFor(entries)}
	o, updates := newTestOrchestrator(t, fetcher)

	jobID, err := o.Start(entries)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if jobID == "" {
		t.Fatal("Expected a job ID")
	}

	all := collect(t, updates)
	final := all[len(all)-1]

	if final.Phase != models.DownloadCompleted {
		t.Fatalf("Expected completed, got %s (%s)", final.Phase, final.Error)
	}
	if final.Processed != 3 || final.Failed != 0 {
		t.Errorf("Expected 3 processed, got %d processed %d failed", final.Processed, final.Failed)
	}
	if final.ArchivePath == "" {
		t.Fatal("Expected archive path in final status")
	}

	// Archive holds every replay under its relative path
	zr, err := zip.OpenReader(final.ArchivePath)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer zr.Close()

	if len(zr.File) != 3 {
		t.Fatalf("Expected 3 archive entries, got %d", len(zr.File))
	}
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, e := range entries {
		if !names[e.URL] {
			t.Errorf("Archive missing entry %s", e.URL)
		}
	}
}

func TestDownloadProgressMonotonic(t *testing.T) {
	entries := snapshot(4)
	fetcher := &stubFetcher{payloads: payloadsFor(entries)}
	o, updates := newTestOrchestrator(t, fetcher)

	if _, err := o.Start(entries); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	all := collect(t, updates)
	prev := -1
	for _, status := range all {
		handled := status.Processed + status.Failed
		if handled < prev {
			t.Fatalf("Progress went backwards: %d after %d", handled, prev)
		}
		prev = handled
	}
}

func TestDownloadEmptySelection(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubFetcher{})

	if _, err := o.Start(nil); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("Expected ErrEmptySelection, got %v", err)
	}
	if status := o.Status(); status.Phase != models.DownloadIdle {
		t.Errorf("Expected idle after rejected start, got %s", status.Phase)
	}
}

func TestDownloadRejectsConcurrentStart(t *testing.T) {
	entries := snapshot(2)
	fetcher := &stubFetcher{payloads: payloadsFor(entries), gate: make(chan struct{})}
	o, updates := newTestOrchestrator(t, fetcher)

	if _, err := o.Start(entries); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := o.Start(entries); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	close(fetcher.gate)
	collect(t, updates)

	// A finished job no longer blocks a new one
	if _, err := o.Start(entries); err != nil {
		t.Errorf("Expected restart after completion, got %v", err)
	}
	collect(t, updates)
}

func TestDownloadCancelMidFlight(t *testing.T) {
	entries := snapshot(3)
	fetcher := &stubFetcher{
		payloads: payloadsFor(entries),
		gate:     make(chan struct{}),
		fetched:  make(chan string, 8),
	}
	o, updates := newTestOrchestrator(t, fetcher)

	if _, err := o.Start(entries); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for the first fetch to begin, then cancel while it is blocked
	<-fetcher.fetched
	o.Cancel()

	all := collect(t, updates)
	final := all[len(all)-1]
	if final.Phase != models.DownloadCancelled {
		t.Fatalf("Expected cancelled, got %s", final.Phase)
	}

	// No partial artifact is left behind
	files, err := os.ReadDir(o.stagingDir)
	if err != nil {
		t.Fatalf("Failed to read staging dir: %v", err)
	}
	for _, f := range files {
		if filepath.Ext(f.Name()) == ".zip" {
			t.Errorf("Partial archive left behind: %s", f.Name())
		}
	}

	// Cancel after the fact is a no-op
	o.Cancel()
}

func TestDownloadSkipsFailedFetches(t *testing.T) {
	entries := snapshot(3)
	payloads := payloadsFor(entries)
	delete(payloads, entries[1].URL)
	fetcher := &stubFetcher{payloads: payloads}
	o, updates := newTestOrchestrator(t, fetcher)

	if _, err := o.Start(entries); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	all := collect(t, updates)
	final := all[len(all)-1]

	if final.Phase != models.DownloadCompleted {
		t.Fatalf("Expected completed despite one failure, got %s", final.Phase)
	}
	if final.Processed != 2 || final.Failed != 1 {
		t.Errorf("Expected 2 processed 1 failed, got %d/%d", final.Processed, final.Failed)
	}

	zr, err := zip.OpenReader(final.ArchivePath)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 2 {
		t.Errorf("Expected 2 archive entries, got %d", len(zr.File))
	}
}

func TestDownloadSnapshotIsolation(t *testing.T) {
	entries := snapshot(2)
	fetcher := &stubFetcher{payloads: payloadsFor(entries), gate: make(chan struct{})}
	o, updates := newTestOrchestrator(t, fetcher)

	if _, err := o.Start(entries); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Mutating the caller's slice after Start must not affect the job
	entries[0].URL = "mutated.json"
	entries[1].URL = "mutated2.json"
	close(fetcher.gate)

	all := collect(t, updates)
	final := all[len(all)-1]
	if final.Phase != models.DownloadCompleted || final.Processed != 2 {
		t.Fatalf("Expected 2 processed, got %s %d", final.Phase, final.Processed)
	}
}

func TestDownloadArchiveNameDated(t *testing.T) {
	entries := snapshot(1)
	fetcher := &stubFetcher{payloads: payloadsFor(entries)}
	o, updates := newTestOrchestrator(t, fetcher)

	if _, err := o.Start(entries); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	all := collect(t, updates)
	final := all[len(all)-1]

	want := fmt.Sprintf("lwg-replays-%s.zip", time.Now().Format("2006-01-02"))
	if final.ArchiveName != want {
		t.Errorf("Expected archive name %s, got %s", want, final.ArchiveName)
	}
}
