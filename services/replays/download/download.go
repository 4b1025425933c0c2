// Package download orchestrates bulk replay exports: it sequentially fetches
// every entry of a filtered-view snapshot, packages the payloads into one
// zip archive, reports progress and supports mid-flight cancellation.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

var (
	// ErrEmptySelection is returned when a download is started with no
	// replays in the current filtered view.
	ErrEmptySelection = errors.New("no replays match the current filters")

	// ErrAlreadyRunning is returned when a download is started while
	// another one is still in flight. Requests are rejected, not queued.
	ErrAlreadyRunning = errors.New("a download is already in progress")
)

// Fetcher retrieves one replay payload by its catalog URL.
type Fetcher interface {
	FetchReplay(ctx context.Context, url string) ([]byte, error)
}

// SaveFunc hands a finalized artifact to the save-trigger collaborator.
type SaveFunc func(archivePath, suggestedName string)

// NotifyFunc receives a status snapshot after every phase change and after
// every processed item, in queue order.
type NotifyFunc func(status models.DownloadStatus)

// headroomBytes is the extra free space required beyond the estimated
// archive size before a job is allowed to run.
const headroomBytes = 64 << 20

// Orchestrator runs at most one download job at a time.
type Orchestrator struct {
	mu         sync.Mutex
	fetcher    Fetcher
	stagingDir string
	newArchive func(name string) (Archiver, error)
	save       SaveFunc
	notify     NotifyFunc
	logger     *slog.Logger
	active     *job
}

type job struct {
	status models.DownloadStatus
	queue  []models.ReplayEntry
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator that fetches payloads through the
// given fetcher and stages archives under stagingDir.
func NewOrchestrator(fetcher Fetcher, stagingDir string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		fetcher:    fetcher,
		stagingDir: stagingDir,
		logger:     logger,
	}
	o.newArchive = func(name string) (Archiver, error) {
		return newZipArchiver(o.stagingDir, name)
	}
	return o
}

// SetSaveTrigger registers the collaborator that surfaces a finished archive
// to the user.
func (o *Orchestrator) SetSaveTrigger(save SaveFunc) {
	o.save = save
}

// SetNotify registers the progress listener. Must be set before Start.
func (o *Orchestrator) SetNotify(notify NotifyFunc) {
	o.notify = notify
}

// Start begins a download of the given filtered-view snapshot. The snapshot
// is copied, so filter changes made while the job runs have no effect on it.
// Only legal while no job is in flight.
func (o *Orchestrator) Start(snapshot []models.ReplayEntry) (string, error) {
	o.mu.Lock()
	if o.active != nil && o.active.status.Phase.Active() {
		o.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	if len(snapshot) == 0 {
		o.mu.Unlock()
		return "", ErrEmptySelection
	}

	queue := make([]models.ReplayEntry, len(snapshot))
	copy(queue, snapshot)

	var totalBytes int64
	for _, e := range queue {
		totalBytes += e.FileSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		status: models.DownloadStatus{
			JobID:      uuid.NewString(),
			Phase:      models.DownloadPreparing,
			TotalCount: len(queue),
			TotalBytes: totalBytes,
			StartedAt:  time.Now(),
		},
		queue:  queue,
		cancel: cancel,
	}
	o.active = j
	status := j.status
	o.mu.Unlock()

	o.logger.Info("download started",
		"jobID", status.JobID,
		"replays", status.TotalCount,
		"totalBytes", status.TotalBytes,
	)
	o.emit(status)

	go o.run(ctx, j)

	return status.JobID, nil
}

// Cancel requests cancellation of the in-flight job. It takes effect at the
// next item boundary; the current fetch is abandoned with it. Calling Cancel
// with no active job, or twice, has no additional effect.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil || !o.active.status.Phase.Active() {
		return
	}
	o.logger.Info("download cancellation requested", "jobID", o.active.status.JobID)
	o.active.cancel()
}

// Status returns a snapshot of the current (or most recently finished) job.
// A terminal phase stays readable until the next Start so the panel can
// render the outcome; for Start's purposes it is equivalent to idle.
func (o *Orchestrator) Status() models.DownloadStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil {
		return models.DownloadStatus{Phase: models.DownloadIdle}
	}
	return o.active.status
}

// run processes the queue one entry at a time. It is the only writer of job
// state while the job is in flight.
func (o *Orchestrator) run(ctx context.Context, j *job) {
	defer j.cancel()

	status := o.prepare(j)
	if status.Phase != models.DownloadRunning {
		return
	}

	archive, err := o.newArchive(status.ArchiveName)
	if err != nil {
		o.fail(j, fmt.Sprintf("failed to create archive: %v", err))
		return
	}

	for _, entry := range j.queue {
		select {
		case <-ctx.Done():
			archive.Abort()
			o.finish(j, models.DownloadCancelled, "")
			return
		default:
		}

		payload, err := o.fetcher.FetchReplay(ctx, entry.URL)
		if err != nil {
			if ctx.Err() != nil {
				archive.Abort()
				o.finish(j, models.DownloadCancelled, "")
				return
			}
			// A single missing or corrupt replay must not abort the batch.
			o.logger.Warn("skipping replay", "url", entry.URL, "error", err)
			o.advance(j, false)
			continue
		}

		if err := archive.Add(entry.URL, payload); err != nil {
			archive.Abort()
			o.fail(j, err.Error())
			return
		}
		o.advance(j, true)
	}

	path, err := archive.Finalize()
	if err != nil {
		o.fail(j, err.Error())
		return
	}

	o.mu.Lock()
	j.status.ArchivePath = path
	o.mu.Unlock()
	o.finish(j, models.DownloadCompleted, "")

	if o.save != nil {
		o.save(path, status.ArchiveName)
	}
}

// prepare runs the preflight: free-disk check and archive naming. Returns
// the status after the phase transition.
func (o *Orchestrator) prepare(j *job) models.DownloadStatus {
	o.mu.Lock()
	needed := j.status.TotalBytes + headroomBytes
	o.mu.Unlock()

	if usage, err := disk.Usage(o.stagingDir); err == nil && usage.Free < uint64(needed) {
		o.fail(j, fmt.Sprintf("not enough free space: need %d bytes, have %d", needed, usage.Free))
		return o.Status()
	}

	o.mu.Lock()
	j.status.ArchiveName = fmt.Sprintf("lwg-replays-%s.zip", time.Now().Format("2006-01-02"))
	j.status.Phase = models.DownloadRunning
	status := j.status
	o.mu.Unlock()

	o.emit(status)
	return status
}

// advance records one handled item and emits progress. Progress values are
// monotonically non-decreasing and delivered in queue order.
func (o *Orchestrator) advance(j *job, ok bool) {
	o.mu.Lock()
	if ok {
		j.status.Processed++
	} else {
		j.status.Failed++
	}
	status := j.status
	o.mu.Unlock()

	o.emit(status)
}

func (o *Orchestrator) fail(j *job, msg string) {
	o.logger.Error("download failed", "jobID", j.status.JobID, "error", msg)
	o.finish(j, models.DownloadFailed, msg)
}

// finish moves the job to a terminal phase. The job stays visible through
// Status until the next Start, but no longer blocks one.
func (o *Orchestrator) finish(j *job, phase models.DownloadPhase, errMsg string) {
	o.mu.Lock()
	j.status.Phase = phase
	j.status.Error = errMsg
	status := j.status
	o.mu.Unlock()

	o.logger.Info("download finished",
		"jobID", status.JobID,
		"phase", string(phase),
		"processed", status.Processed,
		"failed", status.Failed,
	)
	o.emit(status)
}

func (o *Orchestrator) emit(status models.DownloadStatus) {
	if o.notify != nil {
		o.notify(status)
	}
}
