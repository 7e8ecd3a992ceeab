// Package jobs runs review workflows asynchronously: submission returns
// immediately, a bounded executor pool drives the orchestrator, and callers
// poll status or fetch the archived report.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
	"github.com/Sumatoshi-tech/reviewd/internal/workflow"
)

// Status is the lifecycle state of one job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// DefaultPoolSize bounds how many jobs execute concurrently.
const DefaultPoolSize = 4

// DefaultRetention is the job age cutoff SweepOld uses when callers pass 0.
const DefaultRetention = 24 * time.Hour

// Progress checkpoints per workflow step. Values only ever increase along
// the graph, so per-job progress stays monotone.
var stepProgress = map[workflow.Step]int{
	workflow.StepFetchCode:       10,
	workflow.StepParseCode:       25,
	workflow.StepStaticAnalysis:  40,
	workflow.StepImpactAnalysis:  55,
	workflow.StepProjectScanning: 55,
	workflow.StepLLMAnalysis:     70,
	workflow.StepReporting:       85,
	workflow.StepCompleted:       100,
	workflow.StepError:           90,
	workflow.StepErrorHandled:    100,
}

var (
	// ErrNotFound indicates no job matches the given identifier.
	ErrNotFound = errors.New("job not found")
	// ErrNoReport indicates the job has not produced a report.
	ErrNoReport = errors.New("no report available")
)

// Callback overrides the default orchestrator for one submission. It is
// invoked exactly once with the request; its return value becomes the job
// result.
type Callback func(ctx context.Context, req scan.Request) (*scan.Report, error)

// Snapshot is the externally visible state of one job.
type Snapshot struct {
	JobID           string     `json:"job_id"`
	ScanID          string     `json:"scan_id"`
	Status          Status     `json:"status"`
	Progress        int        `json:"progress"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Repository      string     `json:"repository"`
	ScanType        scan.Type  `json:"scan_type"`
}

// job is the internal record; mutated only by its executor and by Cancel,
// always under the queue lock.
type job struct {
	Snapshot

	request  scan.Request
	cancel   context.CancelFunc
	archived []byte
	markdown string
}

// Queue is the in-process job table plus its executor pool.
type Queue struct {
	mu   sync.RWMutex
	jobs map[string]*job

	orch    *workflow.Orchestrator
	slots   chan struct{}
	log     *slog.Logger
	metrics *metrics

	baseCtx context.Context
	wg      sync.WaitGroup

	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

// New builds a queue over the given orchestrator. poolSize <= 0 selects
// DefaultPoolSize. The context bounds every job this queue will ever run;
// cancelling it drains the queue.
func New(ctx context.Context, orch *workflow.Orchestrator, poolSize int, log *slog.Logger) *Queue {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	return &Queue{
		jobs:    make(map[string]*job),
		orch:    orch,
		slots:   make(chan struct{}, poolSize),
		log:     log,
		metrics: newMetrics(),
		baseCtx: ctx,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0), //nolint:gosec // IDs are opaque, not secret
	}
}

// Submit registers a job and schedules its execution. Returns immediately
// with fresh scan and job IDs.
func (q *Queue) Submit(req scan.Request, callback Callback) (scanID, jobID string) {
	q.mu.Lock()

	now := q.now()
	scanID = "scan-" + ulid.MustNew(ulid.Timestamp(now), q.entropy).String()
	jobID = "job-" + ulid.MustNew(ulid.Timestamp(now), q.entropy).String()

	ctx, cancel := context.WithCancel(q.baseCtx)

	row := &job{
		Snapshot: Snapshot{
			JobID:      jobID,
			ScanID:     scanID,
			Status:     StatusPending,
			CreatedAt:  now,
			Repository: req.RepoURL,
			ScanType:   req.ScanType,
		},
		request: req,
		cancel:  cancel,
	}

	q.jobs[jobID] = row
	q.mu.Unlock()

	q.metrics.submitted.Inc()

	q.wg.Add(1)

	go q.execute(ctx, jobID, callback)

	return scanID, jobID
}

// execute acquires a pool slot and drives one job to a terminal status.
func (q *Queue) execute(ctx context.Context, jobID string, callback Callback) {
	defer q.wg.Done()

	select {
	case q.slots <- struct{}{}:
		defer func() { <-q.slots }()
	case <-ctx.Done():
		q.finish(jobID, StatusCancelled, "", nil, "")

		return
	}

	req, scanID, ok := q.start(jobID)
	if !ok {
		return
	}

	q.metrics.running.Inc()
	defer q.metrics.running.Dec()

	started := q.now()

	if callback != nil {
		q.runCallback(ctx, jobID, req, callback)
	} else {
		q.runWorkflow(ctx, jobID, scanID, req)
	}

	q.metrics.duration.Observe(q.now().Sub(started).Seconds())
}

func (q *Queue) runWorkflow(ctx context.Context, jobID, scanID string, req scan.Request) {
	state := q.orch.RunObserved(ctx, req, scanID, func(step workflow.Step) {
		if pct, ok := stepProgress[step]; ok {
			q.setProgress(jobID, pct)
		}
	})

	switch {
	case ctx.Err() != nil && !state.Terminal():
		q.finish(jobID, StatusCancelled, "", nil, "")
	case state.Error != "":
		q.finish(jobID, StatusFailed, state.Error, state.ReportData, state.ReportMarkdown)
	default:
		q.finish(jobID, StatusCompleted, "", state.ReportData, state.ReportMarkdown)
	}
}

func (q *Queue) runCallback(ctx context.Context, jobID string, req scan.Request, callback Callback) {
	report, err := q.invokeCallback(ctx, req, callback)

	switch {
	case ctx.Err() != nil:
		q.finish(jobID, StatusCancelled, "", nil, "")
	case err != nil:
		q.finish(jobID, StatusFailed, err.Error(), nil, "")
	default:
		q.setProgress(jobID, 100)
		q.finish(jobID, StatusCompleted, "", report, "")
	}
}

// invokeCallback shields the queue from panicking callbacks.
func (q *Queue) invokeCallback(ctx context.Context, req scan.Request, callback Callback) (report *scan.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()

	return callback(ctx, req)
}

// start transitions PENDING -> RUNNING; returns false when the job was
// cancelled while queued.
func (q *Queue) start(jobID string) (scan.Request, string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	row, ok := q.jobs[jobID]
	if !ok || row.Status != StatusPending {
		return scan.Request{}, "", false
	}

	now := q.now()
	row.Status = StatusRunning
	row.StartedAt = &now
	row.Progress = max(row.Progress, 5)

	return row.request, row.ScanID, true
}

func (q *Queue) setProgress(jobID string, pct int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if row, ok := q.jobs[jobID]; ok && row.Status == StatusRunning {
		row.Progress = max(row.Progress, pct)
	}
}

// finish records the terminal status. CANCELLED jobs keep no result.
func (q *Queue) finish(jobID string, status Status, errMsg string, report *scan.Report, markdown string) {
	var archived []byte

	if report != nil && status != StatusCancelled {
		data, err := archiveReport(report)
		if err != nil {
			q.log.Error("report archival failed", "job_id", jobID, "error", err)
		} else {
			archived = data
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	row, ok := q.jobs[jobID]
	if !ok || isTerminal(row.Status) {
		return
	}

	now := q.now()
	row.Status = status
	row.CompletedAt = &now
	row.ErrorMessage = errMsg

	if status == StatusCompleted || status == StatusFailed {
		row.Progress = 100
	}

	if status != StatusCancelled {
		row.archived = archived
		row.markdown = markdown
	}

	q.metrics.finished.WithLabelValues(string(status)).Inc()

	q.log.Info("job finished",
		"job_id", jobID, "scan_id", row.ScanID, "status", status, "error", errMsg)
}

// Status returns the snapshot for a job ID.
func (q *Queue) Status(jobID string) (Snapshot, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	row, ok := q.jobs[jobID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	return snapshotOf(row, q.now()), nil
}

// StatusByScan returns the snapshot for a scan ID.
func (q *Queue) StatusByScan(scanID string) (Snapshot, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, row := range q.jobs {
		if row.ScanID == scanID {
			return snapshotOf(row, q.now()), nil
		}
	}

	return Snapshot{}, fmt.Errorf("%w: scan %s", ErrNotFound, scanID)
}

// Report returns the archived report for a scan ID, decompressed.
func (q *Queue) Report(scanID string) (*scan.Report, string, error) {
	q.mu.RLock()

	var found *job

	for _, row := range q.jobs {
		if row.ScanID == scanID {
			found = row

			break
		}
	}

	if found == nil {
		q.mu.RUnlock()

		return nil, "", fmt.Errorf("%w: scan %s", ErrNotFound, scanID)
	}

	archived, markdown := found.archived, found.markdown
	q.mu.RUnlock()

	if len(archived) == 0 {
		return nil, "", fmt.Errorf("%w: scan %s", ErrNoReport, scanID)
	}

	report, err := unarchiveReport(archived)
	if err != nil {
		return nil, "", fmt.Errorf("unarchive report: %w", err)
	}

	return report, markdown, nil
}

// Cancel signals cancellation. A queued job flips to CANCELLED immediately;
// a running one transitions at its next stage boundary.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()

	row, ok := q.jobs[id]
	if !ok {
		for _, candidate := range q.jobs {
			if candidate.ScanID == id {
				row, ok = candidate, true

				break
			}
		}
	}

	if !ok || isTerminal(row.Status) {
		q.mu.Unlock()

		return false
	}

	cancel := row.cancel
	q.mu.Unlock()

	cancel()

	return true
}

// SweepOld deletes terminal jobs older than maxAge. maxAge <= 0 selects
// DefaultRetention.
func (q *Queue) SweepOld(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}

	cutoff := q.now().Add(-maxAge)

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0

	for id, row := range q.jobs {
		if isTerminal(row.Status) && row.CreatedAt.Before(cutoff) {
			delete(q.jobs, id)

			removed++
		}
	}

	return removed
}

// All returns snapshots of every job, newest first.
func (q *Queue) All() []Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Snapshot, 0, len(q.jobs))
	for _, row := range q.jobs {
		out = append(out, snapshotOf(row, q.now()))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out
}

// Wait blocks until every submitted job has finished. Used on shutdown and
// in tests.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func snapshotOf(row *job, now time.Time) Snapshot {
	snap := row.Snapshot

	if snap.StartedAt != nil {
		end := now
		if snap.CompletedAt != nil {
			end = *snap.CompletedAt
		}

		snap.DurationSeconds = end.Sub(*snap.StartedAt).Seconds()
	}

	return snap
}

func isTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

