package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/reviewd/internal/agents"
	"github.com/Sumatoshi-tech/reviewd/internal/scan"
	"github.com/Sumatoshi-tech/reviewd/internal/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(t *testing.T, bundle agents.Bundle, poolSize int) *Queue {
	t.Helper()

	orch := workflow.New(bundle, testLogger())

	return New(context.Background(), orch, poolSize, testLogger())
}

func projectBundle(files map[string]string) agents.Bundle {
	bundle := agents.MockBundle()
	bundle.Fetcher = &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			return files, nil
		},
	}
	bundle.Parser = agents.NewStructuralParser()
	bundle.Static = agents.NewRuleAnalyzer()
	bundle.Scanner = agents.NewMetricsScanner()

	return bundle
}

func TestSubmitRunsToCompletion(t *testing.T) {
	t.Parallel()

	queue := newTestQueue(t, projectBundle(map[string]string{"a.py": "x = 1\n"}), 2)

	req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}

	scanID, jobID := queue.Submit(req, nil)

	require.NotEmpty(t, scanID)
	require.NotEmpty(t, jobID)
	require.NotEqual(t, scanID, jobID)

	queue.Wait()

	snap, err := queue.Status(jobID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.NotNil(t, snap.StartedAt)
	assert.NotNil(t, snap.CompletedAt)
	assert.Equal(t, req.RepoURL, snap.Repository)

	report, markdown, err := queue.Report(scanID)
	require.NoError(t, err)

	assert.Equal(t, scanID, report.ScanInfo.ScanID)
	assert.Equal(t, scan.StatusCompleted, report.Summary.ScanStatus)
	assert.Contains(t, markdown, "Code Review Report")
}

func TestProgressMonotone(t *testing.T) {
	t.Parallel()

	queue := newTestQueue(t, projectBundle(map[string]string{"a.py": "x = 1\n"}), 1)

	_, jobID := queue.Submit(scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}, nil)

	last := -1

	for {
		snap, err := queue.Status(jobID)
		require.NoError(t, err)

		require.GreaterOrEqual(t, snap.Progress, last)

		last = snap.Progress

		if isTerminal(snap.Status) {
			break
		}

		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 100, last)
}

func TestFailedScanProducesErrorReport(t *testing.T) {
	t.Parallel()

	bundle := agents.MockBundle()
	bundle.Fetcher = &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			return nil, errors.New("authentication required")
		},
	}

	queue := newTestQueue(t, bundle, 1)

	scanID, jobID := queue.Submit(scan.Request{RepoURL: "https://host/p/q", ScanType: scan.TypeProject}, nil)

	queue.Wait()

	snap, err := queue.Status(jobID)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.ErrorMessage, "authentication required")

	// Failures still yield a well-formed error report.
	report, _, err := queue.Report(scanID)
	require.NoError(t, err)

	assert.Equal(t, scan.StatusError, report.Summary.ScanStatus)
}

func TestCancelRunningJob(t *testing.T) {
	t.Parallel()

	fetchStarted := make(chan struct{})
	release := make(chan struct{})

	bundle := agents.MockBundle()
	bundle.Fetcher = &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			close(fetchStarted)
			<-release

			return map[string]string{"a.py": "x = 1\n"}, nil
		},
	}

	queue := newTestQueue(t, bundle, 1)

	scanID, jobID := queue.Submit(scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}, nil)

	<-fetchStarted

	require.True(t, queue.Cancel(jobID))

	close(release)
	queue.Wait()

	snap, err := queue.Status(jobID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, snap.Status)

	_, _, err = queue.Report(scanID)

	require.ErrorIs(t, err, ErrNoReport)
}

func TestCancelByScanID(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})

	bundle := agents.MockBundle()
	bundle.Fetcher = &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			close(started)
			<-release

			return map[string]string{"a.py": "x = 1\n"}, nil
		},
	}

	queue := newTestQueue(t, bundle, 1)

	scanID, _ := queue.Submit(scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}, nil)

	<-started

	assert.True(t, queue.Cancel(scanID))

	close(release)
	queue.Wait()

	snap, err := queue.StatusByScan(scanID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, snap.Status)
}

func TestCallbackResultBecomesReport(t *testing.T) {
	t.Parallel()

	queue := newTestQueue(t, agents.MockBundle(), 1)

	want := &scan.Report{
		ScanInfo: scan.Info{ScanID: "external", ReportVersion: scan.ReportVersion},
		Summary:  scan.Summary{ScanStatus: scan.StatusCompleted},
	}

	scanID, jobID := queue.Submit(scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypePR, PRID: 3},
		func(_ context.Context, _ scan.Request) (*scan.Report, error) {
			return want, nil
		})

	queue.Wait()

	snap, err := queue.Status(jobID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, snap.Status)

	report, _, err := queue.Report(scanID)
	require.NoError(t, err)

	assert.Equal(t, "external", report.ScanInfo.ScanID)
}

func TestCallbackPanicFailsJob(t *testing.T) {
	t.Parallel()

	queue := newTestQueue(t, agents.MockBundle(), 1)

	_, jobID := queue.Submit(scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject},
		func(_ context.Context, _ scan.Request) (*scan.Report, error) {
			panic("callback exploded")
		})

	queue.Wait()

	snap, err := queue.Status(jobID)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.ErrorMessage, "callback exploded")
}

func TestSweepOldRemovesOnlyOldTerminalJobs(t *testing.T) {
	t.Parallel()

	queue := newTestQueue(t, projectBundle(map[string]string{"a.py": "x = 1\n"}), 1)

	_, oldJob := queue.Submit(scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}, nil)
	_, freshJob := queue.Submit(scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}, nil)

	queue.Wait()

	// Age one job past the cutoff.
	queue.mu.Lock()
	queue.jobs[oldJob].CreatedAt = queue.jobs[oldJob].CreatedAt.Add(-48 * time.Hour)
	queue.mu.Unlock()

	removed := queue.SweepOld(DefaultRetention)

	assert.Equal(t, 1, removed)

	_, err := queue.Status(oldJob)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = queue.Status(freshJob)
	require.NoError(t, err)

	assert.Zero(t, queue.SweepOld(DefaultRetention))
}

func TestStatusUnknownJob(t *testing.T) {
	t.Parallel()

	queue := newTestQueue(t, agents.MockBundle(), 1)

	_, err := queue.Status("job-missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = queue.StatusByScan("scan-missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveRoundtrip(t *testing.T) {
	t.Parallel()

	report := &scan.Report{
		ScanInfo: scan.Info{ScanID: "scan-a", Repository: "https://host/a/b", ReportVersion: scan.ReportVersion},
		Summary: scan.Summary{
			TotalFindings:     1,
			SeverityBreakdown: map[string]int{"WARNING": 1},
			CategoryBreakdown: map[string]int{"style": 1},
			ScanStatus:        scan.StatusCompleted,
		},
		Findings: []scan.Finding{{RuleID: "PRINT_STATEMENT_FOUND", Severity: scan.SeverityWarning, Category: "style"}},
	}

	archived, err := archiveReport(report)
	require.NoError(t, err)

	restored, err := unarchiveReport(archived)
	require.NoError(t, err)

	assert.Equal(t, report, restored)
}

func TestBoundedPoolRunsAllJobs(t *testing.T) {
	t.Parallel()

	queue := newTestQueue(t, projectBundle(map[string]string{"a.py": "x = 1\n"}), 2)

	jobIDs := make([]string, 0, 6)

	for range 6 {
		_, jobID := queue.Submit(scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}, nil)
		jobIDs = append(jobIDs, jobID)
	}

	queue.Wait()

	for _, jobID := range jobIDs {
		snap, err := queue.Status(jobID)
		require.NoError(t, err)

		assert.Equal(t, StatusCompleted, snap.Status)
	}

	assert.Len(t, queue.All(), 6)
}
