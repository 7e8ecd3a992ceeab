package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/reviewd/internal/agents"
	"github.com/Sumatoshi-tech/reviewd/internal/jobs"
	"github.com/Sumatoshi-tech/reviewd/internal/service"
	"github.com/Sumatoshi-tech/reviewd/internal/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTools(t *testing.T) (*scanTools, *jobs.Queue) {
	t.Helper()

	bundle := agents.MockBundle()
	bundle.Fetcher = &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			return map[string]string{"a.py": "x = 1\n"}, nil
		},
	}
	bundle.Parser = agents.NewStructuralParser()
	bundle.Static = agents.NewRuleAnalyzer()
	bundle.Scanner = agents.NewMetricsScanner()

	orch := workflow.New(bundle, testLogger())
	queue := jobs.New(context.Background(), orch, 2, testLogger())

	svc, err := service.New(queue, testLogger())
	require.NoError(t, err)

	return &scanTools{svc: svc, log: testLogger()}, queue
}

func resultText(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return text.Text
}

func TestHandleInitiateValidRequest(t *testing.T) {
	t.Parallel()

	tools, queue := newTestTools(t)

	input := InitiateScanInput{
		RepoURL:  "https://github.com/acme/api",
		ScanType: "project",
	}

	result, _, err := tools.handleInitiate(context.Background(), &mcpsdk.CallToolRequest{}, input)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var accepted service.Accepted

	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &accepted))
	assert.NotEmpty(t, accepted.ScanID)
	assert.NotEmpty(t, accepted.JobID)

	queue.Wait()
}

func TestHandleInitiateRejectsBadScanType(t *testing.T) {
	t.Parallel()

	tools, _ := newTestTools(t)

	input := InitiateScanInput{
		RepoURL:  "https://github.com/acme/api",
		ScanType: "full",
	}

	result, _, err := tools.handleInitiate(context.Background(), &mcpsdk.CallToolRequest{}, input)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "scan_type")
}

func TestHandleStatusAndReportLifecycle(t *testing.T) {
	t.Parallel()

	tools, queue := newTestTools(t)

	accepted, err := tools.svc.Initiate(
		[]byte(`{"repo_url": "https://github.com/acme/api", "scan_type": "project"}`))
	require.NoError(t, err)

	queue.Wait()

	statusResult, _, err := tools.handleStatus(
		context.Background(), &mcpsdk.CallToolRequest{}, ScanIDInput{ScanID: accepted.ScanID})
	require.NoError(t, err)
	assert.False(t, statusResult.IsError)

	var snapshot jobs.Snapshot

	require.NoError(t, json.Unmarshal([]byte(resultText(t, statusResult)), &snapshot))
	assert.Equal(t, jobs.StatusCompleted, snapshot.Status)

	markdownResult, _, err := tools.handleReport(
		context.Background(), &mcpsdk.CallToolRequest{}, ScanReportInput{ScanID: accepted.ScanID})
	require.NoError(t, err)
	assert.False(t, markdownResult.IsError)
	assert.Contains(t, resultText(t, markdownResult), "Code Review Report")

	structured, _, err := tools.handleReport(
		context.Background(), &mcpsdk.CallToolRequest{},
		ScanReportInput{ScanID: accepted.ScanID, Format: "json"})
	require.NoError(t, err)
	assert.False(t, structured.IsError)
	assert.Contains(t, resultText(t, structured), accepted.ScanID)
}

func TestHandleReportUnknownFormat(t *testing.T) {
	t.Parallel()

	tools, _ := newTestTools(t)

	result, _, err := tools.handleReport(
		context.Background(), &mcpsdk.CallToolRequest{},
		ScanReportInput{ScanID: "scan-unknown", Format: "pdf"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "format must be markdown or json")
}

func TestHandleStatusRequiresID(t *testing.T) {
	t.Parallel()

	tools, _ := newTestTools(t)

	result, _, err := tools.handleStatus(
		context.Background(), &mcpsdk.CallToolRequest{}, ScanIDInput{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "scan_id parameter is required")
}

func TestHandleCancelUnknownScan(t *testing.T) {
	t.Parallel()

	tools, _ := newTestTools(t)

	result, _, err := tools.handleCancel(
		context.Background(), &mcpsdk.CallToolRequest{}, ScanIDInput{ScanID: "scan-missing"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}
