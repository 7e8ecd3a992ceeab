package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/reviewd/internal/service"
)

// Sentinel errors for MCP tool input validation.
var (
	// ErrMissingScanID indicates a lookup tool was called without an ID.
	ErrMissingScanID = errors.New("scan_id parameter is required")

	// ErrUnknownFormat indicates an unsupported report format.
	ErrUnknownFormat = errors.New("format must be markdown or json")
)

// ToolOutput is the structured output placeholder for scan tools; results
// are rendered as JSON or markdown text content.
type ToolOutput struct{}

// InitiateScanInput is the payload for the initiate_scan tool.
type InitiateScanInput struct {
	RepoURL      string `json:"repo_url"                jsonschema:"repository URL to scan"`
	ScanType     string `json:"scan_type"               jsonschema:"scan type, pr or project"`
	PRID         int    `json:"pr_id,omitempty"         jsonschema:"pull request number for pr scans"`
	SourceBranch string `json:"source_branch,omitempty" jsonschema:"source branch of the pull request"`
	TargetBranch string `json:"target_branch,omitempty" jsonschema:"target branch of the pull request"`
	Branch       string `json:"branch,omitempty"        jsonschema:"branch to scan for project scans"`
}

// ScanIDInput is the payload for status and cancel tools.
type ScanIDInput struct {
	ScanID string `json:"scan_id" jsonschema:"scan or job identifier"`
}

// ScanReportInput is the payload for the scan_report tool.
type ScanReportInput struct {
	ScanID string `json:"scan_id"          jsonschema:"scan or job identifier"`
	Format string `json:"format,omitempty" jsonschema:"report format, markdown or json"`
}

// scanTools holds the shared handler state for all scan tools.
type scanTools struct {
	svc *service.Service
	log *slog.Logger
}

// handleInitiate processes initiate_scan tool calls. Request validation
// happens in the service layer against the shared JSON schema.
func (st *scanTools) handleInitiate(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input InitiateScanInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return errorResult(fmt.Errorf("encode request: %w", err))
	}

	accepted, err := st.svc.Initiate(raw)
	if err != nil {
		return errorResult(err)
	}

	st.log.Info("mcp scan initiated", "scan_id", accepted.ScanID, "repo", input.RepoURL)

	return jsonResult(accepted)
}

// handleStatus processes scan_status tool calls.
func (st *scanTools) handleStatus(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input ScanIDInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.ScanID == "" {
		return errorResult(ErrMissingScanID)
	}

	snapshot, err := st.svc.Status(input.ScanID)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(snapshot)
}

// handleReport processes scan_report tool calls.
func (st *scanTools) handleReport(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input ScanReportInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.ScanID == "" {
		return errorResult(ErrMissingScanID)
	}

	if input.Format != "" && input.Format != "markdown" && input.Format != "json" {
		return errorResult(fmt.Errorf("%w: %s", ErrUnknownFormat, input.Format))
	}

	report, markdown, err := st.svc.Report(input.ScanID)
	if err != nil {
		return errorResult(err)
	}

	if input.Format == "json" {
		return jsonResult(report)
	}

	return textResult(markdown)
}

// handleCancel processes cancel_scan tool calls.
func (st *scanTools) handleCancel(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input ScanIDInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.ScanID == "" {
		return errorResult(ErrMissingScanID)
	}

	if !st.svc.Cancel(input.ScanID) {
		return errorResult(fmt.Errorf("%w: %s", service.ErrNotFound, input.ScanID))
	}

	st.log.Info("mcp scan cancelled", "scan_id", input.ScanID)

	return jsonResult(map[string]any{"scan_id": input.ScanID, "cancelled": true})
}

// errorResult returns a tool-level error result. Tool failures are
// reported through IsError so clients see the message, not a transport
// fault.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}, ToolOutput{}, nil
}

// jsonResult marshals v into indented JSON text content.
func jsonResult(v any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return textResult(string(data))
}

// textResult wraps text in a successful tool result.
func textResult(text string) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}, ToolOutput{}, nil
}
