// Package mcp exposes scan orchestration over the Model Context Protocol
// so AI agents can initiate scans and retrieve reports through stdio.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/reviewd/internal/service"
)

// serverName identifies this server in the MCP handshake.
const serverName = "reviewd"

// Tool names exposed to MCP clients.
const (
	toolInitiateScan = "initiate_scan"
	toolScanStatus   = "scan_status"
	toolScanReport   = "scan_report"
	toolCancelScan   = "cancel_scan"
)

// ServerDeps carries the dependencies for the MCP server.
type ServerDeps struct {
	// Service dispatches tool calls into the scan pipeline.
	Service *service.Service

	// Logger receives request logs. Nil discards them.
	Logger *slog.Logger

	// Version is reported in the MCP handshake.
	Version string
}

// Server wraps the MCP SDK server with reviewd's scan tools registered.
type Server struct {
	impl      *mcpsdk.Server
	toolNames []string
}

// NewServer builds an MCP server with all scan tools registered.
func NewServer(deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	impl := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    serverName,
		Version: deps.Version,
	}, nil)

	tools := &scanTools{svc: deps.Service, log: log}

	mcpsdk.AddTool(impl, &mcpsdk.Tool{
		Name:        toolInitiateScan,
		Description: "Start a code review scan of a repository or pull request",
	}, tools.handleInitiate)

	mcpsdk.AddTool(impl, &mcpsdk.Tool{
		Name:        toolScanStatus,
		Description: "Get the status and progress of a scan by scan or job ID",
	}, tools.handleStatus)

	mcpsdk.AddTool(impl, &mcpsdk.Tool{
		Name:        toolScanReport,
		Description: "Retrieve the finished review report for a scan",
	}, tools.handleReport)

	mcpsdk.AddTool(impl, &mcpsdk.Tool{
		Name:        toolCancelScan,
		Description: "Cancel a pending or running scan",
	}, tools.handleCancel)

	return &Server{
		impl:      impl,
		toolNames: []string{toolInitiateScan, toolScanStatus, toolScanReport, toolCancelScan},
	}
}

// ListToolNames returns the registered tool names.
func (s *Server) ListToolNames() []string {
	return slices.Clone(s.toolNames)
}

// Run serves MCP over stdio until the context is cancelled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	err := s.impl.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}
