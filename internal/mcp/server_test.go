package mcp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/reviewd/internal/mcp"
)

func TestNewServerReturnsNonNil(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{})
	require.NotNil(t, srv)
}

func TestNewServerToolsRegistered(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{})

	tools := srv.ListToolNames()
	assert.Len(t, tools, 4)
	assert.Contains(t, tools, "initiate_scan")
	assert.Contains(t, tools, "scan_status")
	assert.Contains(t, tools, "scan_report")
	assert.Contains(t, tools, "cancel_scan")
}
