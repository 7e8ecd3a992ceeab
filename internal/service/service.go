// Package service is the thin dispatcher between external surfaces (HTTP,
// MCP, CLI) and the job queue: it validates requests against a JSON schema,
// submits them, and exposes status, report, and cancel lookups.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/reviewd/internal/jobs"
	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// Estimated wall-clock durations returned with an accepted scan.
const (
	estimatePR      = 30 * time.Second
	estimateProject = 2 * time.Minute
)

var (
	// ErrValidation tags malformed scan requests.
	ErrValidation = errors.New("invalid scan request")
	// ErrNotFound tags lookups for unknown scan or job IDs.
	ErrNotFound = errors.New("not found")
)

// requestSchema is the wire contract for initiate requests.
const requestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["repo_url", "scan_type"],
  "additionalProperties": false,
  "properties": {
    "repo_url":      {"type": "string"},
    "scan_type":     {"enum": ["pr", "project"]},
    "pr_id":         {"type": "integer", "minimum": 1},
    "source_branch": {"type": "string"},
    "target_branch": {"type": "string"},
    "branch":        {"type": "string"},
    "options":       {"type": "object"}
  }
}`

// Accepted is the response to a successfully initiated scan.
type Accepted struct {
	ScanID                   string `json:"scan_id"`
	JobID                    string `json:"job_id"`
	Status                   string `json:"status"`
	EstimatedDurationSeconds int    `json:"estimated_duration_seconds"`
}

// Service dispatches validated requests into the queue.
type Service struct {
	queue  *jobs.Queue
	schema *gojsonschema.Schema
	log    *slog.Logger
}

// New compiles the request schema and wires the dispatcher.
func New(queue *jobs.Queue, log *slog.Logger) (*Service, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}

	return &Service{queue: queue, schema: schema, log: log}, nil
}

// Initiate validates raw against the request schema and submits the scan.
func (s *Service) Initiate(raw []byte) (Accepted, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Accepted{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return Accepted{}, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}

	var req scan.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Accepted{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	scanID, jobID := s.queue.Submit(req, nil)

	s.log.Info("scan initiated",
		"scan_id", scanID, "job_id", jobID, "repo", req.RepoURL, "scan_type", req.ScanType)

	estimate := estimateProject
	if req.ScanType == scan.TypePR {
		estimate = estimatePR
	}

	return Accepted{
		ScanID:                   scanID,
		JobID:                    jobID,
		Status:                   string(jobs.StatusPending),
		EstimatedDurationSeconds: int(estimate.Seconds()),
	}, nil
}

// Report returns the stored report and its markdown rendering for a scan.
func (s *Service) Report(scanID string) (*scan.Report, string, error) {
	report, markdown, err := s.queue.Report(scanID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return report, markdown, nil
}

// Status resolves id as a job ID first, then as a scan ID.
func (s *Service) Status(id string) (jobs.Snapshot, error) {
	snap, err := s.queue.Status(id)
	if err == nil {
		return snap, nil
	}

	snap, err = s.queue.StatusByScan(id)
	if err != nil {
		return jobs.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return snap, nil
}

// Cancel signals cancellation by job or scan ID.
func (s *Service) Cancel(id string) bool {
	return s.queue.Cancel(id)
}
