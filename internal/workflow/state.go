// Package workflow runs one review as a directed graph of stages over a
// shared state value. Stages execute sequentially; routing reads the step tag
// a stage leaves behind. Errors never escape the graph: every failure routes
// into the error handler, which still emits a well-formed report.
package workflow

import (
	"github.com/Sumatoshi-tech/reviewd/internal/agents"
	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// Step tags the next edge to take after a stage returns.
type Step string

const (
	StepStartScan       Step = "START_SCAN"
	StepFetchCode       Step = "FETCH_CODE"
	StepParseCode       Step = "PARSE_CODE"
	StepStaticAnalysis  Step = "STATIC_ANALYSIS"
	StepImpactAnalysis  Step = "IMPACT_ANALYSIS"
	StepProjectScanning Step = "PROJECT_SCANNING"
	StepLLMAnalysis     Step = "LLM_ANALYSIS"
	StepReporting       Step = "REPORTING"
	StepCompleted       Step = "COMPLETED"
	StepError           Step = "ERROR"
	StepErrorHandled    Step = "ERROR_HANDLED"
)

// Metadata keys written by stages for cross-stage breadcrumbs and for tests.
const (
	MetaScanType             = "scan_type"
	MetaStartedAt            = "started_at"
	MetaOptions              = "options"
	MetaChangedFiles         = "changed_files"
	MetaFallbackMode         = "fallback_mode"
	MetaImpactError          = "impact_error"
	MetaDiagramError         = "diagram_error"
	MetaRiskLevel            = "risk_level"
	MetaRecommendationCount  = "recommendations_count"
	MetaProjectScanCompleted = "project_scan_completed"
)

// GraphState is the single value threaded through all stages of one scan.
// It is owned by one goroutine at a time; stages mutate it in place.
type GraphState struct {
	Request scan.Request
	ScanID  string

	RepoURL string
	PRID    int

	ProjectCode map[string]string
	PRDiff      string

	ParsedASTs     map[string]agents.ParsedFile
	StaticFindings []scan.Finding
	LLMInsights    string

	ProjectScanResult *agents.ProjectScanResult
	ImpactResult      []agents.ImpactedEntity
	Diagrams          []scan.Diagram

	ReportData     *scan.Report
	ReportMarkdown string
	ReportJSON     string

	Error       string
	CurrentStep Step
	Metadata    map[string]any
}

// Terminal reports whether the state has reached a terminal step.
func (s *GraphState) Terminal() bool {
	return s.CurrentStep == StepCompleted || s.CurrentStep == StepErrorHandled
}

// FallbackMode reports whether the PR fetch fell back to a project snapshot.
func (s *GraphState) FallbackMode() bool {
	flag, _ := s.Metadata[MetaFallbackMode].(bool)

	return flag
}

// ProjectScanCompleted reports whether the project-wide scan stage ran.
func (s *GraphState) ProjectScanCompleted() bool {
	flag, _ := s.Metadata[MetaProjectScanCompleted].(bool)

	return flag
}

// ChangedFiles returns the changed-files breadcrumb recorded by fetch_code.
func (s *GraphState) ChangedFiles() []string {
	files, _ := s.Metadata[MetaChangedFiles].([]string)

	return files
}
