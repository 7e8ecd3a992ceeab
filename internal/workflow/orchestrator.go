package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/reviewd/internal/agents"
	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// tracerName identifies workflow spans.
const tracerName = "github.com/Sumatoshi-tech/reviewd/internal/workflow"

// ErrValidation tags request validation failures from start_scan.
var ErrValidation = errors.New("validation failed")

// stageNames maps step tags to the stage function names used in error
// messages and span names.
var stageNames = map[Step]string{
	StepStartScan:       "start_scan",
	StepFetchCode:       "fetch_code",
	StepParseCode:       "parse_code",
	StepStaticAnalysis:  "static_analysis",
	StepImpactAnalysis:  "impact_analysis",
	StepProjectScanning: "project_scanning",
	StepLLMAnalysis:     "llm_analysis",
	StepReporting:       "reporting",
	StepError:           "handle_error",
}

// Orchestrator traverses the review graph for one request at a time. It is
// safe for concurrent Run calls; each call owns its own GraphState.
type Orchestrator struct {
	agents agents.Bundle
	log    *slog.Logger
	tracer trace.Tracer

	// now is swappable in tests; all timestamps flow through it.
	now func() time.Time
}

// New wires an orchestrator over an agent bundle.
func New(bundle agents.Bundle, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		agents: bundle,
		log:    log,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}

// Run executes the graph to a terminal step and returns the final state.
// It never returns an error: failures terminate in ERROR_HANDLED with an
// error report. Cancellation is observed at stage boundaries only; a
// cancelled run returns a non-terminal state with no report.
func (o *Orchestrator) Run(ctx context.Context, req scan.Request, scanID string) *GraphState {
	return o.RunObserved(ctx, req, scanID, nil)
}

// RunObserved is Run with a per-stage hook, invoked after every stage with
// the step tag the stage set. The job queue uses it for progress tracking.
func (o *Orchestrator) RunObserved(ctx context.Context, req scan.Request, scanID string, onStage func(Step)) *GraphState {
	state := &GraphState{
		Request:     req,
		ScanID:      scanID,
		CurrentStep: StepStartScan,
		Metadata:    map[string]any{},
	}

	for !state.Terminal() {
		if ctx.Err() != nil {
			o.log.Info("scan cancelled", "scan_id", scanID, "step", state.CurrentStep)

			return state
		}

		step := state.CurrentStep
		if step == StepError {
			o.handleError(ctx, state)
		} else {
			o.runStage(ctx, step, state)
		}

		if onStage != nil {
			onStage(state.CurrentStep)
		}
	}

	return state
}

// runStage dispatches one stage with panic and error containment.
func (o *Orchestrator) runStage(ctx context.Context, step Step, state *GraphState) {
	name, ok := stageNames[step]
	if !ok {
		state.Error = fmt.Sprintf("unknown step %q", step)
		state.CurrentStep = StepError

		return
	}

	ctx, span := o.tracer.Start(ctx, "workflow."+name,
		trace.WithAttributes(attribute.String("scan.id", state.ScanID)))
	defer span.End()

	err := o.invoke(ctx, step, state)
	if err != nil {
		state.Error = fmt.Sprintf("stage %s: %v", name, err)
		state.CurrentStep = StepError

		span.SetStatus(codes.Error, err.Error())
		o.log.Warn("stage failed", "scan_id", state.ScanID, "stage", name, "error", err)
	}
}

// invoke runs the stage function, converting panics into stage errors so no
// agent implementation can take the graph down.
func (o *Orchestrator) invoke(ctx context.Context, step Step, state *GraphState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch step {
	case StepStartScan:
		return o.startScan(state)
	case StepFetchCode:
		return o.fetchCode(ctx, state)
	case StepParseCode:
		return o.parseCode(ctx, state)
	case StepStaticAnalysis:
		return o.staticAnalysis(ctx, state)
	case StepImpactAnalysis:
		return o.impactAnalysis(ctx, state)
	case StepProjectScanning:
		return o.projectScanning(ctx, state)
	case StepLLMAnalysis:
		return o.llmAnalysis(ctx, state)
	case StepReporting:
		return o.reporting(ctx, state)
	default:
		return fmt.Errorf("step %q has no stage", step)
	}
}

func (o *Orchestrator) startScan(state *GraphState) error {
	req := state.Request

	if strings.TrimSpace(req.RepoURL) == "" {
		return fmt.Errorf("%w: Repository URL is required", ErrValidation)
	}

	state.RepoURL = req.RepoURL
	state.PRID = req.PRID

	state.Metadata[MetaScanType] = string(req.ScanType)
	state.Metadata[MetaStartedAt] = scan.Timestamp(o.now())

	if req.Options != nil {
		state.Metadata[MetaOptions] = req.Options
	}

	state.CurrentStep = StepFetchCode

	return nil
}

func (o *Orchestrator) fetchCode(ctx context.Context, state *GraphState) error {
	req := state.Request

	if state.PRID > 0 {
		diff, err := o.agents.Fetcher.GetPRDiff(ctx, state.RepoURL, state.PRID, req.TargetBranch, req.SourceBranch)
		if err == nil && diff != "" {
			state.PRDiff = diff
			state.Metadata[MetaChangedFiles] = o.agents.Fetcher.ChangedFilesFromDiff(diff)
			state.CurrentStep = StepParseCode

			return nil
		}

		o.log.Info("PR diff unavailable, falling back to project snapshot",
			"scan_id", state.ScanID, "pr_id", state.PRID, "error", err)
	}

	files, err := o.agents.Fetcher.GetProjectFiles(ctx, state.RepoURL, req.Branch)
	if err != nil {
		return fmt.Errorf("fetch project files: %w", err)
	}

	if len(files) == 0 {
		return errors.New("repository yielded no reviewable files")
	}

	state.ProjectCode = files

	if state.PRID > 0 {
		state.Metadata[MetaFallbackMode] = true
	}

	state.CurrentStep = StepParseCode

	return nil
}

func (o *Orchestrator) parseCode(ctx context.Context, state *GraphState) error {
	switch {
	case len(state.ProjectCode) > 0:
		parsed, err := o.agents.Parser.Parse(ctx, state.ProjectCode)
		if err != nil {
			return fmt.Errorf("parse project files: %w", err)
		}

		if len(parsed) == 0 {
			return errors.New("no files parsed")
		}

		state.ParsedASTs = parsed
	case state.PRDiff != "":
		state.ParsedASTs = o.parseDiff(ctx, state.PRDiff)
	default:
		return errors.New("nothing to parse")
	}

	state.CurrentStep = StepStaticAnalysis

	return nil
}

// parseDiff tries to parse the post-image added lines per file; when nothing
// parses, the synthetic diff_summary entry is still a valid result.
func (o *Orchestrator) parseDiff(ctx context.Context, diff string) map[string]agents.ParsedFile {
	extracted := agents.AddedLinesByFile(diff)

	if len(extracted) > 0 {
		parsed, err := o.agents.Parser.Parse(ctx, extracted)
		if err == nil && len(parsed) > 0 {
			return parsed
		}
	}

	entry := agents.DiffSummaryEntry(diff)

	return map[string]agents.ParsedFile{entry.Path: entry}
}

func (o *Orchestrator) staticAnalysis(ctx context.Context, state *GraphState) error {
	if len(state.ParsedASTs) == 0 {
		return errors.New("no parse results to analyze")
	}

	findings, err := o.agents.Static.Analyze(ctx, state.ParsedASTs)
	if err != nil {
		return fmt.Errorf("static analysis: %w", err)
	}

	state.StaticFindings = findings

	switch {
	case state.PRID > 0:
		state.CurrentStep = StepImpactAnalysis
	case len(state.ProjectCode) > 0:
		state.CurrentStep = StepProjectScanning
	default:
		state.CurrentStep = StepLLMAnalysis
	}

	return nil
}

// impactAnalysis is non-fatal: failures are recorded as metadata and the
// scan proceeds to LLM analysis regardless.
func (o *Orchestrator) impactAnalysis(ctx context.Context, state *GraphState) error {
	graph := agents.BuildDependencyGraph(state.ParsedASTs)

	impacts, err := o.agents.Impact.Analyze(ctx, state.PRDiff, graph, state.ChangedFiles())
	if err != nil {
		state.Metadata[MetaImpactError] = err.Error()

		o.log.Warn("impact analysis failed", "scan_id", state.ScanID, "error", err)
	} else {
		state.ImpactResult = impacts
	}

	state.CurrentStep = StepLLMAnalysis

	return nil
}

func (o *Orchestrator) projectScanning(ctx context.Context, state *GraphState) error {
	result, err := o.agents.Scanner.ScanProject(ctx, state.ProjectCode, state.StaticFindings)
	if err != nil {
		return fmt.Errorf("project scan: %w", err)
	}

	state.ProjectScanResult = result
	state.Metadata[MetaProjectScanCompleted] = true
	state.Metadata[MetaRiskLevel] = string(result.RiskAssessment.RiskLevel)
	state.Metadata[MetaRecommendationCount] = len(result.Recommendations)

	// The project scanner already produced architectural analysis, so the
	// scan skips the LLM stage.
	state.CurrentStep = StepReporting

	return nil
}

func (o *Orchestrator) llmAnalysis(ctx context.Context, state *GraphState) error {
	var (
		insights string
		err      error
	)

	if state.PRDiff != "" {
		insights, err = o.agents.LLM.AnalyzePRDiff(ctx, state.PRDiff, state.StaticFindings)
	} else {
		insights, err = o.agents.LLM.AnalyzeCode(ctx, state.ProjectCode, state.StaticFindings)
	}

	if err != nil {
		return fmt.Errorf("llm analysis: %w", err)
	}

	state.LLMInsights = insights

	switch {
	case state.ProjectScanCompleted():
		state.CurrentStep = StepReporting
	case state.PRID > 0:
		state.CurrentStep = StepReporting
	default:
		state.CurrentStep = StepProjectScanning
	}

	return nil
}

func (o *Orchestrator) reporting(ctx context.Context, state *GraphState) error {
	input := o.reportInput(state, scan.StatusCompleted, "")

	diagrams, err := o.agents.Diagrammer.Render(ctx, input, state.ParsedASTs)
	if err != nil {
		// Diagrams are decoration; their failure never fails the scan.
		state.Metadata[MetaDiagramError] = err.Error()

		o.log.Warn("diagram rendering failed", "scan_id", state.ScanID, "error", err)
	} else {
		state.Diagrams = diagrams
		input.Diagrams = diagrams
	}

	bundle, err := o.agents.Reporter.Generate(input)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	state.ReportData = bundle.Data
	state.ReportMarkdown = bundle.Markdown
	state.ReportJSON = bundle.JSON
	state.CurrentStep = StepCompleted

	return nil
}

// handleError writes the minimal error report. It must not fail; if even the
// reporter errors, the report is assembled by hand.
func (o *Orchestrator) handleError(_ context.Context, state *GraphState) {
	// Minimal report only: partial analysis results are never emitted as a
	// real report on error.
	input := agents.ReportInput{
		ScanID:        state.ScanID,
		Repository:    state.RepoURL,
		PRID:          state.PRID,
		ScanType:      state.Request.ScanType,
		Status:        scan.StatusError,
		ErrorMessage:  state.Error,
		AgentVersions: o.agents.Versions(),
		GeneratedAt:   o.now(),
	}

	bundle, err := o.agents.Reporter.Generate(input)
	if err != nil {
		o.log.Error("error report generation failed", "scan_id", state.ScanID, "error", err)

		state.ReportData = &scan.Report{
			ScanInfo: scan.Info{
				ScanID:        state.ScanID,
				Repository:    state.RepoURL,
				ScanType:      state.Request.ScanType,
				Timestamp:     scan.Timestamp(o.now()),
				ReportVersion: scan.ReportVersion,
			},
			Summary: scan.Summary{
				SeverityBreakdown: map[string]int{},
				CategoryBreakdown: map[string]int{},
				ScanStatus:        scan.StatusError,
				ErrorMessage:      state.Error,
			},
			Findings: []scan.Finding{},
			Diagrams: []scan.Diagram{},
		}
	} else {
		state.ReportData = bundle.Data
		state.ReportMarkdown = bundle.Markdown
		state.ReportJSON = bundle.JSON
	}

	state.CurrentStep = StepErrorHandled
}

func (o *Orchestrator) reportInput(state *GraphState, status scan.Status, errMsg string) agents.ReportInput {
	branch := state.Request.Branch
	if branch == "" {
		branch = state.Request.SourceBranch
	}

	filesAnalyzed := len(state.ProjectCode)
	if filesAnalyzed == 0 {
		filesAnalyzed = len(state.ChangedFiles())
	}

	return agents.ReportInput{
		ScanID:           state.ScanID,
		Repository:       state.RepoURL,
		PRID:             state.PRID,
		Branch:           branch,
		ScanType:         state.Request.ScanType,
		Status:           status,
		ErrorMessage:     errMsg,
		Findings:         state.StaticFindings,
		Insights:         state.LLMInsights,
		Diagrams:         state.Diagrams,
		ProjectScan:      state.ProjectScanResult,
		Impacts:          state.ImpactResult,
		AgentVersions:    o.agents.Versions(),
		GeneratedAt:      o.now(),
		FilesAnalyzed:    filesAnalyzed,
		SuccessfulParses: len(state.ParsedASTs),
	}
}
