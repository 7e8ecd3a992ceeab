// Package agents defines the contracts the workflow orchestrator speaks to
// its analysis steps through, plus the default implementations used when no
// custom bundle is injected. Implementations may use concurrency internally
// but appear to the orchestrator as plain synchronous calls.
package agents

import (
	"context"
	"errors"
	"time"

	"github.com/Sumatoshi-tech/reviewd/internal/risk"
	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// Sentinel errors shared by agent implementations.
var (
	// ErrFetch indicates clone/pull/diff/file listing failed.
	ErrFetch = errors.New("fetch failed")
	// ErrNoPRSource indicates a PR diff was requested without a usable source.
	ErrNoPRSource = errors.New("no PR diff source available")
	// ErrEmptyParseInput indicates the parser was invoked with nothing to parse.
	ErrEmptyParseInput = errors.New("nothing to parse")
)

// ParsedKind distinguishes real file parses from the synthetic diff entry.
type ParsedKind string

const (
	// KindFile is a structural parse of one source file.
	KindFile ParsedKind = "file"
	// KindDiff is the synthetic diff_summary entry produced when only a
	// unified diff is available.
	KindDiff ParsedKind = "diff"
)

// DiffSummaryPath is the synthetic map key used for diff-only parse results.
const DiffSummaryPath = "diff_summary"

// StructuralSummary is the per-file structure record parsers produce.
type StructuralSummary struct {
	Classes   []string `json:"classes"`
	Functions []string `json:"functions"`
	Imports   []string `json:"imports"`
}

// ParsedFile couples an opaque tree handle with its structural summary. The
// static analyzer also receives the source text through it.
type ParsedFile struct {
	Path     string            `json:"path"`
	Kind     ParsedKind        `json:"kind"`
	Language string            `json:"language"`
	Summary  StructuralSummary `json:"summary"`
	Source   string            `json:"-"`
	Note     string            `json:"note,omitempty"`
}

// ImpactLevel distinguishes directly changed entities from ripple effects.
type ImpactLevel string

const (
	ImpactDirect   ImpactLevel = "DIRECT"
	ImpactIndirect ImpactLevel = "INDIRECT"
)

// ImpactedEntity is one entity reached by impact propagation.
type ImpactedEntity struct {
	Name            string      `json:"name"`
	Kind            string      `json:"kind"`
	Level           ImpactLevel `json:"level"`
	PropagationPath []string    `json:"propagation_path"`
}

// ProjectScanResult is the structured output of a project-wide scan.
type ProjectScanResult struct {
	ComplexityMetrics     risk.CodeMetrics      `json:"complexity_metrics"`
	FileMetrics           []risk.FileMetrics    `json:"file_metrics"`
	RiskAssessment        risk.Assessment       `json:"risk_assessment"`
	Recommendations       []risk.Recommendation `json:"recommendations"`
	ArchitecturalAnalysis string                `json:"architectural_analysis"`
}

// ReportInput is everything the reporter needs to produce a report. All
// fields, including the generation timestamp, come from the caller so report
// generation stays pure.
type ReportInput struct {
	ScanID           string
	Repository       string
	PRID             int
	Branch           string
	ScanType         scan.Type
	Status           scan.Status
	ErrorMessage     string
	Findings         []scan.Finding
	Insights         string
	Diagrams         []scan.Diagram
	ProjectScan      *ProjectScanResult
	Impacts          []ImpactedEntity
	AgentVersions    map[string]string
	GeneratedAt      time.Time
	FilesAnalyzed    int
	SuccessfulParses int
}

// ReportBundle is the reporter's output in all three shapes.
type ReportBundle struct {
	Data     *scan.Report
	Markdown string
	JSON     string
}

// CodeFetcher obtains review inputs: a PR diff or a project snapshot.
type CodeFetcher interface {
	// GetPRDiff returns the unified diff for a pull request.
	GetPRDiff(ctx context.Context, repoURL string, prID int, targetBranch, sourceBranch string) (string, error)

	// GetProjectFiles returns path->source for a branch snapshot.
	GetProjectFiles(ctx context.Context, repoURL, branch string) (map[string]string, error)

	// ChangedFilesFromDiff lists the files touched by a unified diff, in
	// order of first appearance.
	ChangedFilesFromDiff(diff string) []string
}

// ASTParser produces structural summaries. Binary and unsupported files are
// skipped (absent from the result), never fatal for the batch.
type ASTParser interface {
	Parse(ctx context.Context, files map[string]string) (map[string]ParsedFile, error)
}

// StaticAnalyzer inspects parse results and emits findings. An empty list is
// a valid result; rule IDs must be stable strings.
type StaticAnalyzer interface {
	Analyze(ctx context.Context, parsed map[string]ParsedFile) ([]scan.Finding, error)
}

// LLMClient produces free-form insight text. An empty return means "no LLM
// analysis" to the orchestrator.
type LLMClient interface {
	AnalyzePRDiff(ctx context.Context, diff string, findings []scan.Finding) (string, error)
	AnalyzeCode(ctx context.Context, files map[string]string, findings []scan.Finding) (string, error)
}

// ProjectScanner runs the project-wide metric and risk pass.
type ProjectScanner interface {
	ScanProject(ctx context.Context, files map[string]string, findings []scan.Finding) (*ProjectScanResult, error)
}

// ImpactAnalyzer propagates change impact over a dependency graph.
type ImpactAnalyzer interface {
	Analyze(ctx context.Context, diff string, graph DependencyGraph, changedFiles []string) ([]ImpactedEntity, error)
}

// DiagramRenderer produces report diagrams from accumulated results.
type DiagramRenderer interface {
	Render(ctx context.Context, input ReportInput, parsed map[string]ParsedFile) ([]scan.Diagram, error)
}

// Reporter assembles the final report. Must be callable with empty inputs
// without failing, and must be pure for fixed input.
type Reporter interface {
	Generate(input ReportInput) (*ReportBundle, error)
}

// Bundle is the set of agent implementations the orchestrator is constructed
// with. Every field must be non-nil.
type Bundle struct {
	Fetcher    CodeFetcher
	Parser     ASTParser
	Static     StaticAnalyzer
	LLM        LLMClient
	Scanner    ProjectScanner
	Impact     ImpactAnalyzer
	Diagrammer DiagramRenderer
	Reporter   Reporter
}

// Versions reports the agent version tags recorded in report metadata.
func (b Bundle) Versions() map[string]string {
	return map[string]string{
		"fetcher":    versionOf(b.Fetcher),
		"parser":     versionOf(b.Parser),
		"static":     versionOf(b.Static),
		"llm":        versionOf(b.LLM),
		"scanner":    versionOf(b.Scanner),
		"impact":     versionOf(b.Impact),
		"diagrammer": versionOf(b.Diagrammer),
		"reporter":   versionOf(b.Reporter),
	}
}

// versioned lets agents report their own version tag.
type versioned interface {
	Version() string
}

func versionOf(agent any) string {
	if v, ok := agent.(versioned); ok {
		return v.Version()
	}

	return "unversioned"
}
