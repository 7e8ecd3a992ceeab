// Package scan defines the request, finding, and report types shared by the
// review workflow, job queue, and service surfaces.
package scan

import "time"

// Type identifies what kind of review a request asks for.
type Type string

const (
	// TypePR reviews a pull-request diff.
	TypePR Type = "pr"
	// TypeProject reviews a full repository snapshot.
	TypeProject Type = "project"
)

// Request describes one review to perform.
type Request struct {
	RepoURL      string         `json:"repo_url"`
	ScanType     Type           `json:"scan_type"`
	PRID         int            `json:"pr_id,omitempty"`
	SourceBranch string         `json:"source_branch,omitempty"`
	TargetBranch string         `json:"target_branch,omitempty"`
	Branch       string         `json:"branch,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
}

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
	SeverityUnknown Severity = "UNKNOWN"
)

// Finding is one structured issue produced by the static analyzer.
type Finding struct {
	RuleID     string   `json:"rule_id"`
	Message    string   `json:"message"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Column     int      `json:"column"`
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Status is the lifecycle state reported in a summary.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// ReportVersion is written into every scan_info block.
const ReportVersion = "1.0"

// Info identifies the scan a report belongs to.
type Info struct {
	ScanID        string `json:"scan_id"`
	Repository    string `json:"repository"`
	PRID          int    `json:"pr_id,omitempty"`
	Branch        string `json:"branch,omitempty"`
	ScanType      Type   `json:"scan_type"`
	Timestamp     string `json:"timestamp"`
	ReportVersion string `json:"report_version"`
}

// Summary aggregates findings counts and terminal status.
type Summary struct {
	TotalFindings     int            `json:"total_findings"`
	SeverityBreakdown map[string]int `json:"severity_breakdown"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
	ScanStatus        Status         `json:"scan_status"`
	HasLLMAnalysis    bool           `json:"has_llm_analysis"`
	ErrorMessage      string         `json:"error_message,omitempty"`
}

// LLMReview carries the free-form model insights section of a report.
type LLMReview struct {
	Insights   string            `json:"insights"`
	HasContent bool              `json:"has_content"`
	Sections   map[string]string `json:"sections,omitempty"`
}

// Diagram is one rendered diagram attached to a report.
type Diagram struct {
	Type        string `json:"type"`
	Format      string `json:"format"`
	Content     string `json:"content"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// ReportMetadata records provenance for a generated report.
type ReportMetadata struct {
	AgentVersions      map[string]string `json:"agent_versions"`
	GenerationTime     string            `json:"generation_time"`
	TotalFilesAnalyzed int               `json:"total_files_analyzed"`
	SuccessfulParses   int               `json:"successful_parses"`
	Error              string            `json:"error,omitempty"`
}

// Report is the structured result of one scan.
type Report struct {
	ScanInfo  Info           `json:"scan_info"`
	Summary   Summary        `json:"summary"`
	Findings  []Finding      `json:"static_analysis_findings"`
	LLMReview LLMReview      `json:"llm_review"`
	Diagrams  []Diagram      `json:"diagrams"`
	Metadata  ReportMetadata `json:"metadata"`
}

// SeverityBreakdown counts findings per severity. Every severity present in
// the input appears as a key; the counts always sum to len(findings).
func SeverityBreakdown(findings []Finding) map[string]int {
	breakdown := make(map[string]int, len(findings))

	for _, f := range findings {
		sev := f.Severity
		if sev == "" {
			sev = SeverityUnknown
		}

		breakdown[string(sev)]++
	}

	return breakdown
}

// CategoryBreakdown counts findings per category, defaulting empty categories
// to "general" so the counts still sum to len(findings).
func CategoryBreakdown(findings []Finding) map[string]int {
	breakdown := make(map[string]int, len(findings))

	for _, f := range findings {
		cat := f.Category
		if cat == "" {
			cat = "general"
		}

		breakdown[cat]++
	}

	return breakdown
}

// Timestamp formats t the way all report fields expect (RFC 3339, UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
