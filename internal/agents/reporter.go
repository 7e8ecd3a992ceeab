package agents

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// reporterVersion is recorded in report metadata.
const reporterVersion = "markdown-reporter/1.0"

// reportTopFindings caps the per-severity finding listing in markdown output.
const reportTopFindings = 25

// MarkdownReporter is the default Reporter: it assembles the structured
// report, a canonical JSON rendering, and a human-readable markdown
// rendering. Pure for fixed input; callable with empty inputs.
type MarkdownReporter struct{}

// NewMarkdownReporter returns the default reporter.
func NewMarkdownReporter() *MarkdownReporter {
	return &MarkdownReporter{}
}

// Version implements the versioned hook for report metadata.
func (r *MarkdownReporter) Version() string { return reporterVersion }

// Generate implements Reporter.
func (r *MarkdownReporter) Generate(input ReportInput) (*ReportBundle, error) {
	report := buildReport(input)

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	return &ReportBundle{
		Data:     report,
		Markdown: renderMarkdown(report, input),
		JSON:     string(raw),
	}, nil
}

func buildReport(input ReportInput) *scan.Report {
	status := input.Status
	if status == "" {
		status = scan.StatusCompleted
	}

	findings := input.Findings
	if findings == nil {
		findings = []scan.Finding{}
	}

	diagrams := input.Diagrams
	if diagrams == nil {
		diagrams = []scan.Diagram{}
	}

	versions := input.AgentVersions
	if versions == nil {
		versions = map[string]string{}
	}

	return &scan.Report{
		ScanInfo: scan.Info{
			ScanID:        input.ScanID,
			Repository:    input.Repository,
			PRID:          input.PRID,
			Branch:        input.Branch,
			ScanType:      input.ScanType,
			Timestamp:     scan.Timestamp(input.GeneratedAt),
			ReportVersion: scan.ReportVersion,
		},
		Summary: scan.Summary{
			TotalFindings:     len(findings),
			SeverityBreakdown: scan.SeverityBreakdown(findings),
			CategoryBreakdown: scan.CategoryBreakdown(findings),
			ScanStatus:        status,
			HasLLMAnalysis:    input.Insights != "",
			ErrorMessage:      input.ErrorMessage,
		},
		Findings: findings,
		LLMReview: scan.LLMReview{
			Insights:   input.Insights,
			HasContent: input.Insights != "",
		},
		Diagrams: diagrams,
		Metadata: scan.ReportMetadata{
			AgentVersions:      versions,
			GenerationTime:     scan.Timestamp(input.GeneratedAt),
			TotalFilesAnalyzed: input.FilesAnalyzed,
			SuccessfulParses:   input.SuccessfulParses,
			Error:              input.ErrorMessage,
		},
	}
}

func renderMarkdown(report *scan.Report, input ReportInput) string {
	var b strings.Builder

	b.WriteString("# Code Review Report\n\n")

	fmt.Fprintf(&b, "**Repository:** %s\n", report.ScanInfo.Repository)

	if report.ScanInfo.PRID > 0 {
		fmt.Fprintf(&b, "**Pull Request:** #%d\n", report.ScanInfo.PRID)
	}

	if report.ScanInfo.Branch != "" {
		fmt.Fprintf(&b, "**Branch:** %s\n", report.ScanInfo.Branch)
	}

	fmt.Fprintf(&b, "**Scan Type:** %s\n", report.ScanInfo.ScanType)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", report.ScanInfo.Timestamp)

	writeSummarySection(&b, report.Summary)
	writeFindingsTable(&b, report.Findings)

	if report.LLMReview.HasContent {
		b.WriteString("## Review Insights\n\n")
		b.WriteString(strings.TrimRight(report.LLMReview.Insights, "\n"))
		b.WriteString("\n\n")
	}

	if input.ProjectScan != nil {
		writeProjectSection(&b, input.ProjectScan)
	}

	if len(input.Impacts) > 0 {
		writeImpactSection(&b, input.Impacts)
	}

	for _, diagram := range report.Diagrams {
		writeDiagramSection(&b, diagram)
	}

	return b.String()
}

func writeSummarySection(b *strings.Builder, summary scan.Summary) {
	b.WriteString("## Summary\n\n")

	fmt.Fprintf(b, "- Status: %s\n", summary.ScanStatus)
	fmt.Fprintf(b, "- Total findings: %d\n", summary.TotalFindings)

	if summary.ErrorMessage != "" {
		fmt.Fprintf(b, "- Error: %s\n", summary.ErrorMessage)
	}

	severities := make([]string, 0, len(summary.SeverityBreakdown))
	for severity := range summary.SeverityBreakdown {
		severities = append(severities, severity)
	}

	sort.Strings(severities)

	for _, severity := range severities {
		fmt.Fprintf(b, "- %s: %d\n", severity, summary.SeverityBreakdown[severity])
	}

	b.WriteString("\n")
}

func writeFindingsTable(b *strings.Builder, findings []scan.Finding) {
	if len(findings) == 0 {
		return
	}

	b.WriteString("## Findings\n\n")
	b.WriteString("| Severity | Rule | Location | Message |\n")
	b.WriteString("|----------|------|----------|--------|\n")

	shown := 0

	for _, f := range findings {
		if shown == reportTopFindings {
			fmt.Fprintf(b, "\n%d more finding(s) omitted.\n", len(findings)-shown)

			break
		}

		fmt.Fprintf(b, "| %s | %s | %s:%d | %s |\n", f.Severity, f.RuleID, f.File, f.Line, f.Message)

		shown++
	}

	b.WriteString("\n")
}

func writeProjectSection(b *strings.Builder, projectScan *ProjectScanResult) {
	assessment := projectScan.RiskAssessment

	b.WriteString("## Project Risk\n\n")

	fmt.Fprintf(b, "- Overall score: %.1f (%s)\n", assessment.OverallScore, assessment.RiskLevel)
	fmt.Fprintf(b, "- Files analyzed: %d\n", projectScan.ComplexityMetrics.TotalFiles)
	fmt.Fprintf(b, "- Total lines: %d\n", projectScan.ComplexityMetrics.TotalLines)

	for _, factor := range assessment.RiskFactors {
		fmt.Fprintf(b, "- Risk factor: %s\n", factor)
	}

	b.WriteString("\n")

	if len(projectScan.Recommendations) > 0 {
		b.WriteString("### Recommendations\n\n")

		for _, rec := range projectScan.Recommendations {
			fmt.Fprintf(b, "- [%s] %s: %s\n", rec.Priority, rec.Category, rec.Recommendation)
		}

		b.WriteString("\n")
	}

	if projectScan.ArchitecturalAnalysis != "" {
		fmt.Fprintf(b, "### Architecture\n\n%s\n\n", projectScan.ArchitecturalAnalysis)
	}
}

func writeImpactSection(b *strings.Builder, impacts []ImpactedEntity) {
	b.WriteString("## Change Impact\n\n")

	for _, impact := range impacts {
		fmt.Fprintf(b, "- %s (%s): %s\n", impact.Name, impact.Level, strings.Join(impact.PropagationPath, " -> "))
	}

	b.WriteString("\n")
}

func writeDiagramSection(b *strings.Builder, diagram scan.Diagram) {
	title := diagram.Title
	if title == "" {
		title = diagram.Type
	}

	fmt.Fprintf(b, "## %s\n\n", title)

	if diagram.Format == "mermaid" {
		fmt.Fprintf(b, "```mermaid\n%s```\n\n", diagram.Content)

		return
	}

	if diagram.Description != "" {
		fmt.Fprintf(b, "%s (rendered as %s).\n\n", diagram.Description, diagram.Format)

		return
	}

	fmt.Fprintf(b, "Rendered as %s.\n\n", diagram.Format)
}
