package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

func reportFixture() ReportInput {
	return ReportInput{
		ScanID:     "scan-01ARZ3",
		Repository: "https://github.com/acme/api",
		PRID:       42,
		ScanType:   scan.TypePR,
		Status:     scan.StatusCompleted,
		Findings: []scan.Finding{
			{RuleID: RulePdbTrace, Message: "debugger breakpoint left in code", File: "a.py", Line: 3, Severity: scan.SeverityError, Category: "debugging"},
			{RuleID: RulePrintStatement, Message: "print call left in code", File: "a.py", Line: 5, Severity: scan.SeverityWarning, Category: "style"},
			{RuleID: RuleTodoComment, Message: "TODO/FIXME comment", File: "b.py", Line: 9, Severity: scan.SeverityInfo, Category: "maintainability"},
			{RuleID: "CUSTOM", Message: "unclassified", File: "c.py", Line: 1},
		},
		Insights:         "## Change Overview\n\nSmall diff.\n",
		AgentVersions:    map[string]string{"static": staticVersion},
		GeneratedAt:      time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		FilesAnalyzed:    3,
		SuccessfulParses: 3,
	}
}

func TestGenerateSummaryConsistency(t *testing.T) {
	t.Parallel()

	reporter := NewMarkdownReporter()

	bundle, err := reporter.Generate(reportFixture())
	require.NoError(t, err)

	summary := bundle.Data.Summary

	assert.Equal(t, 4, summary.TotalFindings)

	severitySum := 0
	for _, count := range summary.SeverityBreakdown {
		severitySum += count
	}

	categorySum := 0
	for _, count := range summary.CategoryBreakdown {
		categorySum += count
	}

	assert.Equal(t, summary.TotalFindings, severitySum)
	assert.Equal(t, summary.TotalFindings, categorySum)

	assert.Equal(t, 1, summary.SeverityBreakdown[string(scan.SeverityUnknown)])
	assert.Equal(t, 1, summary.CategoryBreakdown["general"])
	assert.True(t, summary.HasLLMAnalysis)
}

func TestGenerateMarkdownSections(t *testing.T) {
	t.Parallel()

	reporter := NewMarkdownReporter()

	bundle, err := reporter.Generate(reportFixture())
	require.NoError(t, err)

	assert.Contains(t, bundle.Markdown, "# Code Review Report")
	assert.Contains(t, bundle.Markdown, "**Pull Request:** #42")
	assert.Contains(t, bundle.Markdown, "## Findings")
	assert.Contains(t, bundle.Markdown, "PDB_TRACE_FOUND")
	assert.Contains(t, bundle.Markdown, "## Review Insights")
}

func TestGeneratePure(t *testing.T) {
	t.Parallel()

	reporter := NewMarkdownReporter()

	first, err := reporter.Generate(reportFixture())
	require.NoError(t, err)

	second, err := reporter.Generate(reportFixture())
	require.NoError(t, err)

	assert.Equal(t, first.JSON, second.JSON)
	assert.Equal(t, first.Markdown, second.Markdown)
}

func TestGenerateEmptyInput(t *testing.T) {
	t.Parallel()

	reporter := NewMarkdownReporter()

	bundle, err := reporter.Generate(ReportInput{})
	require.NoError(t, err)

	assert.Equal(t, 0, bundle.Data.Summary.TotalFindings)
	assert.Equal(t, scan.StatusCompleted, bundle.Data.Summary.ScanStatus)
	assert.NotNil(t, bundle.Data.Findings)
	assert.False(t, bundle.Data.LLMReview.HasContent)
	assert.Contains(t, bundle.Markdown, "# Code Review Report")
	assert.Equal(t, scan.ReportVersion, bundle.Data.ScanInfo.ReportVersion)
}

func TestGenerateErrorReport(t *testing.T) {
	t.Parallel()

	reporter := NewMarkdownReporter()

	bundle, err := reporter.Generate(ReportInput{
		ScanID:       "scan-err",
		Status:       scan.StatusError,
		ErrorMessage: "stage fetch_code: fetch failed",
		GeneratedAt:  time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, scan.StatusError, bundle.Data.Summary.ScanStatus)
	assert.Equal(t, "stage fetch_code: fetch failed", bundle.Data.Summary.ErrorMessage)
	assert.Contains(t, bundle.Markdown, "stage fetch_code: fetch failed")
}
