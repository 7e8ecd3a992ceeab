package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/reviewd/internal/risk"
	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

func TestScanProjectAggregatesAndAssesses(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"app/main.py": pythonSource,
		"app/util.py": "def helper():\n    return 1\n",
		"README.md":   "# readme\n",
	}

	scanner := NewMetricsScanner()

	result, err := scanner.ScanProject(context.Background(), files, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ComplexityMetrics.TotalFiles)
	assert.Len(t, result.FileMetrics, 3)
	assert.Contains(t, result.ComplexityMetrics.Languages, "Python")
	assert.Contains(t, result.ArchitecturalAnalysis, "app (2 files)")
	assert.NotEmpty(t, result.RiskAssessment.RiskLevel)
	assert.Equal(t, result.RiskAssessment.Recommendations, result.Recommendations)
}

func TestScanProjectDeterministic(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"a.py": pythonSource,
		"b.py": "import a\n\ndef run():\n    pass\n",
	}

	findings := []scan.Finding{{RuleID: RuleTodoComment, Severity: scan.SeverityInfo, Category: "maintainability"}}

	scanner := NewMetricsScanner()

	first, err := scanner.ScanProject(context.Background(), files, findings)
	require.NoError(t, err)

	second, err := scanner.ScanProject(context.Background(), files, findings)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestScanProjectEmpty(t *testing.T) {
	t.Parallel()

	scanner := NewMetricsScanner()

	result, err := scanner.ScanProject(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ComplexityMetrics.TotalFiles)
	assert.Equal(t, risk.LevelMinimal, result.RiskAssessment.RiskLevel)
	assert.Equal(t, "empty project", result.ArchitecturalAnalysis)
}

func TestOfflineInsightsMentionsChangedFilesAndRules(t *testing.T) {
	t.Parallel()

	client := NewOfflineInsights()

	findings := []scan.Finding{
		{RuleID: RulePrintStatement, Severity: scan.SeverityWarning},
		{RuleID: RulePrintStatement, Severity: scan.SeverityWarning},
		{RuleID: RulePdbTrace, Severity: scan.SeverityError},
	}

	insights, err := client.AnalyzePRDiff(context.Background(), sampleDiff, findings)
	require.NoError(t, err)

	assert.Contains(t, insights, "## Change Overview")
	assert.Contains(t, insights, "app/main.py")
	assert.Contains(t, insights, "PRINT_STATEMENT_FOUND: 2 occurrence(s)")

	insights, err = client.AnalyzeCode(context.Background(), map[string]string{"a.py": "x = 1\n"}, nil)
	require.NoError(t, err)

	assert.Contains(t, insights, "## Code Overview")
	assert.Contains(t, insights, "No static findings to discuss")
}
