package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/reviewd/internal/agents"
	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

const prDiff = `diff --git a/src/m.py b/src/m.py
--- a/src/m.py
+++ b/src/m.py
@@ -1,2 +1,4 @@
 import os
+print("checkpoint")
+pdb.set_trace()
`

const debugSource = "import os\nprint(\"checkpoint\")\npdb.set_trace()\n"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// realBundle wires the default agents behind a scripted fetcher so tests
// exercise the genuine parse/analyze/report pipeline without network access.
func realBundle(fetcher agents.CodeFetcher) agents.Bundle {
	return agents.Bundle{
		Fetcher:    fetcher,
		Parser:     agents.NewStructuralParser(),
		Static:     agents.NewRuleAnalyzer(),
		LLM:        agents.NewOfflineInsights(),
		Scanner:    agents.NewMetricsScanner(),
		Impact:     agents.NewGraphImpactAnalyzer(),
		Diagrammer: agents.NewEchartsDiagrammer(),
		Reporter:   agents.NewMarkdownReporter(),
	}
}

func TestRunPRScanHappyPath(t *testing.T) {
	t.Parallel()

	fetcher := &agents.MockFetcher{
		PRDiffFn: func(_ context.Context, _ string, _ int, _, _ string) (string, error) {
			return prDiff, nil
		},
	}

	orch := New(realBundle(fetcher), testLogger())

	req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypePR, PRID: 42}

	state := orch.Run(context.Background(), req, "scan-1")

	require.Equal(t, StepCompleted, state.CurrentStep)
	require.NotNil(t, state.ReportData)

	rules := make(map[string]bool)
	for _, f := range state.StaticFindings {
		rules[f.RuleID] = true
	}

	assert.True(t, rules[agents.RulePrintStatement])
	assert.True(t, rules[agents.RulePdbTrace])

	assert.Equal(t, 2, state.ReportData.Summary.TotalFindings)
	assert.Equal(t, scan.StatusCompleted, state.ReportData.Summary.ScanStatus)
	assert.True(t, state.ReportData.LLMReview.HasContent)
	assert.Contains(t, state.ReportMarkdown, "Code Review Report")
	assert.Empty(t, state.Error)
	assert.False(t, state.FallbackMode())
}

func TestRunPRFallsBackToProjectScan(t *testing.T) {
	t.Parallel()

	fetcher := &agents.MockFetcher{
		PRDiffFn: func(_ context.Context, _ string, _ int, _, _ string) (string, error) {
			return "", errors.New("api unavailable")
		},
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			return map[string]string{"src/main.py": debugSource}, nil
		},
	}

	orch := New(realBundle(fetcher), testLogger())

	req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypePR, PRID: 42}

	state := orch.Run(context.Background(), req, "scan-2")

	require.Equal(t, StepCompleted, state.CurrentStep)

	assert.True(t, state.FallbackMode())
	assert.NotEmpty(t, state.ProjectCode)

	rules := make(map[string]bool)
	for _, f := range state.StaticFindings {
		rules[f.RuleID] = true
	}

	assert.True(t, rules[agents.RulePrintStatement])
	assert.True(t, rules[agents.RulePdbTrace])
}

func TestRunProjectScanBypassesLLM(t *testing.T) {
	t.Parallel()

	fetcher := &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			return map[string]string{
				"src/app.py":  "import util\n\ndef run():\n    pass\n",
				"src/util.py": "def helper():\n    return 1\n",
				"README.md":   "# readme\n",
			}, nil
		},
	}

	llmCalled := false

	bundle := realBundle(fetcher)
	bundle.LLM = &agents.MockLLM{
		CodeFn: func(_ context.Context, _ map[string]string, _ []scan.Finding) (string, error) {
			llmCalled = true

			return "unexpected", nil
		},
	}

	orch := New(bundle, testLogger())

	req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}

	state := orch.Run(context.Background(), req, "scan-3")

	require.Equal(t, StepCompleted, state.CurrentStep)
	require.NotNil(t, state.ProjectScanResult)

	assert.True(t, state.ProjectScanCompleted())
	assert.False(t, llmCalled)
	assert.Equal(t, scan.TypeProject, state.ReportData.ScanInfo.ScanType)
	assert.False(t, state.ReportData.LLMReview.HasContent)
}

func TestRunEmptyRepoURL(t *testing.T) {
	t.Parallel()

	orch := New(agents.MockBundle(), testLogger())

	state := orch.Run(context.Background(), scan.Request{ScanType: scan.TypeProject}, "scan-4")

	require.Equal(t, StepErrorHandled, state.CurrentStep)
	require.NotNil(t, state.ReportData)

	assert.Equal(t, scan.StatusError, state.ReportData.Summary.ScanStatus)
	assert.Contains(t, state.ReportData.Summary.ErrorMessage, "Repository URL")
	assert.Contains(t, state.Error, "stage start_scan")
}

func TestRunDiffOnlyParseFallsBackToSummaryEntry(t *testing.T) {
	t.Parallel()

	// A diff whose added lines parse to nothing still yields the synthetic
	// entry, and static analysis runs over it without error.
	diff := "diff --git a/notes.txt b/notes.txt\n--- a/notes.txt\n+++ b/notes.txt\n@@ -1 +1,2 @@\n+plain prose\n"

	fetcher := &agents.MockFetcher{
		PRDiffFn: func(_ context.Context, _ string, _ int, _, _ string) (string, error) {
			return diff, nil
		},
	}

	orch := New(realBundle(fetcher), testLogger())

	req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypePR, PRID: 7}

	state := orch.Run(context.Background(), req, "scan-5")

	require.Equal(t, StepCompleted, state.CurrentStep)
	require.Contains(t, state.ParsedASTs, agents.DiffSummaryPath)

	assert.Equal(t, agents.KindDiff, state.ParsedASTs[agents.DiffSummaryPath].Kind)
}

func TestRunFetchFailureEndsErrorHandled(t *testing.T) {
	t.Parallel()

	fetcher := &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			return nil, errors.New("authentication required")
		},
	}

	bundle := agents.MockBundle()
	bundle.Fetcher = fetcher

	orch := New(bundle, testLogger())

	req := scan.Request{RepoURL: "https://host/private/repo", ScanType: scan.TypeProject}

	state := orch.Run(context.Background(), req, "scan-6")

	require.Equal(t, StepErrorHandled, state.CurrentStep)

	assert.Contains(t, state.Error, "stage fetch_code")
	assert.Contains(t, state.Error, "authentication required")
	assert.Equal(t, scan.StatusError, state.ReportData.Summary.ScanStatus)
}

func TestRunContainsStagePanics(t *testing.T) {
	t.Parallel()

	bundle := agents.MockBundle()
	bundle.Fetcher = &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			panic("fetcher exploded")
		},
	}

	orch := New(bundle, testLogger())

	req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}

	state := orch.Run(context.Background(), req, "scan-7")

	require.Equal(t, StepErrorHandled, state.CurrentStep)

	assert.Contains(t, state.Error, "stage fetch_code")
	assert.Contains(t, state.Error, "fetcher exploded")
	assert.NotNil(t, state.ReportData)
}

func TestRunImpactFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	fetcher := &agents.MockFetcher{
		PRDiffFn: func(_ context.Context, _ string, _ int, _, _ string) (string, error) {
			return prDiff, nil
		},
	}

	bundle := realBundle(fetcher)
	bundle.Impact = &agents.MockImpact{
		AnalyzeFn: func(_ context.Context, _ string, _ agents.DependencyGraph, _ []string) ([]agents.ImpactedEntity, error) {
			return nil, errors.New("graph too large")
		},
	}

	orch := New(bundle, testLogger())

	req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypePR, PRID: 42}

	state := orch.Run(context.Background(), req, "scan-8")

	require.Equal(t, StepCompleted, state.CurrentStep)

	assert.Equal(t, "graph too large", state.Metadata[MetaImpactError])
	assert.Empty(t, state.ImpactResult)
}

func TestRunCancellationBetweenStages(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	fetcher := &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			// Cancel mid-scan; the running stage completes, the next
			// boundary observes the flag.
			cancel()

			return map[string]string{"a.py": "x = 1\n"}, nil
		},
	}

	bundle := agents.MockBundle()
	bundle.Fetcher = fetcher

	orch := New(bundle, testLogger())

	req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}

	state := orch.Run(ctx, req, "scan-9")

	assert.False(t, state.Terminal())
	assert.Nil(t, state.ReportData)
	assert.NotEmpty(t, state.ProjectCode)
}

func TestRunDeterministicTrajectory(t *testing.T) {
	t.Parallel()

	fetcher := &agents.MockFetcher{
		PRDiffFn: func(_ context.Context, _ string, _ int, _, _ string) (string, error) {
			return prDiff, nil
		},
	}

	run := func() []Step {
		var steps []Step

		orch := New(realBundle(fetcher), testLogger())

		req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypePR, PRID: 42}

		orch.RunObserved(context.Background(), req, "scan-10", func(step Step) {
			steps = append(steps, step)
		})

		return steps
	}

	first := run()
	second := run()

	require.Equal(t, first, second)

	assert.Equal(t, StepCompleted, first[len(first)-1])
}

func TestRunFallbackExclusivity(t *testing.T) {
	t.Parallel()

	// A project scan without a PR ID must never set fallback mode.
	fetcher := &agents.MockFetcher{
		ProjectFilesFn: func(_ context.Context, _, _ string) (map[string]string, error) {
			return map[string]string{"a.py": "x = 1\n"}, nil
		},
	}

	orch := New(realBundle(fetcher), testLogger())

	req := scan.Request{RepoURL: "https://host/a/b", ScanType: scan.TypeProject}

	state := orch.Run(context.Background(), req, "scan-11")

	require.Equal(t, StepCompleted, state.CurrentStep)

	assert.False(t, state.FallbackMode())
}
