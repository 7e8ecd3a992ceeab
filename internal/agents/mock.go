package agents

import (
	"context"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// Scriptable fakes for orchestrator and queue tests. Each method delegates to
// its function field when set and otherwise returns a benign zero result, so
// a test only scripts the agents it cares about.

// MockFetcher implements CodeFetcher.
type MockFetcher struct {
	PRDiffFn       func(ctx context.Context, repoURL string, prID int, targetBranch, sourceBranch string) (string, error)
	ProjectFilesFn func(ctx context.Context, repoURL, branch string) (map[string]string, error)
}

func (m *MockFetcher) GetPRDiff(ctx context.Context, repoURL string, prID int, targetBranch, sourceBranch string) (string, error) {
	if m.PRDiffFn != nil {
		return m.PRDiffFn(ctx, repoURL, prID, targetBranch, sourceBranch)
	}

	return "", nil
}

func (m *MockFetcher) GetProjectFiles(ctx context.Context, repoURL, branch string) (map[string]string, error) {
	if m.ProjectFilesFn != nil {
		return m.ProjectFilesFn(ctx, repoURL, branch)
	}

	return map[string]string{}, nil
}

func (m *MockFetcher) ChangedFilesFromDiff(diff string) []string {
	return ChangedFilesInDiff(diff)
}

// MockParser implements ASTParser.
type MockParser struct {
	ParseFn func(ctx context.Context, files map[string]string) (map[string]ParsedFile, error)
}

func (m *MockParser) Parse(ctx context.Context, files map[string]string) (map[string]ParsedFile, error) {
	if m.ParseFn != nil {
		return m.ParseFn(ctx, files)
	}

	return map[string]ParsedFile{}, nil
}

// MockStatic implements StaticAnalyzer.
type MockStatic struct {
	AnalyzeFn func(ctx context.Context, parsed map[string]ParsedFile) ([]scan.Finding, error)
}

func (m *MockStatic) Analyze(ctx context.Context, parsed map[string]ParsedFile) ([]scan.Finding, error) {
	if m.AnalyzeFn != nil {
		return m.AnalyzeFn(ctx, parsed)
	}

	return []scan.Finding{}, nil
}

// MockLLM implements LLMClient.
type MockLLM struct {
	PRDiffFn func(ctx context.Context, diff string, findings []scan.Finding) (string, error)
	CodeFn   func(ctx context.Context, files map[string]string, findings []scan.Finding) (string, error)
}

func (m *MockLLM) AnalyzePRDiff(ctx context.Context, diff string, findings []scan.Finding) (string, error) {
	if m.PRDiffFn != nil {
		return m.PRDiffFn(ctx, diff, findings)
	}

	return "", nil
}

func (m *MockLLM) AnalyzeCode(ctx context.Context, files map[string]string, findings []scan.Finding) (string, error) {
	if m.CodeFn != nil {
		return m.CodeFn(ctx, files, findings)
	}

	return "", nil
}

// MockScanner implements ProjectScanner.
type MockScanner struct {
	ScanFn func(ctx context.Context, files map[string]string, findings []scan.Finding) (*ProjectScanResult, error)
}

func (m *MockScanner) ScanProject(ctx context.Context, files map[string]string, findings []scan.Finding) (*ProjectScanResult, error) {
	if m.ScanFn != nil {
		return m.ScanFn(ctx, files, findings)
	}

	return &ProjectScanResult{}, nil
}

// MockImpact implements ImpactAnalyzer.
type MockImpact struct {
	AnalyzeFn func(ctx context.Context, diff string, graph DependencyGraph, changedFiles []string) ([]ImpactedEntity, error)
}

func (m *MockImpact) Analyze(ctx context.Context, diff string, graph DependencyGraph, changedFiles []string) ([]ImpactedEntity, error) {
	if m.AnalyzeFn != nil {
		return m.AnalyzeFn(ctx, diff, graph, changedFiles)
	}

	return nil, nil
}

// MockDiagrammer implements DiagramRenderer.
type MockDiagrammer struct {
	RenderFn func(ctx context.Context, input ReportInput, parsed map[string]ParsedFile) ([]scan.Diagram, error)
}

func (m *MockDiagrammer) Render(ctx context.Context, input ReportInput, parsed map[string]ParsedFile) ([]scan.Diagram, error) {
	if m.RenderFn != nil {
		return m.RenderFn(ctx, input, parsed)
	}

	return nil, nil
}

// MockBundle wires scriptable agents around the real reporter, which tests
// rely on for consistent summaries.
func MockBundle() Bundle {
	return Bundle{
		Fetcher:    &MockFetcher{},
		Parser:     &MockParser{},
		Static:     &MockStatic{},
		LLM:        &MockLLM{},
		Scanner:    &MockScanner{},
		Impact:     &MockImpact{},
		Diagrammer: &MockDiagrammer{},
		Reporter:   NewMarkdownReporter(),
	}
}
