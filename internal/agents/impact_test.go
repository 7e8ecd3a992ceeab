package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeTierParse() map[string]ParsedFile {
	return map[string]ParsedFile{
		"util.py": {Path: "util.py", Kind: KindFile, Language: "Python"},
		"app.py": {
			Path: "app.py", Kind: KindFile, Language: "Python",
			Summary: StructuralSummary{Imports: []string{"util"}},
		},
		"svc.py": {
			Path: "svc.py", Kind: KindFile, Language: "Python",
			Summary: StructuralSummary{Imports: []string{"app"}},
		},
	}
}

func TestBuildDependencyGraphReverseEdges(t *testing.T) {
	t.Parallel()

	graph := BuildDependencyGraph(threeTierParse())

	assert.Equal(t, []string{"app.py"}, graph["util.py"])
	assert.Equal(t, []string{"svc.py"}, graph["app.py"])
	assert.NotContains(t, graph, "svc.py")
}

func TestAnalyzePropagatesTransitively(t *testing.T) {
	t.Parallel()

	graph := BuildDependencyGraph(threeTierParse())

	analyzer := NewGraphImpactAnalyzer()

	impacts, err := analyzer.Analyze(context.Background(), "", graph, []string{"util.py"})
	require.NoError(t, err)
	require.Len(t, impacts, 3)

	byName := make(map[string]ImpactedEntity, len(impacts))
	for _, impact := range impacts {
		byName[impact.Name] = impact
	}

	assert.Equal(t, ImpactDirect, byName["util.py"].Level)
	assert.Equal(t, []string{"util.py"}, byName["util.py"].PropagationPath)

	assert.Equal(t, ImpactIndirect, byName["app.py"].Level)
	assert.Equal(t, []string{"util.py", "app.py"}, byName["app.py"].PropagationPath)

	assert.Equal(t, ImpactIndirect, byName["svc.py"].Level)
	assert.Equal(t, []string{"util.py", "app.py", "svc.py"}, byName["svc.py"].PropagationPath)
}

func TestAnalyzeDerivesChangedFilesFromDiff(t *testing.T) {
	t.Parallel()

	diff := `diff --git a/util.py b/util.py
--- a/util.py
+++ b/util.py
@@ -1 +1,2 @@
+flag = True
`

	graph := BuildDependencyGraph(threeTierParse())

	analyzer := NewGraphImpactAnalyzer()

	impacts, err := analyzer.Analyze(context.Background(), diff, graph, nil)
	require.NoError(t, err)
	require.Len(t, impacts, 3)

	assert.Equal(t, "util.py", impacts[0].Name)
	assert.Equal(t, ImpactDirect, impacts[0].Level)
}

func TestAnalyzeReportsEachEntityOnce(t *testing.T) {
	t.Parallel()

	// Diamond: both mid files depend on base, top depends on both mids.
	graph := DependencyGraph{
		"base.py": {"left.py", "right.py"},
		"left.py": {"top.py"},
		"right.py": {"top.py"},
	}

	analyzer := NewGraphImpactAnalyzer()

	impacts, err := analyzer.Analyze(context.Background(), "", graph, []string{"base.py"})
	require.NoError(t, err)
	require.Len(t, impacts, 4)

	seen := make(map[string]int)
	for _, impact := range impacts {
		seen[impact.Name]++
	}

	for name, count := range seen {
		assert.Equal(t, 1, count, name)
	}
}

func TestAnalyzeEmptyInputs(t *testing.T) {
	t.Parallel()

	analyzer := NewGraphImpactAnalyzer()

	impacts, err := analyzer.Analyze(context.Background(), "", nil, nil)
	require.NoError(t, err)

	assert.Empty(t, impacts)
}
