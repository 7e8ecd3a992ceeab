package agents

import (
	"context"
	"path"
	"slices"
	"sort"
	"strings"
)

// impactVersion is recorded in report metadata.
const impactVersion = "graph-impact/1.0"

// DependencyGraph maps a file to the files that depend on it. Impact flows
// along these edges, from a changed file toward its dependents.
type DependencyGraph map[string][]string

// BuildDependencyGraph derives reverse dependency edges from the parsed
// structural summaries, matching import names against file paths by module
// stem. The match is heuristic: the structural parser records import
// strings, not resolved targets.
func BuildDependencyGraph(parsed map[string]ParsedFile) DependencyGraph {
	// Index files by their module stem ("pkg/util.py" -> "util", "pkg.util").
	stems := make(map[string][]string)

	for filePath, entry := range parsed {
		if entry.Kind != KindFile {
			continue
		}

		base := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
		stems[base] = append(stems[base], filePath)

		dotted := strings.ReplaceAll(strings.TrimSuffix(filePath, path.Ext(filePath)), "/", ".")
		stems[dotted] = append(stems[dotted], filePath)
	}

	graph := make(DependencyGraph)

	for importer, entry := range parsed {
		for _, imp := range entry.Summary.Imports {
			key := strings.TrimSuffix(path.Base(imp), path.Ext(imp))

			targets := stems[imp]
			if len(targets) == 0 {
				targets = stems[key]
			}

			for _, target := range targets {
				if target == importer {
					continue
				}

				graph[target] = append(graph[target], importer)
			}
		}
	}

	// The stem index can resolve one import to the same file twice (base
	// and dotted stems coincide for top-level files), so dedupe edges.
	for node := range graph {
		sort.Strings(graph[node])

		graph[node] = slices.Compact(graph[node])
	}

	return graph
}

// GraphImpactAnalyzer is the default ImpactAnalyzer: breadth-first
// propagation from the changed files over the dependency graph. The visited
// set guarantees each entity is reported once, with the first (shortest)
// discovered propagation path.
type GraphImpactAnalyzer struct{}

// NewGraphImpactAnalyzer returns the default impact analyzer.
func NewGraphImpactAnalyzer() *GraphImpactAnalyzer {
	return &GraphImpactAnalyzer{}
}

// Version implements the versioned hook for report metadata.
func (g *GraphImpactAnalyzer) Version() string { return impactVersion }

// Analyze implements ImpactAnalyzer.
func (g *GraphImpactAnalyzer) Analyze(_ context.Context, diff string, graph DependencyGraph, changedFiles []string) ([]ImpactedEntity, error) {
	if len(changedFiles) == 0 {
		changedFiles = ChangedFilesInDiff(diff)
	}

	var impacts []ImpactedEntity

	visited := make(map[string]struct{}, len(changedFiles))

	type queued struct {
		name string
		path []string
	}

	queue := make([]queued, 0, len(changedFiles))

	for _, changed := range changedFiles {
		if _, seen := visited[changed]; seen {
			continue
		}

		visited[changed] = struct{}{}

		impacts = append(impacts, ImpactedEntity{
			Name:            changed,
			Kind:            "file",
			Level:           ImpactDirect,
			PropagationPath: []string{changed},
		})

		queue = append(queue, queued{name: changed, path: []string{changed}})
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, dependent := range graph[current.name] {
			if _, seen := visited[dependent]; seen {
				continue
			}

			visited[dependent] = struct{}{}

			propagation := append(append([]string{}, current.path...), dependent)

			impacts = append(impacts, ImpactedEntity{
				Name:            dependent,
				Kind:            "file",
				Level:           ImpactIndirect,
				PropagationPath: propagation,
			})

			queue = append(queue, queued{name: dependent, path: propagation})
		}
	}

	return impacts, nil
}
