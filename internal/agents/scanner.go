package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/reviewd/internal/risk"
	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// scannerVersion is recorded in report metadata.
const scannerVersion = "metrics-scanner/1.0"

// archTopDirs caps how many directories the architectural summary names.
const archTopDirs = 8

// MetricsScanner is the default ProjectScanner: fallback per-file metrics,
// aggregation, risk assessment, and a directory/language architectural
// summary.
type MetricsScanner struct {
	weights risk.Weights
}

// NewMetricsScanner returns the default project scanner with standard
// risk weights.
func NewMetricsScanner() *MetricsScanner {
	return &MetricsScanner{weights: risk.DefaultWeights()}
}

// Version implements the versioned hook for report metadata.
func (s *MetricsScanner) Version() string { return scannerVersion }

// ScanProject implements ProjectScanner. Deterministic for fixed input.
func (s *MetricsScanner) ScanProject(_ context.Context, files map[string]string, findings []scan.Finding) (*ProjectScanResult, error) {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	fileMetrics := make([]risk.FileMetrics, 0, len(paths))
	for _, path := range paths {
		fileMetrics = append(fileMetrics, risk.ComputeFileMetrics(path, files[path]))
	}

	aggregate := risk.Aggregate(fileMetrics)
	architecture := architecturalSummary(paths, aggregate)
	assessment := risk.Assess(aggregate, findings, architecture, s.weights)

	return &ProjectScanResult{
		ComplexityMetrics:     aggregate,
		FileMetrics:           fileMetrics,
		RiskAssessment:        assessment,
		Recommendations:       assessment.Recommendations,
		ArchitecturalAnalysis: architecture,
	}, nil
}

// architecturalSummary renders a terse directory and language breakdown.
func architecturalSummary(sortedPaths []string, aggregate risk.CodeMetrics) string {
	if len(sortedPaths) == 0 {
		return "empty project"
	}

	dirCounts := make(map[string]int)

	for _, path := range sortedPaths {
		dir := "."

		if idx := strings.Index(path, "/"); idx > 0 {
			dir = path[:idx]
		}

		dirCounts[dir]++
	}

	dirs := make([]string, 0, len(dirCounts))
	for dir := range dirCounts {
		dirs = append(dirs, dir)
	}

	sort.Slice(dirs, func(i, j int) bool {
		if dirCounts[dirs[i]] == dirCounts[dirs[j]] {
			return dirs[i] < dirs[j]
		}

		return dirCounts[dirs[i]] > dirCounts[dirs[j]]
	})

	if len(dirs) > archTopDirs {
		dirs = dirs[:archTopDirs]
	}

	parts := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		parts = append(parts, fmt.Sprintf("%s (%d files)", dir, dirCounts[dir]))
	}

	languages := make([]string, 0, len(aggregate.Languages))
	for lang := range aggregate.Languages {
		languages = append(languages, lang)
	}

	sort.Strings(languages)

	return fmt.Sprintf("Top-level layout: %s. Languages: %s. %d files, %d lines total.",
		strings.Join(parts, ", "),
		strings.Join(languages, ", "),
		aggregate.TotalFiles,
		aggregate.TotalLines)
}
