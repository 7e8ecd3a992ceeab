// Package risk turns per-file metrics and static findings into a bounded
// composite risk assessment. Everything in this package is pure: no I/O, no
// clocks, deterministic output for identical input.
package risk

import (
	"strings"

	"github.com/src-d/enry/v2"
)

// largeFileLines is the threshold above which a file counts as "large".
const largeFileLines = 500

// highComplexityThreshold marks a function (file, in fallback mode) as
// high-complexity when its cyclomatic score exceeds it.
const highComplexityThreshold = 10

// lowMaintainabilityThreshold marks a file as low-maintainability when its
// index falls below it.
const lowMaintainabilityThreshold = 20

// maintainabilityCeiling is the maximum maintainability index.
const maintainabilityCeiling = 100.0

// commentBonusFactor scales the comment ratio contribution to the fallback
// maintainability index.
const commentBonusFactor = 20.0

// logicalLinesDivisor scales logical lines in the fallback maintainability
// formula.
const logicalLinesDivisor = 10.0

// branchKeywords are the whole tokens the fallback cyclomatic computation
// counts, seeded at complexity 1.
var branchKeywords = map[string]struct{}{
	"if": {}, "elif": {}, "for": {}, "while": {}, "except": {}, "and": {}, "or": {},
}

// FileMetrics are the per-file signals feeding the aggregate.
type FileMetrics struct {
	Path                 string  `json:"path"`
	Language             string  `json:"language"`
	LinesOfCode          int     `json:"lines_of_code"`
	BlankLines           int     `json:"blank_lines"`
	CommentLines         int     `json:"comment_lines"`
	LogicalLines         int     `json:"logical_lines"`
	CyclomaticComplexity int     `json:"cyclomatic_complexity"`
	MaintainabilityIndex float64 `json:"maintainability_index"`
}

// CodeMetrics is the aggregate over all analyzed files.
type CodeMetrics struct {
	TotalFiles              int            `json:"total_files"`
	TotalLines              int            `json:"total_lines"`
	AvgComplexity           float64        `json:"avg_complexity"`
	MaxComplexity           float64        `json:"max_complexity"`
	HighComplexityFuncs     int            `json:"high_complexity_functions"`
	AvgMaintainability      float64        `json:"avg_maintainability"`
	LowMaintainabilityFiles int            `json:"low_maintainability_files"`
	AvgFileSize             float64        `json:"avg_file_size"`
	LargeFiles              int            `json:"large_files"`
	Languages               map[string]int `json:"languages"`
}

// ComputeFileMetrics derives fallback metrics for one file: line classes,
// token-counted cyclomatic complexity for recognized source languages, and
// the fallback maintainability index.
func ComputeFileMetrics(path, content string) FileMetrics {
	m := FileMetrics{Path: path}

	m.Language = enry.GetLanguage(path, []byte(content))

	lines := strings.Split(content, "\n")
	if content == "" {
		lines = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			m.BlankLines++
		case strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//"):
			m.CommentLines++
		default:
			m.LogicalLines++
		}
	}

	m.LinesOfCode = len(lines)

	if isSourceLanguage(m.Language) {
		m.CyclomaticComplexity = fallbackCyclomatic(content)
	}

	m.MaintainabilityIndex = fallbackMaintainability(m.LogicalLines, m.CommentLines)

	return m
}

// isSourceLanguage reports whether the language is a programming language
// (as opposed to markup, data, or prose) per enry's classification.
func isSourceLanguage(language string) bool {
	if language == "" {
		return false
	}

	return enry.GetLanguageType(language) == enry.Programming
}

// fallbackCyclomatic is 1 plus the whole-token occurrences of the branching
// keywords.
func fallbackCyclomatic(content string) int {
	complexity := 1

	for token := range tokenize(content) {
		if _, ok := branchKeywords[token]; ok {
			complexity++
		}
	}

	return complexity
}

// tokenize yields identifier-like tokens of content.
func tokenize(content string) func(func(string) bool) {
	return func(yield func(string) bool) {
		start := -1

		for i, r := range content {
			if isIdentRune(r) {
				if start < 0 {
					start = i
				}

				continue
			}

			if start >= 0 {
				if !yield(content[start:i]) {
					return
				}

				start = -1
			}
		}

		if start >= 0 {
			yield(content[start:])
		}
	}
}

func isIdentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// fallbackMaintainability is min(100, max(0, 100 - logical/10) +
// comment/logical * 20). A file with no logical lines gets the ceiling.
func fallbackMaintainability(logicalLines, commentLines int) float64 {
	if logicalLines == 0 {
		return maintainabilityCeiling
	}

	base := maintainabilityCeiling - float64(logicalLines)/logicalLinesDivisor
	if base < 0 {
		base = 0
	}

	bonus := float64(commentLines) / float64(logicalLines) * commentBonusFactor

	index := base + bonus
	if index > maintainabilityCeiling {
		index = maintainabilityCeiling
	}

	return index
}

// Aggregate folds per-file metrics into the aggregate consumed by Assess.
func Aggregate(files []FileMetrics) CodeMetrics {
	agg := CodeMetrics{Languages: map[string]int{}}

	if len(files) == 0 {
		return agg
	}

	var complexitySum, maintainabilitySum float64

	for _, f := range files {
		agg.TotalFiles++
		agg.TotalLines += f.LinesOfCode

		complexitySum += float64(f.CyclomaticComplexity)
		if float64(f.CyclomaticComplexity) > agg.MaxComplexity {
			agg.MaxComplexity = float64(f.CyclomaticComplexity)
		}

		if f.CyclomaticComplexity > highComplexityThreshold {
			agg.HighComplexityFuncs++
		}

		maintainabilitySum += f.MaintainabilityIndex
		if f.MaintainabilityIndex < lowMaintainabilityThreshold {
			agg.LowMaintainabilityFiles++
		}

		if f.LinesOfCode > largeFileLines {
			agg.LargeFiles++
		}

		if f.Language != "" {
			agg.Languages[f.Language]++
		}
	}

	agg.AvgComplexity = complexitySum / float64(agg.TotalFiles)
	agg.AvgMaintainability = maintainabilitySum / float64(agg.TotalFiles)
	agg.AvgFileSize = float64(agg.TotalLines) / float64(agg.TotalFiles)

	return agg
}
