package agents

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// staticVersion is recorded in report metadata.
const staticVersion = "rule-analyzer/1.0"

// Stable rule identifiers.
const (
	RulePrintStatement  = "PRINT_STATEMENT_FOUND"
	RulePdbTrace        = "PDB_TRACE_FOUND"
	RuleTodoComment     = "TODO_COMMENT"
	RuleLongLine        = "LONG_LINE"
	RuleLargeFile       = "LARGE_FILE"
	RuleHardcodedSecret = "HARDCODED_SECRET"
	RuleBareExcept      = "BARE_EXCEPT"
	RuleDuplicateCode   = "DUPLICATE_CODE"
)

// maxLineLength is the LONG_LINE threshold.
const maxLineLength = 120

// largeFileThreshold is the LARGE_FILE line-count threshold.
const largeFileThreshold = 500

// duplicateSimilarity is the minimum similarity ratio flagged as duplication.
const duplicateSimilarity = 0.9

// duplicateMinLines is the minimum file length considered for duplication.
const duplicateMinLines = 20

// duplicateMaxFiles caps the pairwise duplication comparison set.
const duplicateMaxFiles = 50

var (
	printCallRe = regexp.MustCompile(`(^|[^.\w])print\s*\(`)
	pdbTraceRe  = regexp.MustCompile(`\bpdb\.set_trace\s*\(|\bbreakpoint\s*\(`)
	todoRe      = regexp.MustCompile(`(?i)(#|//)\s*(TODO|FIXME|XXX)\b`)
	secretRe    = regexp.MustCompile(`(?i)\b(password|passwd|secret|api_key|apikey|auth_token|access_token)\s*=\s*["'][^"']{4,}["']`)
	bareExceptRe = regexp.MustCompile(`^\s*except\s*:\s*(#.*)?$`)
)

// RuleAnalyzer is the default StaticAnalyzer: line-oriented rules plus a
// cross-file near-duplicate check. Rule IDs and categories are stable.
type RuleAnalyzer struct{}

// NewRuleAnalyzer returns the default static analyzer.
func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

// Version implements the versioned hook for report metadata.
func (a *RuleAnalyzer) Version() string { return staticVersion }

// Analyze implements StaticAnalyzer. Findings are ordered by path, then line.
// The synthetic diff entry is analyzed line-by-line like a file; an empty
// result is valid.
func (a *RuleAnalyzer) Analyze(_ context.Context, parsed map[string]ParsedFile) ([]scan.Finding, error) {
	findings := []scan.Finding{}

	paths := make([]string, 0, len(parsed))
	for path := range parsed {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	for _, path := range paths {
		entry := parsed[path]
		findings = append(findings, lineFindings(entry)...)
	}

	findings = append(findings, duplicateFindings(parsed, paths)...)

	return findings, nil
}

func lineFindings(entry ParsedFile) []scan.Finding {
	var findings []scan.Finding

	python := entry.Language == "Python" || entry.Kind == KindDiff
	lineCount := 0

	for lineNo, line := range numberedLines(entry.Source) {
		lineCount = lineNo

		if python {
			if loc := printCallRe.FindStringIndex(line); loc != nil {
				findings = append(findings, scan.Finding{
					RuleID:     RulePrintStatement,
					Message:    "print call left in code",
					File:       entry.Path,
					Line:       lineNo,
					Column:     loc[0] + 1,
					Severity:   scan.SeverityWarning,
					Category:   "style",
					Suggestion: "use structured logging instead of print",
				})
			}

			if loc := pdbTraceRe.FindStringIndex(line); loc != nil {
				findings = append(findings, scan.Finding{
					RuleID:     RulePdbTrace,
					Message:    "debugger breakpoint left in code",
					File:       entry.Path,
					Line:       lineNo,
					Column:     loc[0] + 1,
					Severity:   scan.SeverityError,
					Category:   "debugging",
					Suggestion: "remove the pdb/breakpoint call before merging",
				})
			}

			if bareExceptRe.MatchString(line) {
				findings = append(findings, scan.Finding{
					RuleID:   RuleBareExcept,
					Message:  "bare except swallows all exceptions",
					File:     entry.Path,
					Line:     lineNo,
					Severity: scan.SeverityWarning,
					Category: "maintainability",
				})
			}
		}

		if loc := todoRe.FindStringIndex(line); loc != nil {
			findings = append(findings, scan.Finding{
				RuleID:   RuleTodoComment,
				Message:  "TODO/FIXME comment",
				File:     entry.Path,
				Line:     lineNo,
				Column:   loc[0] + 1,
				Severity: scan.SeverityInfo,
				Category: "maintainability",
			})
		}

		if loc := secretRe.FindStringIndex(line); loc != nil {
			findings = append(findings, scan.Finding{
				RuleID:     RuleHardcodedSecret,
				Message:    "possible hardcoded credential",
				File:       entry.Path,
				Line:       lineNo,
				Column:     loc[0] + 1,
				Severity:   scan.SeverityError,
				Category:   "security",
				Suggestion: "load credentials from the environment or a secret store",
			})
		}

		if len(line) > maxLineLength {
			findings = append(findings, scan.Finding{
				RuleID:   RuleLongLine,
				Message:  fmt.Sprintf("line exceeds %d characters", maxLineLength),
				File:     entry.Path,
				Line:     lineNo,
				Severity: scan.SeverityInfo,
				Category: "style",
			})
		}
	}

	if entry.Kind == KindFile && lineCount > largeFileThreshold {
		findings = append(findings, scan.Finding{
			RuleID:   RuleLargeFile,
			Message:  fmt.Sprintf("file has %d lines (threshold %d)", lineCount, largeFileThreshold),
			File:     entry.Path,
			Line:     1,
			Severity: scan.SeverityWarning,
			Category: "maintainability",
		})
	}

	return findings
}

// duplicateFindings flags near-identical same-language file pairs using
// diffmatchpatch similarity. One finding per pair, attributed to the
// lexically later file.
func duplicateFindings(parsed map[string]ParsedFile, sortedPaths []string) []scan.Finding {
	candidates := make([]ParsedFile, 0, len(sortedPaths))

	for _, path := range sortedPaths {
		entry := parsed[path]
		if entry.Kind != KindFile {
			continue
		}

		if strings.Count(entry.Source, "\n") >= duplicateMinLines {
			candidates = append(candidates, entry)
		}

		if len(candidates) == duplicateMaxFiles {
			break
		}
	}

	var findings []scan.Finding

	dmp := diffmatchpatch.New()

	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			first, second := candidates[i], candidates[j]
			if first.Language != second.Language {
				continue
			}

			if similarity(dmp, first.Source, second.Source) >= duplicateSimilarity {
				findings = append(findings, scan.Finding{
					RuleID:     RuleDuplicateCode,
					Message:    fmt.Sprintf("file is nearly identical to %s", first.Path),
					File:       second.Path,
					Line:       1,
					Severity:   scan.SeverityWarning,
					Category:   "duplication",
					Suggestion: "extract the shared code into one module",
				})
			}
		}
	}

	return findings
}

// similarity is 1 - levenshtein/maxLen over the character diff of a and b.
func similarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	if a == b {
		return 1
	}

	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}

	diffs := dmp.DiffMain(a, b, false)
	distance := dmp.DiffLevenshtein(diffs)

	return 1 - float64(distance)/float64(longest)
}

// numberedLines yields (1-based line number, line) pairs.
func numberedLines(content string) func(func(int, string) bool) {
	return func(yield func(int, string) bool) {
		lineNo := 0

		for line := range strings.Lines(content) {
			lineNo++

			if !yield(lineNo, strings.TrimRight(line, "\n")) {
				return
			}
		}
	}
}
