package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// llmVersion is recorded in report metadata.
const llmVersion = "offline-insights/1.0"

// insightTopFindings caps how many findings the insight text enumerates.
const insightTopFindings = 5

// OfflineInsights is the default LLMClient: a deterministic summarizer used
// when no model endpoint is configured. Real providers implement the same
// interface and are injected through the bundle.
type OfflineInsights struct{}

// NewOfflineInsights returns the default insight client.
func NewOfflineInsights() *OfflineInsights {
	return &OfflineInsights{}
}

// Version implements the versioned hook for report metadata.
func (o *OfflineInsights) Version() string { return llmVersion }

// AnalyzePRDiff implements LLMClient.
func (o *OfflineInsights) AnalyzePRDiff(_ context.Context, diff string, findings []scan.Finding) (string, error) {
	changed := ChangedFilesInDiff(diff)

	var b strings.Builder

	fmt.Fprintf(&b, "## Change Overview\n\nThe diff touches %d file(s)", len(changed))

	if len(changed) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(changed, ", "))
	}

	b.WriteString(".\n\n")
	writeFindingsSection(&b, findings)

	return b.String(), nil
}

// AnalyzeCode implements LLMClient.
func (o *OfflineInsights) AnalyzeCode(_ context.Context, files map[string]string, findings []scan.Finding) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "## Code Overview\n\n%d file(s) reviewed.\n\n", len(files))
	writeFindingsSection(&b, findings)

	return b.String(), nil
}

func writeFindingsSection(b *strings.Builder, findings []scan.Finding) {
	if len(findings) == 0 {
		b.WriteString("## Review Notes\n\nNo static findings to discuss.\n")

		return
	}

	byRule := make(map[string]int, len(findings))
	for _, f := range findings {
		byRule[f.RuleID]++
	}

	rules := make([]string, 0, len(byRule))
	for rule := range byRule {
		rules = append(rules, rule)
	}

	sort.Strings(rules)

	fmt.Fprintf(b, "## Review Notes\n\n%d static finding(s) across %d rule(s).\n\n", len(findings), len(rules))

	shown := 0

	for _, rule := range rules {
		if shown == insightTopFindings {
			break
		}

		fmt.Fprintf(b, "- %s: %d occurrence(s)\n", rule, byRule[rule])

		shown++
	}
}
