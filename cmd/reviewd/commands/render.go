package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// maxMessageLen truncates finding messages in table output.
const maxMessageLen = 80

// renderReport writes the report in the requested format.
func renderReport(out io.Writer, report *scan.Report, markdown, format string) error {
	switch format {
	case formatMarkdown:
		_, err := fmt.Fprintln(out, markdown)
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}

		return nil

	case formatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")

		err := encoder.Encode(report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}

		return nil

	default:
		renderTable(out, report)

		return nil
	}
}

func renderTable(out io.Writer, report *scan.Report) {
	fmt.Fprintf(out, "Scan %s  (%s", report.ScanInfo.ScanID, report.ScanInfo.Repository)

	if report.ScanInfo.PRID > 0 {
		fmt.Fprintf(out, " PR #%d", report.ScanInfo.PRID)
	}

	fmt.Fprintf(out, ", %s)\n", report.ScanInfo.ScanType)

	if report.Summary.ErrorMessage != "" {
		color.New(color.FgRed).Fprintf(out, "Scan failed: %s\n", report.Summary.ErrorMessage)

		return
	}

	if len(report.Findings) == 0 {
		color.New(color.FgGreen).Fprintln(out, "No findings.")
	} else {
		renderFindingsTable(out, report.Findings)
	}

	renderSummary(out, report.Summary)

	if report.LLMReview.HasContent {
		fmt.Fprintf(out, "\nReview Insights:\n%s\n", report.LLMReview.Insights)
	}
}

func renderFindingsTable(out io.Writer, findings []scan.Finding) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(out)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Severity", "Rule", "Location", "Message"})

	for _, finding := range findings {
		location := finding.File
		if finding.Line > 0 {
			location = fmt.Sprintf("%s:%d", finding.File, finding.Line)
		}

		tbl.AppendRow(table.Row{
			colorSeverity(finding.Severity),
			finding.RuleID,
			location,
			truncate(finding.Message, maxMessageLen),
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d findings", len(findings))})
	tbl.Render()
}

func renderSummary(out io.Writer, summary scan.Summary) {
	severities := make([]string, 0, len(summary.SeverityBreakdown))
	for severity := range summary.SeverityBreakdown {
		severities = append(severities, severity)
	}

	sort.Strings(severities)

	for _, severity := range severities {
		fmt.Fprintf(out, "%s: %d  ", severity, summary.SeverityBreakdown[severity])
	}

	if len(severities) > 0 {
		fmt.Fprintln(out)
	}
}

func colorSeverity(severity scan.Severity) string {
	switch severity {
	case scan.SeverityError:
		return color.New(color.FgRed).Sprint(string(severity))
	case scan.SeverityWarning:
		return color.New(color.FgYellow).Sprint(string(severity))
	case scan.SeverityInfo:
		return color.New(color.FgCyan).Sprint(string(severity))
	default:
		return string(severity)
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit-3] + "..."
}
