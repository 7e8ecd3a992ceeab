package agents

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// diagramVersion is recorded in report metadata.
const diagramVersion = "echarts-diagrammer/1.0"

// mermaidMaxEdges caps the dependency diagram size so reports stay readable.
const mermaidMaxEdges = 40

// chartWidth and chartHeight size the rendered severity chart.
const (
	chartWidth  = "900px"
	chartHeight = "480px"
)

// EchartsDiagrammer is the default DiagramRenderer: a mermaid dependency
// diagram from parse results plus an echarts severity chart when findings
// exist.
type EchartsDiagrammer struct{}

// NewEchartsDiagrammer returns the default diagram renderer.
func NewEchartsDiagrammer() *EchartsDiagrammer {
	return &EchartsDiagrammer{}
}

// Version implements the versioned hook for report metadata.
func (d *EchartsDiagrammer) Version() string { return diagramVersion }

// Render implements DiagramRenderer. Callable with empty inputs; diagrams
// that have nothing to show are simply omitted.
func (d *EchartsDiagrammer) Render(_ context.Context, input ReportInput, parsed map[string]ParsedFile) ([]scan.Diagram, error) {
	var diagrams []scan.Diagram

	if mermaid := dependencyMermaid(parsed); mermaid != "" {
		diagrams = append(diagrams, scan.Diagram{
			Type:        "dependency_graph",
			Format:      "mermaid",
			Content:     mermaid,
			Title:       "Module Dependencies",
			Description: "Import relationships derived from structural parsing",
		})
	}

	if len(input.Findings) > 0 {
		html, err := severityChartHTML(input.Findings)
		if err != nil {
			return nil, fmt.Errorf("render severity chart: %w", err)
		}

		diagrams = append(diagrams, scan.Diagram{
			Type:        "severity_breakdown",
			Format:      "html",
			Content:     html,
			Title:       "Findings by Severity",
			Description: "Static finding counts per severity level",
		})
	}

	return diagrams, nil
}

// dependencyMermaid renders the import graph as a mermaid flowchart.
func dependencyMermaid(parsed map[string]ParsedFile) string {
	graph := BuildDependencyGraph(parsed)
	if len(graph) == 0 {
		return ""
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}

	sort.Strings(nodes)

	var b strings.Builder

	b.WriteString("graph TD\n")

	edges := 0

	for _, node := range nodes {
		for _, dependent := range graph[node] {
			if edges == mermaidMaxEdges {
				return b.String()
			}

			fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(dependent), mermaidID(node))

			edges++
		}
	}

	return b.String()
}

// mermaidID makes a path safe as a mermaid node identifier.
func mermaidID(path string) string {
	replacer := strings.NewReplacer("/", "_", ".", "_", "-", "_", " ", "_")

	return replacer.Replace(path)
}

// severityChartHTML renders a bar chart of finding counts per severity.
func severityChartHTML(findings []scan.Finding) (string, error) {
	breakdown := scan.SeverityBreakdown(findings)

	severities := []string{
		string(scan.SeverityError),
		string(scan.SeverityWarning),
		string(scan.SeverityInfo),
		string(scan.SeverityUnknown),
	}

	labels := make([]string, 0, len(severities))
	data := make([]opts.BarData, 0, len(severities))

	for _, severity := range severities {
		count, ok := breakdown[severity]
		if !ok {
			continue
		}

		labels = append(labels, severity)
		data = append(data, opts.BarData{Value: count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Findings by Severity"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("Findings", data)

	var buf bytes.Buffer

	err := bar.Render(&buf)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}
