package risk

import (
	"strings"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// Level buckets the overall score.
type Level string

const (
	LevelMinimal  Level = "MINIMAL"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Overall score thresholds for each level.
const (
	criticalThreshold = 80.0
	highThreshold     = 60.0
	mediumThreshold   = 40.0
	lowThreshold      = 20.0
)

// Component score thresholds for factors and recommendations.
const (
	factorThreshold         = 60.0
	densityFactorThreshold  = 40.0
	securityCriticalCutoff  = 60.0
	securityHighCutoff      = 30.0
	recommendHighCutoff     = 60.0
	recommendMediumCutoff   = 40.0
	maxComponentScore       = 100.0
	avgComplexityScale      = 20.0
	maxComplexityScale      = 50.0
	totalLinesScale         = 100000.0
	avgFileSizeScale        = 1000.0
	densityPerThousandScale = 10.0
	securityRatioScale      = 200.0
	smellRatioScale         = 150.0
	percent                 = 100.0
)

// Component score blend weights.
const (
	complexityAvgWeight       = 0.4
	complexityMaxWeight       = 0.4
	complexityHighFuncsWeight = 0.2
	maintainabilityAvgWeight  = 0.7
	maintainabilityLowWeight  = 0.3
	sizeTotalWeight           = 0.3
	sizeAvgWeight             = 0.4
	sizeLargeWeight           = 0.3
)

// Weights are the literal multipliers applied to component scores. They are
// not assumed to sum to 1.
type Weights struct {
	Complexity      float64 `json:"complexity"`
	Maintainability float64 `json:"maintainability"`
	Size            float64 `json:"size"`
	FindingsDensity float64 `json:"findings_density"`
	Security        float64 `json:"security"`
	CodeSmells      float64 `json:"code_smells"`
}

// DefaultWeights returns the standard component weighting.
func DefaultWeights() Weights {
	return Weights{
		Complexity:      0.25,
		Maintainability: 0.20,
		Size:            0.15,
		FindingsDensity: 0.25,
		Security:        0.10,
		CodeSmells:      0.05,
	}
}

// Recommendation is one actionable item emitted with an assessment.
type Recommendation struct {
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	Recommendation string `json:"recommendation"`
	Action         string `json:"action"`
}

// Assessment is the full risk report for one project or diff.
type Assessment struct {
	OverallScore          float64            `json:"overall_score"`
	RiskLevel             Level              `json:"risk_level"`
	ComponentScores       map[string]float64 `json:"component_scores"`
	RiskFactors           []string           `json:"risk_factors"`
	Recommendations       []Recommendation   `json:"recommendations"`
	ArchitecturalAnalysis string             `json:"architectural_analysis,omitempty"`
	Weights               Weights            `json:"weights"`
}

// securityCategories are the finding categories counted as security-related.
var securityCategories = map[string]struct{}{
	"security": {}, "secrets": {}, "injection": {}, "crypto": {},
}

// smellCategories are the finding categories counted as code smells.
var smellCategories = map[string]struct{}{
	"style": {}, "complexity": {}, "duplication": {}, "maintainability": {},
}

// Assess computes the composite assessment. Pure and total: empty metrics
// and nil findings yield zero components and a MINIMAL level.
func Assess(metrics CodeMetrics, findings []scan.Finding, architecturalAnalysis string, weights Weights) Assessment {
	components := map[string]float64{
		"complexity":       complexityScore(metrics),
		"maintainability":  maintainabilityScore(metrics),
		"size":             sizeScore(metrics),
		"findings_density": densityScore(metrics, findings),
		"security":         securityScore(findings),
		"code_smells":      smellScore(findings),
	}

	overall := weights.Complexity*components["complexity"] +
		weights.Maintainability*components["maintainability"] +
		weights.Size*components["size"] +
		weights.FindingsDensity*components["findings_density"] +
		weights.Security*components["security"] +
		weights.CodeSmells*components["code_smells"]

	return Assessment{
		OverallScore:          overall,
		RiskLevel:             levelFor(overall),
		ComponentScores:       components,
		RiskFactors:           riskFactors(components),
		Recommendations:       recommendations(components),
		ArchitecturalAnalysis: architecturalAnalysis,
		Weights:               weights,
	}
}

func levelFor(score float64) Level {
	switch {
	case score >= criticalThreshold:
		return LevelCritical
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	case score >= lowThreshold:
		return LevelLow
	default:
		return LevelMinimal
	}
}

func complexityScore(m CodeMetrics) float64 {
	if m.TotalFiles == 0 {
		return 0
	}

	avgPart := capped(m.AvgComplexity / avgComplexityScale * percent)
	maxPart := capped(m.MaxComplexity / maxComplexityScale * percent)
	highPart := float64(m.HighComplexityFuncs) / float64(m.TotalFiles) * percent

	return capped(complexityAvgWeight*avgPart + complexityMaxWeight*maxPart + complexityHighFuncsWeight*highPart)
}

func maintainabilityScore(m CodeMetrics) float64 {
	if m.TotalFiles == 0 {
		return 0
	}

	avgPart := maxComponentScore - m.AvgMaintainability
	lowPart := float64(m.LowMaintainabilityFiles) / float64(m.TotalFiles) * percent

	return capped(maintainabilityAvgWeight*avgPart + maintainabilityLowWeight*lowPart)
}

func sizeScore(m CodeMetrics) float64 {
	if m.TotalFiles == 0 {
		return 0
	}

	totalPart := capped(float64(m.TotalLines) / totalLinesScale * percent)
	avgPart := capped(m.AvgFileSize / avgFileSizeScale * percent)
	largePart := float64(m.LargeFiles) / float64(m.TotalFiles) * percent

	return capped(sizeTotalWeight*totalPart + sizeAvgWeight*avgPart + sizeLargeWeight*largePart)
}

func densityScore(m CodeMetrics, findings []scan.Finding) float64 {
	if len(findings) == 0 {
		return 0
	}

	lines := m.TotalLines
	if lines < 1 {
		lines = 1
	}

	perThousand := float64(len(findings)) / float64(lines) * 1000

	return capped(perThousand * densityPerThousandScale)
}

func securityScore(findings []scan.Finding) float64 {
	if len(findings) == 0 {
		return 0
	}

	security := countCategories(findings, securityCategories)

	return capped(float64(security) / float64(len(findings)) * securityRatioScale)
}

func smellScore(findings []scan.Finding) float64 {
	if len(findings) == 0 {
		return 0
	}

	smells := countCategories(findings, smellCategories)

	return capped(float64(smells) / float64(len(findings)) * smellRatioScale)
}

func countCategories(findings []scan.Finding, set map[string]struct{}) int {
	count := 0

	for _, f := range findings {
		if _, ok := set[strings.ToLower(f.Category)]; ok {
			count++
		}
	}

	return count
}

func capped(score float64) float64 {
	if score > maxComponentScore {
		return maxComponentScore
	}

	if score < 0 {
		return 0
	}

	return score
}

// riskFactors emits short human-readable strings for components over their
// thresholds, in a fixed order so output is deterministic.
func riskFactors(components map[string]float64) []string {
	var factors []string

	if components["complexity"] > factorThreshold {
		factors = append(factors, "High code complexity across the project")
	}

	if components["maintainability"] > factorThreshold {
		factors = append(factors, "Low maintainability index")
	}

	if components["size"] > factorThreshold {
		factors = append(factors, "Large codebase with oversized files")
	}

	if components["findings_density"] > densityFactorThreshold {
		factors = append(factors, "High density of static findings")
	}

	if components["security"] > densityFactorThreshold {
		factors = append(factors, "Security-related findings present")
	}

	return factors
}

// recommendations builds prioritized actions per component category.
// Security escalates to CRITICAL/HIGH; the rest use HIGH/MEDIUM tiers.
func recommendations(components map[string]float64) []Recommendation {
	var recs []Recommendation

	if priority, ok := tier(components["complexity"], recommendHighCutoff, recommendMediumCutoff); ok {
		recs = append(recs, Recommendation{
			Category:       "Complexity",
			Priority:       priority,
			Recommendation: "Refactor the most complex functions",
			Action:         "Split functions with cyclomatic complexity above 10 into smaller units",
		})
	}

	if priority, ok := tier(components["maintainability"], recommendHighCutoff, recommendMediumCutoff); ok {
		recs = append(recs, Recommendation{
			Category:       "Maintainability",
			Priority:       priority,
			Recommendation: "Improve maintainability of low-index files",
			Action:         "Add documentation and reduce logical line counts in flagged files",
		})
	}

	if priority, ok := tier(components["size"], recommendHighCutoff, recommendMediumCutoff); ok {
		recs = append(recs, Recommendation{
			Category:       "Size",
			Priority:       priority,
			Recommendation: "Break up oversized files",
			Action:         "Split files over 500 lines along module boundaries",
		})
	}

	if priority, ok := tier(components["findings_density"], recommendHighCutoff, recommendMediumCutoff); ok {
		recs = append(recs, Recommendation{
			Category:       "Findings",
			Priority:       priority,
			Recommendation: "Reduce static-analysis findings",
			Action:         "Triage and fix the highest-severity findings first",
		})
	}

	if securityPriority, ok := securityTier(components["security"]); ok {
		recs = append(recs, Recommendation{
			Category:       "Security",
			Priority:       securityPriority,
			Recommendation: "Address security findings immediately",
			Action:         "Review and remediate all security-categorized findings",
		})
	}

	if priority, ok := tier(components["code_smells"], recommendHighCutoff, recommendMediumCutoff); ok {
		recs = append(recs, Recommendation{
			Category:       "Code Smells",
			Priority:       priority,
			Recommendation: "Clean up style and duplication smells",
			Action:         "Deduplicate repeated blocks and align with the style guide",
		})
	}

	return recs
}

func tier(score, highCutoff, mediumCutoff float64) (string, bool) {
	switch {
	case score > highCutoff:
		return "HIGH", true
	case score > mediumCutoff:
		return "MEDIUM", true
	default:
		return "", false
	}
}

func securityTier(score float64) (string, bool) {
	switch {
	case score > securityCriticalCutoff:
		return "CRITICAL", true
	case score > securityHighCutoff:
		return "HIGH", true
	default:
		return "", false
	}
}
