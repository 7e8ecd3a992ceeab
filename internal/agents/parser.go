package agents

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/src-d/enry/v2"
)

// parserVersion is recorded in report metadata.
const parserVersion = "structural-parser/1.0"

// StructuralParser is the default ASTParser: a line-oriented extractor of
// classes, functions, and imports. It trades tree fidelity for zero build
// dependencies; the contract only requires structural summaries.
type StructuralParser struct{}

// NewStructuralParser returns the default parser.
func NewStructuralParser() *StructuralParser {
	return &StructuralParser{}
}

// Version implements the versioned hook for report metadata.
func (p *StructuralParser) Version() string { return parserVersion }

// Language-family extraction patterns. Indentation-insensitive where the
// language allows nesting.
var (
	pythonClassRe  = regexp.MustCompile(`(?m)^\s*class\s+([A-Za-z_]\w*)`)
	pythonDefRe    = regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	pythonImportRe = regexp.MustCompile(`(?m)^\s*(?:from\s+([.\w]+)\s+import|import\s+([.\w]+))`)

	goFuncRe   = regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s+)?([A-Za-z_]\w*)`)
	goTypeRe   = regexp.MustCompile(`(?m)^type\s+([A-Za-z_]\w*)\s+(?:struct|interface)\b`)
	goImportRe = regexp.MustCompile(`(?m)^\s*(?:import\s+)?(?:\w+\s+)?"([^"]+)"`)

	jsClassRe  = regexp.MustCompile(`(?m)\bclass\s+([A-Za-z_$][\w$]*)`)
	jsFuncRe   = regexp.MustCompile(`(?m)\bfunction\s+([A-Za-z_$][\w$]*)|(?:^|\s)(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s*)?\(`)
	jsImportRe = regexp.MustCompile(`(?m)\bimport\b[^'"]*['"]([^'"]+)['"]|\brequire\(\s*['"]([^'"]+)['"]`)

	rubyClassRe = regexp.MustCompile(`(?m)^\s*(?:class|module)\s+([A-Z]\w*)`)
	rubyDefRe   = regexp.MustCompile(`(?m)^\s*def\s+([a-z_]\w*[?!]?)`)
	rubyReqRe   = regexp.MustCompile(`(?m)^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`)
)

// Parse implements ASTParser. Unsupported and binary files are absent from
// the result, never an error; an input with no parseable file at all yields
// an empty map.
func (p *StructuralParser) Parse(_ context.Context, files map[string]string) (map[string]ParsedFile, error) {
	if len(files) == 0 {
		return nil, ErrEmptyParseInput
	}

	parsed := make(map[string]ParsedFile, len(files))

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	for _, path := range paths {
		content := files[path]
		if enry.IsBinary([]byte(content)) {
			continue
		}

		language := enry.GetLanguage(path, []byte(content))

		summary, ok := summarize(language, content)
		if !ok {
			continue
		}

		parsed[path] = ParsedFile{
			Path:     path,
			Kind:     KindFile,
			Language: language,
			Summary:  summary,
			Source:   content,
		}
	}

	return parsed, nil
}

// DiffSummaryEntry builds the synthetic parse entry used when only a diff is
// available and individual files cannot be cleanly extracted.
func DiffSummaryEntry(diff string) ParsedFile {
	return ParsedFile{
		Path:   DiffSummaryPath,
		Kind:   KindDiff,
		Source: diff,
		Note:   "unified diff could not be split into parseable files; findings operate on added lines",
	}
}

func summarize(language, content string) (StructuralSummary, bool) {
	switch language {
	case "Python":
		return StructuralSummary{
			Classes:   captures(pythonClassRe, content),
			Functions: captures(pythonDefRe, content),
			Imports:   captures(pythonImportRe, content),
		}, true
	case "Go":
		return StructuralSummary{
			Classes:   captures(goTypeRe, content),
			Functions: captures(goFuncRe, content),
			Imports:   goImports(content),
		}, true
	case "JavaScript", "TypeScript", "JSX", "TSX":
		return StructuralSummary{
			Classes:   captures(jsClassRe, content),
			Functions: captures(jsFuncRe, content),
			Imports:   captures(jsImportRe, content),
		}, true
	case "Ruby":
		return StructuralSummary{
			Classes:   captures(rubyClassRe, content),
			Functions: captures(rubyDefRe, content),
			Imports:   captures(rubyReqRe, content),
		}, true
	default:
		return StructuralSummary{}, false
	}
}

// captures collects the first non-empty capture group of every match.
func captures(re *regexp.Regexp, content string) []string {
	var out []string

	for _, match := range re.FindAllStringSubmatch(content, -1) {
		for _, group := range match[1:] {
			if group != "" {
				out = append(out, group)

				break
			}
		}
	}

	return out
}

// goImports scans import lines, including grouped import blocks.
func goImports(content string) []string {
	var imports []string

	inBlock := false

	for line := range strings.Lines(content) {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && trimmed == ")":
			inBlock = false
		case inBlock || strings.HasPrefix(trimmed, "import "):
			if match := goImportRe.FindStringSubmatch(trimmed); match != nil {
				imports = append(imports, match[1])
			}
		}
	}

	return imports
}
