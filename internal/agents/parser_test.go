package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pythonSource = `import os
from collections import defaultdict

class Widget:
    def render(self):
        return self.name

def main():
    return Widget()
`

const goSource = `package main

import (
	"fmt"
	"strings"
)

func main() {
	fmt.Println(strings.ToUpper("hi"))
}
`

func TestParsePythonStructure(t *testing.T) {
	t.Parallel()

	parser := NewStructuralParser()

	parsed, err := parser.Parse(context.Background(), map[string]string{"app.py": pythonSource})
	require.NoError(t, err)
	require.Contains(t, parsed, "app.py")

	entry := parsed["app.py"]

	assert.Equal(t, KindFile, entry.Kind)
	assert.Equal(t, "Python", entry.Language)
	assert.Equal(t, []string{"Widget"}, entry.Summary.Classes)
	assert.Equal(t, []string{"render", "main"}, entry.Summary.Functions)
	assert.ElementsMatch(t, []string{"os", "collections"}, entry.Summary.Imports)
	assert.Equal(t, pythonSource, entry.Source)
}

func TestParseGoGroupedImports(t *testing.T) {
	t.Parallel()

	parser := NewStructuralParser()

	parsed, err := parser.Parse(context.Background(), map[string]string{"main.go": goSource})
	require.NoError(t, err)
	require.Contains(t, parsed, "main.go")

	entry := parsed["main.go"]

	assert.Equal(t, "Go", entry.Language)
	assert.Equal(t, []string{"fmt", "strings"}, entry.Summary.Imports)
	assert.Equal(t, []string{"main"}, entry.Summary.Functions)
}

func TestParseEmptyInputFails(t *testing.T) {
	t.Parallel()

	parser := NewStructuralParser()

	_, err := parser.Parse(context.Background(), nil)

	require.ErrorIs(t, err, ErrEmptyParseInput)
}

func TestParseSkipsBinaryAndUnsupported(t *testing.T) {
	t.Parallel()

	parser := NewStructuralParser()

	files := map[string]string{
		"app.py":    pythonSource,
		"logo.bin":  "\x00\x01\x02binary",
		"notes.txt": "just some prose\n",
	}

	parsed, err := parser.Parse(context.Background(), files)
	require.NoError(t, err)

	assert.Len(t, parsed, 1)
	assert.Contains(t, parsed, "app.py")
}

func TestDiffSummaryEntry(t *testing.T) {
	t.Parallel()

	entry := DiffSummaryEntry(sampleDiff)

	assert.Equal(t, DiffSummaryPath, entry.Path)
	assert.Equal(t, KindDiff, entry.Kind)
	assert.Equal(t, sampleDiff, entry.Source)
	assert.NotEmpty(t, entry.Note)
}
