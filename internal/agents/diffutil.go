package agents

import "strings"

// diffGitPrefix introduces a per-file section in git unified diffs.
const diffGitPrefix = "diff --git "

// newFilePrefix marks the post-image path line of a unified diff hunk header.
const newFilePrefix = "+++ b/"

// devNull is the post-image path of a deleted file.
const devNull = "/dev/null"

// ChangedFilesInDiff returns the files a unified diff touches, ordered by
// first appearance. Deleted files (post-image /dev/null) report their
// pre-image path.
func ChangedFilesInDiff(diff string) []string {
	var files []string

	seen := make(map[string]struct{})

	add := func(path string) {
		if path == "" || path == devNull {
			return
		}

		if _, dup := seen[path]; dup {
			return
		}

		seen[path] = struct{}{}
		files = append(files, path)
	}

	var pending string

	for line := range strings.Lines(diff) {
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, diffGitPrefix):
			// "diff --git a/<path> b/<path>"; remember the b-side in
			// case the +++ line is absent (binary files).
			pending = ""

			parts := strings.Fields(line[len(diffGitPrefix):])
			if len(parts) == 2 {
				pending = strings.TrimPrefix(parts[1], "b/")
			}
		case strings.HasPrefix(line, newFilePrefix):
			add(line[len(newFilePrefix):])

			pending = ""
		case strings.HasPrefix(line, "+++ "):
			// "+++ /dev/null" or a non-git diff; fall back to pending.
			add(pending)

			pending = ""
		case strings.HasPrefix(line, "@@") && pending != "":
			add(pending)

			pending = ""
		}
	}

	add(pending)

	return files
}

// AddedLinesByFile extracts the post-image added lines of a unified diff,
// grouped per file. This approximates file content for diff-only parsing.
func AddedLinesByFile(diff string) map[string]string {
	result := make(map[string]string)

	var current string

	var builder strings.Builder

	flush := func() {
		if current != "" && builder.Len() > 0 {
			result[current] = builder.String()
		}

		builder.Reset()
	}

	for line := range strings.Lines(diff) {
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, newFilePrefix):
			flush()

			current = line[len(newFilePrefix):]
		case strings.HasPrefix(line, "+++ "):
			flush()

			current = ""
		case strings.HasPrefix(line, "+") && current != "":
			builder.WriteString(line[1:])
			builder.WriteByte('\n')
		}
	}

	flush()

	return result
}
