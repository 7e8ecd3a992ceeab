package gitcache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"unicode"
)

// urlHashLen is the number of hex characters of the URL hash kept in a cache
// directory name. Eight characters keep names short while making collisions
// across distinct URLs negligible.
const urlHashLen = 8

// maxNameLen bounds the sanitized project name inside a cache directory name.
const maxNameLen = 40

// CacheDirName builds the deterministic directory name for a project:
// <project_id>_<sanitized_name>_<url_hash8>. Distinct repo URLs never map to
// the same directory for the same project.
func CacheDirName(projectID, name, repoURL string) string {
	sum := sha256.Sum256([]byte(repoURL))
	hash8 := hex.EncodeToString(sum[:])[:urlHashLen]

	return projectID + "_" + sanitizeName(name) + "_" + hash8
}

// CachePath returns the absolute working-tree path for a project under root.
func CachePath(root, projectID, name, repoURL string) string {
	return filepath.Join(root, CacheDirName(projectID, name, repoURL))
}

// sanitizeName keeps letters, digits, '-', '.' and '_'; everything else
// becomes '_'. Empty names become "repo".
func sanitizeName(name string) string {
	var b strings.Builder

	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '.' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}

		if b.Len() >= maxNameLen {
			break
		}
	}

	if b.Len() == 0 {
		return "repo"
	}

	return b.String()
}
