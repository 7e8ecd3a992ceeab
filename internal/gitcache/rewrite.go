package gitcache

import (
	"net/url"
	"strings"
)

// githubHost is the hosting platform recognized for plain-token URL auth and
// for API-based HEAD probes.
const githubHost = "github.com"

// oauthBasicUser is the basic-auth username convention for non-GitHub hosts.
const oauthBasicUser = "x-oauth-basic"

// AuthenticatedURL rewrites an https clone URL to carry the token:
//
//	github.com:  https://<token>@github.com/owner/repo
//	other hosts: https://<token>:x-oauth-basic@host/path
//
// Non-https URLs and empty tokens pass through unchanged.
func AuthenticatedURL(rawURL, token string) string {
	if token == "" {
		return rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme != "https" {
		return rawURL
	}

	if isGitHubHost(parsed.Host) {
		parsed.User = url.User(token)
	} else {
		parsed.User = url.UserPassword(token, oauthBasicUser)
	}

	return parsed.String()
}

func isGitHubHost(host string) bool {
	host = strings.ToLower(host)

	return host == githubHost || strings.HasSuffix(host, "."+githubHost)
}

// SplitGitHubRepo extracts owner and repo from a github.com URL. ok is false
// for other hosts or malformed paths.
func SplitGitHubRepo(rawURL string) (owner, repo string, ok bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !isGitHubHost(parsed.Host) {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	repo = strings.TrimSuffix(parts[1], ".git")

	return parts[0], repo, true
}
