// Package update checks for newer lockgate releases via the GitHub API.
package update

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// releaseURL is the endpoint queried for the latest release. Overridable in
// tests.
var releaseURL = "https://api.github.com/repos/zachthedev/lockgate/releases/latest"

// httpClient is a lazily-initialized retryable client shared across checks.
var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

// getHTTPClient returns the shared retryable HTTP client, initializing it on
// first call.
func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.HTTPClient.Timeout = 5 * time.Second
		httpClient.Logger = nil // suppress retryablehttp's default logging
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Check fetches the latest release tag and logs if a newer version is
// available. Non-blocking callers run it in a goroutine; failures are
// logged at debug and otherwise ignored.
func Check(current string) {
	latest, err := fetchLatest()
	if err != nil {
		slog.Debug("version check failed", "error", err)
		return
	}
	if latest == "" || latest == current {
		return
	}
	if semverLess(current, latest) {
		slog.Info("new version available", "current", current, "latest", latest)
	}
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

// fetchLatest downloads the latest-release document and returns its tag name.
func fetchLatest() (string, error) {
	resp, err := getHTTPClient().Get(releaseURL)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", releaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", releaseURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.Unmarshal(body, &release); err != nil {
		return "", fmt.Errorf("parsing release: %w", err)
	}
	return release.TagName, nil
}

// semverLess returns true if a < b using numeric major.minor.patch
// comparison. Pre-release versions sort below the corresponding release.
// Non-semver strings are never less.
func semverLess(a, b string) bool {
	pa := parseSemver(a)
	pb := parseSemver(b)
	if pa == nil || pb == nil {
		return false
	}
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return hasPreRelease(a) && !hasPreRelease(b)
}

// hasPreRelease reports whether a version string carries a pre-release
// suffix ("0.1.0-dev").
func hasPreRelease(s string) bool {
	return strings.Contains(strings.TrimPrefix(s, "v"), "-")
}

// parseSemver splits "v1.2.3" or "0.1.0-dev" into [major, minor, patch].
// Returns nil for non-semver strings.
func parseSemver(s string) []int {
	s = strings.TrimPrefix(s, "v")
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return nil
	}
	out := make([]int, 3)
	for i, p := range parts {
		if idx := strings.IndexAny(p, "-+"); idx >= 0 {
			p = p[:idx]
		}
		if p == "" {
			return nil
		}
		n := 0
		for _, c := range p {
			if c < '0' || c > '9' {
				return nil
			}
			n = n*10 + int(c-'0')
		}
		out[i] = n
	}
	return out
}
