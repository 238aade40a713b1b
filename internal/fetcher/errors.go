package fetcher

import (
	"bytes"
	"fmt"
	"strings"
)

// FetchError reports a transport failure (StatusCode 0) or a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetching %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// UpstreamBlockedError means an anti-bot or challenge page came back where
// content was expected.
type UpstreamBlockedError struct {
	URL    string
	Reason string
}

func (e *UpstreamBlockedError) Error() string {
	return fmt.Sprintf("upstream blocked %s: %s", e.URL, e.Reason)
}

// challengeMarkers are substrings that only appear on interstitial pages.
var challengeMarkers = []string{
	"cf-browser-verification",
	"cf_chl_opt",
	"challenge-platform",
	"<title>just a moment...</title>",
	"attention required! | cloudflare",
	"ddos-guard",
}

// DetectChallenge reports why a body looks like a challenge page, or "" if
// it does not. Only HTML responses are inspected.
func DetectChallenge(contentType string, body []byte) string {
	ct := strings.ToLower(contentType)
	trimmed := bytes.TrimSpace(body)
	looksHTML := strings.Contains(ct, "html") ||
		bytes.HasPrefix(bytes.ToLower(trimmed[:min(len(trimmed), 15)]), []byte("<!doctype html")) ||
		bytes.HasPrefix(bytes.ToLower(trimmed[:min(len(trimmed), 5)]), []byte("<html"))
	if !looksHTML {
		return ""
	}

	head := bytes.ToLower(body[:min(len(body), 64*1024)])
	for _, marker := range challengeMarkers {
		if bytes.Contains(head, []byte(marker)) {
			return "challenge page (" + marker + ")"
		}
	}
	return ""
}
