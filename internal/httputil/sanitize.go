package httputil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var (
	// slugPattern covers site content slugs such as "movie/watch-heat-19698".
	slugPattern = regexp.MustCompile(`^[a-zA-Z0-9/_-]{1,256}$`)

	providerIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

	// tmdbIDPattern also matches the numeric server and episode ids sites use.
	tmdbIDPattern = regexp.MustCompile(`^[0-9]+$`)
)

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	switch {
	case err != nil:
		return fmt.Errorf("malformed URL: %w", err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("only HTTP(S) URLs are allowed, got %q", u.Scheme)
	case u.Host == "":
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// ValidateSlug checks an id scraped from a site before it is put back into a
// request path.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) || strings.Contains(slug, "..") {
		return fmt.Errorf("unsafe content slug %q", slug)
	}
	return nil
}

// ValidateProviderID checks that a registry id is lowercase and URL safe.
func ValidateProviderID(id string) error {
	if !providerIDPattern.MatchString(id) {
		return fmt.Errorf("invalid provider id %q", id)
	}
	return nil
}

// ValidateNumericID checks TMDB ids and other all-digit ids.
func ValidateNumericID(id string) error {
	if !tmdbIDPattern.MatchString(id) {
		return fmt.Errorf("expected a numeric id, got %q", id)
	}
	return nil
}

// CleanFilename reduces a media title to one safe path element. Separators
// and characters Windows rejects become '_', control characters are dropped,
// whitespace runs collapse and leading or trailing dots are trimmed.
func CleanFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(strings.Join(strings.Fields(name), " "), ". ")
	if name == "" {
		return "untitled"
	}
	return name
}

// SafeJoin places the cleaned name directly inside dir.
func SafeJoin(dir, name string) (string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	p := filepath.Join(root, CleanFilename(name))
	if filepath.Dir(p) != root {
		return "", fmt.Errorf("%q escapes %q", name, dir)
	}
	return p, nil
}

// SearchSlug turns a title into the hyphenated path segment site search
// pages use, e.g. "breaking bad" -> "breaking-bad".
func SearchSlug(title string) string {
	return url.PathEscape(strings.Join(strings.Fields(title), "-"))
}
