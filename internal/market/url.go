package market

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize standardizes a URL before dedup comparison. Relative and
// scheme-relative references are resolved against the site root,
// scheme and host are lowercased, default ports dropped, fragments
// removed, and query parameters sorted.
func Normalize(rawURL, siteHost string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	switch {
	case strings.HasPrefix(raw, "//"):
		raw = "https:" + raw
	case strings.HasPrefix(raw, "/"):
		raw = "https://" + siteHost + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// Classify derives the URL kind from the first path segment. URLs on a
// foreign host are KindUnknown regardless of their path.
func Classify(normalizedURL, siteHost string) URLKind {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return KindUnknown
	}
	if !strings.EqualFold(u.Host, siteHost) {
		return KindUnknown
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return KindUnknown
	}
	switch segments[0] {
	case "category":
		return KindCategory
	case "search":
		return KindSearch
	case "product":
		return KindProduct
	case "brand":
		return KindBrand
	case "seller":
		return KindSeller
	default:
		return KindUnknown
	}
}

// ProductPK extracts the marketplace primary key from a product URL of
// the form /product/<slug>-<pk>/. It returns false when the URL does
// not carry one.
func ProductPK(productURL string) (int64, bool) {
	u, err := url.Parse(productURL)
	if err != nil {
		return 0, false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] != "product" {
		return 0, false
	}
	slug := segments[len(segments)-1]
	idx := strings.LastIndex(slug, "-")
	if idx < 0 || idx == len(slug)-1 {
		return 0, false
	}
	var pk int64
	if _, err := fmt.Sscanf(slug[idx+1:], "%d", &pk); err != nil {
		return 0, false
	}
	return pk, true
}
