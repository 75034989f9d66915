// Package archive persists rendered page HTML so extraction failures
// can be investigated and pages reprocessed without another fetch.
package archive

import (
	"context"
	"net/url"
	"strings"
)

// Archive stores the raw HTML of a fetched page under an object key and
// returns the URI of the stored copy.
type Archive interface {
	SavePage(ctx context.Context, key string, html []byte) (string, error)
}

// NoOp discards every page. Used when archiving is disabled.
type NoOp struct{}

func (NoOp) SavePage(_ context.Context, _ string, _ []byte) (string, error) {
	return "", nil
}

// PageKey derives an object key from a crawl run ID and a page URL.
// The key groups pages by run and stays filesystem-safe.
func PageKey(runID, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return runID + "/" + sanitize(pageURL) + ".html"
	}
	part := u.Host + u.Path
	if u.RawQuery != "" {
		part += "_" + u.RawQuery
	}
	return runID + "/" + sanitize(part) + ".html"
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
