package market

import (
	"errors"
	"fmt"
)

// ErrIncompletePage signals that a page rendered but expected regions
// were missing. The coordinator retries these with backoff before
// abandoning the URL.
var ErrIncompletePage = errors.New("incomplete page")

// ErrPoolClosed is returned by session acquisition after shutdown.
var ErrPoolClosed = errors.New("session pool closed")

// ExtractionError reports a non-retryable, per-URL-fatal extractor
// failure on otherwise well-formed content.
type ExtractionError struct {
	Kind URLKind
	URL  string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s page %s: %v", e.Kind, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
