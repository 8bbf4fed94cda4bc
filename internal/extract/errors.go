package extract

import "fmt"

// ExtractionError reports a source fetch that failed after retries were
// exhausted or a non-retryable response (4xx, malformed body). StatusCode is
// zero when the failure happened below HTTP (transport error, decode error).
type ExtractionError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *ExtractionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("extract %s: status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
