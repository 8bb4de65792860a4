package backend

import (
	"errors"
	"fmt"

	"github.com/sells-group/precon-cli/internal/model"
)

// Sentinel errors for the recoverable backend failure modes. Callers match
// with errors.Is; recovery is re-invoking the pass, never an in-core retry.
var (
	// ErrAuth indicates the backend rejected our credentials.
	ErrAuth = errors.New("backend: authentication failed")

	// ErrRateLimit indicates the backend throttled the request.
	ErrRateLimit = errors.New("backend: rate limited")

	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("backend: request timed out")
)

// maxExcerptLen bounds how much raw response text a malformed-response error
// carries for diagnostics.
const maxExcerptLen = 240

// MalformedResponseError reports a response that could not be parsed into
// the expected shape for its purpose. Fatal to the owning run: a corrupt
// extraction must never be merged.
type MalformedResponseError struct {
	Backend string
	Purpose model.PassPurpose
	Excerpt string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("backend: malformed %s response from %s: %v (excerpt: %q)",
		e.Purpose, e.Backend, e.Err, e.Excerpt)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// NewMalformedResponseError builds a MalformedResponseError, truncating the
// raw text to a diagnosable excerpt.
func NewMalformedResponseError(backendID string, purpose model.PassPurpose, raw string, err error) *MalformedResponseError {
	excerpt := raw
	if len(excerpt) > maxExcerptLen {
		excerpt = excerpt[:maxExcerptLen]
	}
	return &MalformedResponseError{
		Backend: backendID,
		Purpose: purpose,
		Excerpt: excerpt,
		Err:     err,
	}
}

// IsMalformed reports whether any error in the chain is a
// MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}
