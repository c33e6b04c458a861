// internal/results/errors.go
package results

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every decode failure caused by the shape of the
// input document.
var ErrMalformed = errors.New("results: malformed document")

// DecodeError reports where and why a document failed to decode.
type DecodeError struct {
	// Path locates the offending value, e.g. "$.diffResults.added[1].pid".
	Path   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("results: malformed document at %s: %s", e.Path, e.Reason)
}

// Is makes errors.Is(err, ErrMalformed) hold for every DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(path, format string, args ...any) error {
	return &DecodeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
