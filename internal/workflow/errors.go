package workflow

import (
	"errors"
	"fmt"
)

// MinQueryLength is the shortest trimmed query a run accepts.
const MinQueryLength = 5

// InputError rejects a run before any stage executes.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrQueryTooShort is returned by Run for queries shorter than
// MinQueryLength after trimming.
var ErrQueryTooShort error = &InputError{
	Field:  "query",
	Reason: fmt.Sprintf("must be at least %d characters", MinQueryLength),
}

// ErrNoGenerator is returned by NewEngine without a generator.
var ErrNoGenerator = errors.New("workflow requires a generator")

// IsInputError reports whether err rejects the caller's input.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
