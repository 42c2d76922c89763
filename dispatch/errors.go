package dispatch

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrPrecondition matches every PreconditionError.
var ErrPrecondition = errors.New("dispatch precondition failed")

// PreconditionError rejects a whole run before anything is sent.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func preconditionf(format string, args ...any) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}
