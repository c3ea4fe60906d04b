package decoder

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/slscan/internal/codeword"
)

// Precondition failures. Decode never produces a partial result when one of
// these is returned.
var (
	ErrNoPatterns        = errors.New("no pattern images provided")
	ErrSequenceLength    = errors.New("pattern and inverse sequences differ in length")
	ErrTooManyPatterns   = fmt.Errorf("more than %d pattern pairs do not fit a 16-bit codeword", codeword.MaxPatterns)
	ErrNilImage          = errors.New("nil image")
	ErrDimensionMismatch = errors.New("image dimensions differ")
)

// PreconditionError reports a caller error detected before decoding starts.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}
