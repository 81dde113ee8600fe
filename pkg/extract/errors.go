package extract

import (
	"fmt"

	"github.com/pkg/errors"
)

// FetchError is a failure of the member stream itself. Unlike every
// other failure during a run it is returned to the caller.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "member fetch failed: " + e.Err.Error() }

func (e *FetchError) Unwrap() error { return e.Err }

// Format keeps the stack trace of the wrapped error reachable through %+v.
func (e *FetchError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "member fetch failed: %+v", e.Err)
		return
	}
	fmt.Fprint(s, e.Error())
}

// ErrorType names the dynamic type of the innermost cause of err.
func ErrorType(err error) string {
	return fmt.Sprintf("%T", errors.Cause(err))
}
