package dataset

import (
	"errors"
	"fmt"
	"os"
)

// Error reports a failure to load or construct a Dataset
type Error struct {
	Op   string
	Path string
	Err  error
}

// Error satisfies the error interface
func (e *Error) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%v %v: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

var errEmpty = errors.New("no transitions")

var errMalformed = errors.New("malformed data")

// IsNotExist returns whether the error reports that the data source
// does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// IsEmpty returns whether the error reports that the data source
// contained no transitions
func IsEmpty(err error) bool {
	return errors.Is(err, errEmpty)
}

// IsMalformed returns whether the error reports that the data source
// could not be parsed
func IsMalformed(err error) bool {
	return errors.Is(err, errMalformed)
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %v", errMalformed, fmt.Sprintf(format, args...))
}
