package expreplay

import (
	"errors"
	"fmt"
)

// ExpReplayError reports a replay buffer operation that could not be
// performed
type ExpReplayError struct {
	Op  string
	Err error
}

func (e *ExpReplayError) Error() string {
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

var (
	errEmptyCache          = errors.New("cache empty")
	errInsufficientSamples = errors.New("minimum capacity not yet reached")
)

// IsInsufficientSamples returns whether err reports that the buffer
// holds fewer transitions than its minimum capacity
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}

// IsEmptyBuffer returns whether err reports that the buffer is empty
func IsEmptyBuffer(err error) bool {
	return errors.Is(err, errEmptyCache)
}
