// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes why an episode ended
type EndType int

const (
	// Unset is the EndType of any step which is not the last step
	Unset EndType = iota

	// TerminalStateReached denotes that the logged data marked the
	// step as terminal
	TerminalStateReached

	// Timeout denotes that the episode was truncated
	Timeout
)

func (e EndType) String() string {
	switch e {
	case TerminalStateReached:
		return "TerminalStateReached"
	case Timeout:
		return "Timeout"
	default:
		return "Unset"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int

	// Info holds environment-specific side information about the
	// step, such as the episode reward so far
	Info map[string]float64

	endType EndType
}

// New returns a new TimeStep
func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{
		StepType:    t,
		Reward:      r,
		Discount:    d,
		Observation: o,
		Number:      n,
	}
}

// First returns whether a TimeStep is the first in an environment
func (t TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd marks the way in which the episode ended. If the timestep is
// not a Last step, SetEnd panics.
func (t *TimeStep) SetEnd(e EndType) {
	if !t.Last() {
		panic(fmt.Sprintf("setEnd: cannot set end type of %v step",
			t.StepType))
	}
	t.endType = e
}

// EndType returns the way in which the episode ended
func (t TimeStep) EndType() EndType {
	return t.endType
}

// TerminalStateReached returns whether the step ended the episode
// because a terminal state was reached
func (t TimeStep) TerminalStateReached() bool {
	return t.endType == TerminalStateReached
}

// Truncated returns whether the step ended the episode before a
// terminal state was reached
func (t TimeStep) Truncated() bool {
	return t.endType == Timeout
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}
