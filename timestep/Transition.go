package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transition is a single (s, a, r, γ, s') tuple
type Transition struct {
	State     *mat.VecDense
	Action    *mat.VecDense
	Reward    float64
	Discount  float64
	NextState *mat.VecDense
}

// NewTransition constructs the transition from step to next that
// followed the action
func NewTransition(step TimeStep, action *mat.VecDense,
	next TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    next.Reward,
		Discount:  next.Discount,
		NextState: next.Observation,
	}
}

func (t Transition) String() string {
	return fmt.Sprintf("Transition | R: %.2f  |  γ: %.2f", t.Reward,
		t.Discount)
}
