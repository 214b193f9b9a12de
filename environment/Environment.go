// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"github.com/samuelfneumann/offlinedose/timestep"
	"gonum.org/v1/gonum/mat"
)

// Environment is the contract between an agent and the process it
// interacts with. Reset starts a new episode; Step takes an action and
// returns the next timestep along with whether the episode is over.
type Environment interface {
	Reset() (timestep.TimeStep, error)
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)
	CurrentTimeStep() timestep.TimeStep

	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec
}
