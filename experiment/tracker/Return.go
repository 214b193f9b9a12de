package tracker

import ts "github.com/samuelfneumann/offlinedose/timestep"

// Return tracks the episodic return in an experiment. When an
// environment returns a TimeStep, this Tracker accumulates its reward
// into the return of the current episode.
//
// An episode must finish for its return to be recorded.
type Return struct {
	seq            sequence
	currentReturn  float64
	episodeReturns []float64
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn() *Return {
	return &Return{seq: newSequence()}
}

// Track tracks the reward of a timestep. When a new episode starts,
// the return of the previous, unfinished episode is discarded.
//
// Track returns an error if called for non-sequential timesteps.
func (r *Return) Track(step ts.TimeStep) error {
	if err := r.seq.next(step); err != nil {
		return err
	}

	if step.First() {
		r.currentReturn = 0
		return nil
	}

	r.currentReturn += step.Reward
	if step.Last() {
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.currentReturn = 0
	}
	return nil
}

// Data returns the returns of all finished episodes
func (r *Return) Data() []float64 {
	return r.episodeReturns
}

// Save saves the returns of all finished episodes to filename
func (r *Return) Save(filename string) error {
	return save(filename, r.episodeReturns)
}
