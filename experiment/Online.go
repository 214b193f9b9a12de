package experiment

import (
	"fmt"

	"github.com/samuelfneumann/offlinedose/agent"
	"github.com/samuelfneumann/offlinedose/dataset"
	env "github.com/samuelfneumann/offlinedose/environment"
	"github.com/samuelfneumann/offlinedose/experiment/tracker"
	ts "github.com/samuelfneumann/offlinedose/timestep"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes a training iteration
type Metrics struct {
	EpisodeRewardMean float64 // Mean return of recent finished episodes
	EpisodeLenMean    float64 // Mean length of recent finished episodes
	EnvStepsLifetime  int     // Environment steps since training started
	EpisodesThisIter  int     // Episodes finished during the iteration
}

// Online runs an agent online in an environment, a fixed number of
// environment steps per training iteration. Episodes continue across
// iterations.
type Online struct {
	env          env.Environment
	agent        agent.Agent
	stepsPerIter int
	window       int

	returns  *tracker.Return
	lengths  *tracker.EpisodeLength
	trackers []tracker.Tracker

	step      ts.TimeStep
	inEpisode bool
	lifetime  int
}

// NewOnline creates and returns a new online trainer. Each call to
// Iterate runs stepsPerIter environment steps, and metrics average the
// last window finished episodes.
func NewOnline(e env.Environment, a agent.Agent, stepsPerIter,
	window int) (*Online, error) {
	if stepsPerIter < 1 {
		return nil, fmt.Errorf("newOnline: steps per iteration must be " +
			">= 1")
	}
	if window < 1 {
		return nil, fmt.Errorf("newOnline: metrics window must be >= 1")
	}

	returns := tracker.NewReturn()
	lengths := tracker.NewEpisodeLength()
	return &Online{
		env:          e,
		agent:        a,
		stepsPerIter: stepsPerIter,
		window:       window,
		returns:      returns,
		lengths:      lengths,
		trackers:     []tracker.Tracker{returns, lengths},
	}, nil
}

// Register registers a tracker with the trainer so that data generated
// during training can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Iterate runs a single training iteration
func (o *Online) Iterate() (Metrics, error) {
	episodes := len(o.returns.Data())

	for i := 0; i < o.stepsPerIter; i++ {
		if !o.inEpisode {
			if err := o.startEpisode(); err != nil {
				return Metrics{}, fmt.Errorf("iterate: %v", err)
			}
		}

		action := o.agent.SelectAction(o.step)
		step, _, err := o.env.Step(action)
		if err != nil {
			return Metrics{}, fmt.Errorf("iterate: could not step "+
				"environment: %v", err)
		}
		o.step = step
		o.lifetime++

		if err := o.track(step); err != nil {
			return Metrics{}, fmt.Errorf("iterate: %v", err)
		}
		if err := o.agent.Observe(action, step); err != nil {
			return Metrics{}, fmt.Errorf("iterate: %v", err)
		}
		if err := o.agent.Step(); err != nil {
			return Metrics{}, fmt.Errorf("iterate: %v", err)
		}

		if step.Last() {
			o.agent.EndEpisode()
			o.inEpisode = false
		}
	}

	return Metrics{
		EpisodeRewardMean: windowMean(o.returns.Data(), o.window),
		EpisodeLenMean:    windowMean(o.lengths.Data(), o.window),
		EnvStepsLifetime:  o.lifetime,
		EpisodesThisIter:  len(o.returns.Data()) - episodes,
	}, nil
}

// startEpisode resets the environment and informs the agent
func (o *Online) startEpisode() error {
	step, err := o.env.Reset()
	if err != nil {
		return fmt.Errorf("could not reset environment: %v", err)
	}
	if err := o.agent.ObserveFirst(step); err != nil {
		return err
	}
	if err := o.track(step); err != nil {
		return err
	}

	o.step = step
	o.inEpisode = true
	return nil
}

// track sends the timestep to each tracker
func (o *Online) track(t ts.TimeStep) error {
	for _, tr := range o.trackers {
		if err := tr.Track(t); err != nil {
			return err
		}
	}
	return nil
}

// Returns returns the returns of all finished episodes
func (o *Online) Returns() []float64 {
	return o.returns.Data()
}

// Lengths returns the lengths of all finished episodes
func (o *Online) Lengths() []float64 {
	return o.lengths.Data()
}

// windowMean returns the mean of the last window values of data, or 0
// if data is empty
func windowMean(data []float64, window int) float64 {
	if len(data) == 0 {
		return 0
	}
	if len(data) > window {
		data = data[len(data)-window:]
	}
	return stat.Mean(data, nil)
}

// TransitionAdder adds transitions directly to a replay buffer
type TransitionAdder interface {
	AddTransition(ts.Transition) error
}

// Prefill adds every logged transition of d to the replay buffer of a
// and returns the number added
func Prefill(a TransitionAdder, d *dataset.Dataset, discount float64) (int,
	error) {
	for i := 0; i < d.Len(); i++ {
		if err := a.AddTransition(d.Transition(i, discount)); err != nil {
			return i, fmt.Errorf("prefill: transition %v: %v", i, err)
		}
	}
	return d.Len(), nil
}
