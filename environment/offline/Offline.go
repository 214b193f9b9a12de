// Package offline implements an environment which replays a table of
// logged transitions
package offline

import (
	"fmt"

	"github.com/samuelfneumann/offlinedose/dataset"
	env "github.com/samuelfneumann/offlinedose/environment"
	ts "github.com/samuelfneumann/offlinedose/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// EpisodeRewardKey is the TimeStep Info key holding the episode reward
// accumulated so far
const EpisodeRewardKey = "episode_reward"

// Env replays the rows of a Dataset as an environment. Each episode
// starts at a uniformly random row and advances one row per step,
// wrapping around at the end of the table. An episode ends when a row
// flagged terminal is replayed.
//
// The action passed to Step is never used: the logged reward, terminal
// flag, and next state are replayed whatever the agent does. Agents
// trained on Env therefore learn from the logged outcomes only, there is
// no model of what would have happened under a different action.
type Env struct {
	data     *dataset.Dataset
	discount float64
	rng      *rand.Rand

	cursor        int
	episodeReward float64
	episodeLength int
	currentStep   ts.TimeStep

	obsSpec      env.Spec
	actionSpec   env.Spec
	discountSpec env.Spec
}

// New returns a new offline environment over data. Observations have
// data.Features() unbounded features and actions one dimension bounded
// in [-1, 1].
func New(data *dataset.Dataset, discount float64, seed uint64) (*Env, error) {
	if data == nil || data.Len() == 0 {
		return nil, fmt.Errorf("new: cannot replay empty dataset")
	}
	if discount < 0 || discount > 1 {
		return nil, fmt.Errorf("new: discount must be in [0, 1]")
	}

	return &Env{
		data:         data,
		discount:     discount,
		rng:          rand.New(rand.NewSource(seed)),
		obsSpec:      env.NewUnboundedBox(env.Observation, data.Features()),
		actionSpec:   env.NewBox(env.Action, data.ActionDims(), -1, 1),
		discountSpec: env.NewBox(env.Discount, 1, discount, discount),
	}, nil
}

// Reset starts a new episode at a uniformly random row and zeroes the
// episode reward and length
func (e *Env) Reset() (ts.TimeStep, error) {
	e.cursor = e.rng.Intn(e.data.Len())
	e.episodeReward = 0
	e.episodeLength = 0

	e.currentStep = ts.New(ts.First, 0, e.discount, e.observation(e.cursor), 0)
	e.currentStep.Info = map[string]float64{EpisodeRewardKey: 0}
	return e.currentStep, nil
}

// Step replays the row at the cursor and advances the cursor by one row,
// wrapping at the end of the table. The returned TimeStep holds the
// row's reward, the state of the following row, and the episode reward
// so far under EpisodeRewardKey. The returned bool is true if the row is
// flagged terminal. Episodes are never truncated.
//
// Stepping past a terminal row does not start a new episode: the cursor
// keeps advancing and the episode counters keep accumulating until Reset
// is called. The action is ignored.
func (e *Env) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	if e.currentStep.Observation == nil {
		return ts.TimeStep{}, false, fmt.Errorf("step: environment must " +
			"be reset before stepping")
	}
	reward := e.data.Reward(e.cursor)
	terminal := e.data.Terminal(e.cursor)

	e.episodeReward += reward
	e.episodeLength++
	e.cursor = (e.cursor + 1) % e.data.Len()

	stepType, discount := ts.Mid, e.discount
	if terminal {
		stepType, discount = ts.Last, 0.0
	}

	step := ts.New(stepType, reward, discount, e.observation(e.cursor),
		e.currentStep.Number+1)
	step.Info = map[string]float64{EpisodeRewardKey: e.episodeReward}
	if terminal {
		step.SetEnd(ts.TerminalStateReached)
	}

	e.currentStep = step
	return step, terminal, nil
}

// CurrentTimeStep returns the last TimeStep returned by Reset or Step
func (e *Env) CurrentTimeStep() ts.TimeStep {
	return e.currentStep
}

// Cursor returns the row which the next call to Step will replay
func (e *Env) Cursor() int {
	return e.cursor
}

// SetCursor moves the cursor to row i and starts a new episode there
func (e *Env) SetCursor(i int) (ts.TimeStep, error) {
	if i < 0 || i >= e.data.Len() {
		return ts.TimeStep{}, fmt.Errorf("setCursor: row %v out of range "+
			"[0, %v)", i, e.data.Len())
	}
	if _, err := e.Reset(); err != nil {
		return ts.TimeStep{}, err
	}

	e.cursor = i
	e.currentStep.Observation = e.observation(i)
	return e.currentStep, nil
}

// EpisodeReward returns the reward accumulated in the current episode
func (e *Env) EpisodeReward() float64 {
	return e.episodeReward
}

// EpisodeLength returns the number of steps taken in the current episode
func (e *Env) EpisodeLength() int {
	return e.episodeLength
}

// ObservationSpec returns the observation specification of the
// environment
func (e *Env) ObservationSpec() env.Spec {
	return e.obsSpec
}

// ActionSpec returns the action specification of the environment
func (e *Env) ActionSpec() env.Spec {
	return e.actionSpec
}

// DiscountSpec returns the discount specification of the environment
func (e *Env) DiscountSpec() env.Spec {
	return e.discountSpec
}

func (e *Env) String() string {
	return fmt.Sprintf("Offline | Rows: %v  |  Cursor: %v", e.data.Len(),
		e.cursor)
}

func (e *Env) observation(i int) *mat.VecDense {
	obs := make([]float64, e.data.Features())
	copy(obs, e.data.State(i))
	return mat.NewVecDense(len(obs), obs)
}
