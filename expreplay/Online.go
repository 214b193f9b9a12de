package expreplay

import (
	"github.com/samuelfneumann/offlinedose/timestep"
)

// onlineCache implements an experience replay buffer for sampling
// completely online.
//
// When creating a new experience replay buffer, the user could
// choose to use a buffer with a maximum capacity of 1. In this case,
// experience replay reduces to online sampling.
type onlineCache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64
}

// newOnline returns a new online replay buffer
func newOnline() ExperienceReplayer {
	return &onlineCache{}
}

// Add replaces the stored transition with t
func (o *onlineCache) Add(t timestep.Transition) error {
	o.stateCache = append(o.stateCache[:0], t.State.RawVector().Data...)
	o.actionCache = append(o.actionCache[:0], t.Action.RawVector().Data...)
	o.rewardCache = []float64{t.Reward}
	o.discountCache = []float64{t.Discount}
	o.nextStateCache = append(o.nextStateCache[:0],
		t.NextState.RawVector().Data...)

	return nil
}

// Sample returns the most recently added transition
func (o *onlineCache) Sample() (Batch, error) {
	if len(o.stateCache) == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyCache}
	}
	return Batch{
		State:     o.stateCache,
		Action:    o.actionCache,
		Reward:    o.rewardCache,
		Discount:  o.discountCache,
		NextState: o.nextStateCache,
		Indices:   []int{0},
		Weights:   []float64{1.0},
	}, nil
}

// UpdatePriorities is a no-op, the online cache has a single
// transition to sample
func (o *onlineCache) UpdatePriorities([]int, []float64) error {
	return nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (o *onlineCache) Capacity() int {
	if len(o.stateCache) == 0 {
		return 0
	}
	return 1
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (o *onlineCache) MaxCapacity() int {
	return 1
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (o *onlineCache) MinCapacity() int {
	return 1
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (o *onlineCache) BatchSize() int {
	return 1
}
