package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/offlinedose/timestep"
)

// defaultCache implements a concrete ExperienceReplayer as a ring
// buffer: once the buffer is full the oldest transition is overwritten
// first.
type defaultCache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64

	currentInUsePos int
	isFull          bool

	// Outlines how data is sampled
	sampler Selector

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

// newDefaultCache returns a new defaultCache. The sampler
// parameter is a Selector which determines how data is sampled
// from the replay buffer. The featureSize and actionSize
// parameters define the size of the feature and action vectors.
// The minCapacity parameter determines the minimum number of samples
// that should be in the buffer before sampling is allowed.
// The maxCapacity parameter determines the maximum number of samples
// allowed in the buffer at any given time.
func newDefaultCache(sampler Selector, minCapacity, maxCapacity,
	featureSize, actionSize int) *defaultCache {
	return &defaultCache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		discountCache:  make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}
}

// String returns the string representation of the defaultCache
func (d *defaultCache) String() string {
	baseStr := "Capacity: %v/%v \nStates: %v \nActions: %v \nRewards: %v" +
		" \nDiscounts: %v \nNext States: %v"
	return fmt.Sprintf(baseStr, d.Capacity(), d.MaxCapacity(), d.stateCache,
		d.actionCache, d.rewardCache, d.discountCache, d.nextStateCache)
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (d *defaultCache) BatchSize() int {
	return d.sampler.BatchSize()
}

// Sample samples and returns a batch of transitions from the replay
// buffer.
func (d *defaultCache) Sample() (Batch, error) {
	if d.Capacity() == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyCache}
	}
	if d.Capacity() < d.MinCapacity() {
		return Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices, weights := d.sampler.choose(d)
	batch := Batch{
		State:     make([]float64, len(indices)*d.featureSize),
		Action:    make([]float64, len(indices)*d.actionSize),
		Reward:    make([]float64, len(indices)),
		Discount:  make([]float64, len(indices)),
		NextState: make([]float64, len(indices)*d.featureSize),
		Indices:   indices,
		Weights:   weights,
	}

	for i, index := range indices {
		batchStartInd := i * d.featureSize
		expStartInd := index * d.featureSize
		copy(batch.State[batchStartInd:batchStartInd+d.featureSize],
			d.stateCache[expStartInd:expStartInd+d.featureSize])
		copy(batch.NextState[batchStartInd:batchStartInd+d.featureSize],
			d.nextStateCache[expStartInd:expStartInd+d.featureSize])

		batchStartInd = i * d.actionSize
		expStartInd = index * d.actionSize
		copy(batch.Action[batchStartInd:batchStartInd+d.actionSize],
			d.actionCache[expStartInd:expStartInd+d.actionSize])

		batch.Reward[i] = d.rewardCache[index]
		batch.Discount[i] = d.discountCache[index]
	}

	return batch, nil
}

// UpdatePriorities updates the sampling priorities of the transitions
// at indices
func (d *defaultCache) UpdatePriorities(indices []int,
	tdErrors []float64) error {
	if len(indices) != len(tdErrors) {
		return fmt.Errorf("updatePriorities: have %v indices but %v TD "+
			"errors", len(indices), len(tdErrors))
	}
	for _, index := range indices {
		if index < 0 || index >= d.Capacity() {
			return fmt.Errorf("updatePriorities: index %v out of range "+
				"[0, %v)", index, d.Capacity())
		}
	}
	return d.sampler.update(indices, tdErrors)
}

// Capacity returns the current number of elements in the defaultCache that
// are available for sampling
func (d *defaultCache) Capacity() int {
	if d.isFull {
		return d.MaxCapacity()
	}
	return d.currentInUsePos
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the defaultCache
func (d *defaultCache) MaxCapacity() int {
	return d.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// defaultCache before sampling is allowed
func (d *defaultCache) MinCapacity() int {
	return d.minCapacity
}

// Add adds a transition to the defaultCache
func (d *defaultCache) Add(t timestep.Transition) error {
	if t.State.Len() != d.featureSize || t.NextState.Len() != d.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			d.featureSize, t.State.Len())
	}
	if t.Action.Len() != d.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			d.actionSize, t.Action.Len())
	}

	index := d.currentInUsePos
	if !d.isFull && index+1 == d.MaxCapacity() {
		d.isFull = true
	}

	stateInd := index * d.featureSize
	copy(d.stateCache[stateInd:stateInd+d.featureSize],
		t.State.RawVector().Data)
	copy(d.nextStateCache[stateInd:stateInd+d.featureSize],
		t.NextState.RawVector().Data)

	actionInd := index * d.actionSize
	copy(d.actionCache[actionInd:actionInd+d.actionSize],
		t.Action.RawVector().Data)

	d.rewardCache[index] = t.Reward
	d.discountCache[index] = t.Discount

	d.sampler.added(index)
	d.currentInUsePos = (d.currentInUsePos + 1) % d.MaxCapacity()
	return nil
}
