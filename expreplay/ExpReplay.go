// Package expreplay implements experience replay buffers
package expreplay

import (
	"fmt"
	"os"

	"github.com/samuelfneumann/offlinedose/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer.
// Alpha, Beta, BetaIncrement, and Epsilon only apply to the Prioritized
// SampleMethod.
type Config struct {
	SampleMethod      SelectorType
	SampleSize        int
	MaxReplayCapacity int
	MinReplayCapacity int

	Alpha         float64
	Beta          float64
	BetaIncrement float64
	Epsilon       float64
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(featureSize, actionSize int,
	seed uint64) (ExperienceReplayer, error) {
	sampler, err := c.selector(seed)
	if err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}

	return New(sampler, c.MinReplayCapacity, c.MaxReplayCapacity,
		featureSize, actionSize)
}

func (c Config) selector(seed uint64) (Selector, error) {
	switch c.SampleMethod {
	case Uniform:
		return NewUniformSelector(c.SampleSize, seed), nil

	case Prioritized:
		return NewPrioritizedSelector(c.SampleSize, c.MaxReplayCapacity,
			c.Alpha, c.Beta, c.BetaIncrement, c.Epsilon, seed)

	default:
		return nil, fmt.Errorf("unknown sample method %v", c.SampleMethod)
	}
}

// Batch is a batch of transitions sampled from a replay buffer. States,
// actions, and next states are stored row-major, one transition per row.
type Batch struct {
	State     []float64
	Action    []float64
	Reward    []float64
	Discount  []float64
	NextState []float64

	// Indices holds the buffer position of each sampled transition,
	// used to update priorities
	Indices []int

	// Weights holds the importance sampling weight of each sampled
	// transition
	Weights []float64
}

// Len returns the number of transitions in the batch
func (b Batch) Len() int {
	return len(b.Reward)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer
	Sample() (Batch, error)

	// UpdatePriorities sets the priorities of the transitions at the
	// given buffer indices from their TD errors. Buffers which do not
	// sample by priority ignore the update.
	UpdatePriorities(indices []int, tdErrors []float64) error

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// New creates and returns a new ExperienceReplayer. The sampler
// determines how data is sampled from the buffer; once full, the oldest
// transition is overwritten first. The featureSize and actionSize
// parameters define the size of the feature and action vectors.
func New(sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize int) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return nil, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if minCapacity > maxCapacity {
		return nil, fmt.Errorf("new: minCapacity (%v) > maxCapacity (%v)",
			minCapacity, maxCapacity)
	}
	if maxCapacity < sampler.BatchSize() {
		return nil, fmt.Errorf("new: cannot have batch size(%v) > max "+
			"buffer capacity (%v)", sampler.BatchSize(), maxCapacity)
	}

	// If minCapacity == maxCapacity == 1, then the replay buffer
	// only stores the most recent online transition.
	if minCapacity == 1 && maxCapacity == 1 {
		if sampler.BatchSize() > 1 {
			msg := "new: using online sampler, ignoring batch size > 1"
			fmt.Fprintln(os.Stderr, msg)
		}
		return newOnline(), nil
	}

	return newDefaultCache(sampler, minCapacity, maxCapacity, featureSize,
		actionSize), nil
}
