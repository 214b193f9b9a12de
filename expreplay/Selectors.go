package expreplay

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// SelectorType determines how a Selector chooses data from a buffer
type SelectorType string

const (
	Uniform     SelectorType = "Uniform"
	Prioritized SelectorType = "Prioritized"
)

// Selector implements functionality for choosing how data should be
// sampled from an experience replay buffer
type Selector interface {
	// choose selects the indices at which data should be sampled from
	// the experience replay buffer, along with the importance sampling
	// weight of each index
	choose(c *defaultCache) ([]int, []float64)

	// added notifies the Selector that new data was written at index
	added(index int)

	// update notifies the Selector of new TD errors for the data at
	// indices
	update(indices []int, tdErrors []float64) error

	// BatchSize returns the number of elements that will be selected
	BatchSize() int
}

// uniformSelector is a Selector which selects data from an experience
// replay buffer uniformly randomly
type uniformSelector struct {
	samples int
	rng     *rand.Rand
	weights []float64
}

// NewUniformSelector returns a new Selector which selects data uniformly
// randomly from an experience replay buffer
func NewUniformSelector(samples int, seed uint64) Selector {
	weights := make([]float64, samples)
	for i := range weights {
		weights[i] = 1.0
	}
	return &uniformSelector{
		samples: samples,
		rng:     rand.New(rand.NewSource(seed)),
		weights: weights,
	}
}

// BatchSize gets the number of samples in a batch drawn from the buffer
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

func (u *uniformSelector) added(int) {}

func (u *uniformSelector) update([]int, []float64) error { return nil }

// choose selects a number of indices at which to draw data from the
// buffer
func (u *uniformSelector) choose(c *defaultCache) ([]int, []float64) {
	selected := make([]int, u.BatchSize())
	for i := range selected {
		selected[i] = u.rng.Intn(c.Capacity())
	}

	weights := make([]float64, len(u.weights))
	copy(weights, u.weights)
	return selected, weights
}

// prioritizedSelector is a Selector which selects data proportional to
// its priority, (|δ| + ε)^α where δ is the last TD error computed for
// the data. Newly added data receives the highest priority seen so far.
//
// Sampling is corrected with importance sampling weights (N·P(i))^-β,
// normalized so that the largest weight in each batch is 1. After each
// batch β is incremented towards 1.
type prioritizedSelector struct {
	samples int
	rng     *rand.Rand
	tree    *sumTree

	alpha, beta, betaIncrement, epsilon float64
	maxPriority                         float64
}

// NewPrioritizedSelector returns a new Selector which selects data
// proportionally to its priority from a buffer holding at most capacity
// elements
func NewPrioritizedSelector(samples, capacity int, alpha, beta,
	betaIncrement, epsilon float64, seed uint64) (Selector, error) {
	if alpha < 0 {
		return nil, fmt.Errorf("newPrioritizedSelector: alpha must be >= 0")
	}
	if beta < 0 || beta > 1 {
		return nil, fmt.Errorf("newPrioritizedSelector: beta must be in " +
			"[0, 1]")
	}
	if epsilon <= 0 {
		return nil, fmt.Errorf("newPrioritizedSelector: epsilon must be > 0")
	}
	if capacity < 1 {
		return nil, fmt.Errorf("newPrioritizedSelector: capacity must be " +
			">= 1")
	}

	return &prioritizedSelector{
		samples:       samples,
		rng:           rand.New(rand.NewSource(seed)),
		tree:          newSumTree(capacity),
		alpha:         alpha,
		beta:          beta,
		betaIncrement: betaIncrement,
		epsilon:       epsilon,
		maxPriority:   1.0,
	}, nil
}

// BatchSize gets the number of samples in a batch drawn from the buffer
func (p *prioritizedSelector) BatchSize() int {
	return p.samples
}

func (p *prioritizedSelector) added(index int) {
	p.tree.set(index, math.Pow(p.maxPriority, p.alpha))
}

func (p *prioritizedSelector) update(indices []int,
	tdErrors []float64) error {
	for i, index := range indices {
		if math.IsNaN(tdErrors[i]) {
			return fmt.Errorf("update: NaN TD error at index %v", index)
		}
		priority := math.Abs(tdErrors[i]) + p.epsilon
		if priority > p.maxPriority {
			p.maxPriority = priority
		}
		p.tree.set(index, math.Pow(priority, p.alpha))
	}
	return nil
}

// choose splits the total priority into BatchSize() equal segments and
// samples one index from each
func (p *prioritizedSelector) choose(c *defaultCache) ([]int, []float64) {
	selected := make([]int, p.BatchSize())
	weights := make([]float64, p.BatchSize())

	total := p.tree.total()
	segment := total / float64(p.BatchSize())
	n := float64(c.Capacity())

	maxWeight := 0.0
	for i := range selected {
		mass := (float64(i) + p.rng.Float64()) * segment
		index := p.tree.find(mass)
		if index >= c.Capacity() {
			index = c.Capacity() - 1
		}
		selected[i] = index

		prob := p.tree.get(index) / total
		weights[i] = math.Pow(n*prob, -p.beta)
		if weights[i] > maxWeight {
			maxWeight = weights[i]
		}
	}

	for i := range weights {
		weights[i] /= maxWeight
	}
	p.beta = math.Min(1.0, p.beta+p.betaIncrement)

	return selected, weights
}
