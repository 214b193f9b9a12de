package checkpointer

import "math"

// Best checkpoints an object each time the reward of an iteration is
// strictly greater than every previously seen reward. Each checkpoint
// overwrites the previous one.
type Best struct {
	path   string
	object Serializable

	best      float64
	iteration int
}

// NewBest returns a new keep-best checkpointer saving object to path
func NewBest(path string, object Serializable) *Best {
	return &Best{
		path:      path,
		object:    object,
		best:      math.Inf(-1),
		iteration: -1,
	}
}

// Checkpoint saves the object if reward is strictly greater than the
// best reward seen so far
func (b *Best) Checkpoint(iteration int, reward float64) (bool, error) {
	if !(reward > b.best) {
		return false, nil
	}

	h := Header{Iteration: iteration, Reward: reward}
	if err := Save(b.path, h, b.object); err != nil {
		return false, err
	}
	b.best = reward
	b.iteration = iteration
	return true, nil
}

// Reward returns the best reward and the iteration it was seen on. The
// iteration is -1 if no checkpoint has been written.
func (b *Best) Reward() (float64, int) {
	return b.best, b.iteration
}

// Path returns the file the checkpoints are written to
func (b *Best) Path() string {
	return b.path
}
