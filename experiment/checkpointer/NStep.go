package checkpointer

import "strconv"

// nStep implements checkpointing every N iterations
type nStep struct {
	interval int
	object   Serializable // Object to save

	// filename returns the filename of the next checkpoint.
	//
	// If each checkpoint should be saved in a separate file with an
	// incremented number as a suffix (e.g. iter1.ckpt, iter2.ckpt, ...,
	// iterK.ckpt), then use FilenameEnumerator.
	filename func() string
}

// NewNStep returns a checkpointer that checkpoints every n iterations
func NewNStep(n int, object Serializable,
	filename func() string) Checkpointer {
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}
}

// Checkpoint saves the tracked object if iteration + 1 is a multiple
// of the interval
func (n *nStep) Checkpoint(iteration int, reward float64) (bool, error) {
	if (iteration+1)%n.interval != 0 {
		return false, nil
	}

	h := Header{Iteration: iteration, Reward: reward}
	if err := Save(n.filename(), h, n.object); err != nil {
		return false, err
	}
	return true, nil
}

// FilenameEnumerator returns a function returning prefix<k>extension
// with k = start+1, start+2, ... on successive calls
func FilenameEnumerator(start int, prefix, extension string) func() string {
	k := start
	return func() string {
		k++
		return prefix + strconv.Itoa(k) + extension
	}
}
