package tracker

import ts "github.com/samuelfneumann/offlinedose/timestep"

// EpisodeLength tracks the lengths of episodes in an experiment.
//
// An episode must finish for its length to be recorded.
type EpisodeLength struct {
	seq            sequence
	episodeLengths []float64
}

// NewEpisodeLength returns a new *EpisodeLength Tracker
func NewEpisodeLength() *EpisodeLength {
	return &EpisodeLength{seq: newSequence()}
}

// Track records the episode length if t is the last timestep in its
// episode
func (e *EpisodeLength) Track(t ts.TimeStep) error {
	if err := e.seq.next(t); err != nil {
		return err
	}

	if t.Last() {
		e.episodeLengths = append(e.episodeLengths, float64(t.Number))
	}
	return nil
}

// Data returns the lengths of all finished episodes
func (e *EpisodeLength) Data() []float64 {
	return e.episodeLengths
}

// Save saves the lengths of all finished episodes to filename
func (e *EpisodeLength) Save(filename string) error {
	return save(filename, e.episodeLengths)
}
