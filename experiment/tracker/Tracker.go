// Package tracker implements Trackers, which track and save data
// generated in an experiment
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"

	ts "github.com/samuelfneumann/offlinedose/timestep"
)

// Tracker keeps track of per-episode experiment data, which can be
// saved to disk at any point
type Tracker interface {
	Track(t ts.TimeStep) error
	Data() []float64
	Save(filename string) error
}

// save gob-encodes data to filename
func save(filename string, data []float64) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		file.Close()
		return fmt.Errorf("save: could not encode data: %v", err)
	}
	return file.Close()
}

// LoadData loads and returns the data saved by a Tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadData: could not open data file: %w", err)
	}
	defer file.Close()

	var data []float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("loadData: could not decode data: %v", err)
	}
	return data, nil
}

// sequence checks that tracked timesteps are consecutive within an
// episode
type sequence struct {
	last int
}

func newSequence() sequence {
	return sequence{last: -1}
}

// next records step, returning an error if step does not directly
// follow the previously recorded timestep
func (s *sequence) next(step ts.TimeStep) error {
	if step.First() {
		s.last = -1
	}
	if s.last+1 != step.Number {
		return fmt.Errorf("track: timesteps are not sequential: "+
			"timestep %v --> timestep %v", s.last, step.Number)
	}

	s.last = step.Number
	if step.Last() {
		s.last = -1
	}
	return nil
}
