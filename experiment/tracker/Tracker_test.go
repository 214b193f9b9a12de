package tracker

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	ts "github.com/samuelfneumann/offlinedose/timestep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// episode returns the timesteps of an episode with the given rewards,
// the last of which ends the episode
func episode(rewards ...float64) []ts.TimeStep {
	obs := mat.NewVecDense(1, nil)
	steps := []ts.TimeStep{ts.New(ts.First, 0, 1, obs, 0)}
	for i, r := range rewards {
		stepType := ts.Mid
		if i == len(rewards)-1 {
			stepType = ts.Last
		}
		steps = append(steps, ts.New(stepType, r, 1, obs, i+1))
	}
	return steps
}

func trackAll(t *testing.T, tr Tracker, steps []ts.TimeStep) {
	t.Helper()
	for _, s := range steps {
		if err := tr.Track(s); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReturn(t *testing.T) {
	r := NewReturn()
	trackAll(t, r, episode(1, 2, 3))
	trackAll(t, r, episode(-1))

	// Unfinished episodes are not recorded
	trackAll(t, r, episode(5, 5, 5)[:2])
	trackAll(t, r, episode(0.5, 0.5))

	want := []float64{6, -1, 1}
	if !floats.Equal(r.Data(), want) {
		t.Errorf("returns: want(%v) have(%v)", want, r.Data())
	}
}

func TestEpisodeLength(t *testing.T) {
	e := NewEpisodeLength()
	trackAll(t, e, episode(1, 2, 3))
	trackAll(t, e, episode(1))

	want := []float64{3, 1}
	if !floats.Equal(e.Data(), want) {
		t.Errorf("lengths: want(%v) have(%v)", want, e.Data())
	}
}

func TestNonSequential(t *testing.T) {
	steps := episode(1, 2, 3)
	for _, tr := range []Tracker{NewReturn(), NewEpisodeLength()} {
		if err := tr.Track(steps[0]); err != nil {
			t.Fatal(err)
		}
		if err := tr.Track(steps[2]); err == nil {
			t.Errorf("%T: expected error tracking non-sequential timesteps",
				tr)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	r := NewReturn()
	trackAll(t, r, episode(1, 2))
	trackAll(t, r, episode(4))

	path := filepath.Join(t.TempDir(), "returns.bin")
	if err := r.Save(path); err != nil {
		t.Fatal(err)
	}
	data, err := LoadData(path)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(data, r.Data()) {
		t.Errorf("loaded data: want(%v) have(%v)", r.Data(), data)
	}

	_, err = LoadData(filepath.Join(t.TempDir(), "missing.bin"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, have %v", err)
	}
}
