package offline

import (
	"testing"

	"github.com/samuelfneumann/offlinedose/dataset"
	"gonum.org/v1/gonum/mat"
)

// newData returns an n-row dataset whose states hold the row index and
// whose rewards alternate between 1 and -1
func newData(t *testing.T, n int, terminals []float64) *dataset.Dataset {
	t.Helper()

	states := make([][]float64, n)
	actions := make([]float64, n)
	rewards := make([]float64, n)
	if terminals == nil {
		terminals = make([]float64, n)
	}
	for i := range states {
		states[i] = []float64{float64(i), float64(2 * i)}
		rewards[i] = 1
		if i%2 == 1 {
			rewards[i] = -1
		}
	}

	d, err := dataset.New(states, actions, rewards, terminals,
		dataset.DefaultTerminalFallback)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestResetZeroesEpisode(t *testing.T) {
	e, err := New(newData(t, 20, nil), 0.99, 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Reset(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, _, err := e.Step(mat.NewVecDense(1, nil)); err != nil {
			t.Fatal(err)
		}
	}

	step, err := e.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if !step.First() {
		t.Errorf("reset step type = %v, want First", step.StepType)
	}
	if e.EpisodeReward() != 0 || e.EpisodeLength() != 0 {
		t.Errorf("episode counters after reset = %v, %v; want 0, 0",
			e.EpisodeReward(), e.EpisodeLength())
	}
	if e.Cursor() < 0 || e.Cursor() >= 20 {
		t.Errorf("cursor %v out of range", e.Cursor())
	}
	if step.Observation.AtVec(0) != float64(e.Cursor()) {
		t.Error("reset observation is not the state of the start row")
	}
}

func TestCursorAdvancesCyclically(t *testing.T) {
	sizes := []int{1, 2, 7, 50}
	steps := []int{0, 1, 6, 49, 50, 123}

	for _, size := range sizes {
		e, err := New(newData(t, size, nil), 0.99, 3)
		if err != nil {
			t.Fatal(err)
		}

		for start := 0; start < size; start += 1 + size/3 {
			for _, n := range steps {
				if _, err := e.SetCursor(start); err != nil {
					t.Fatal(err)
				}
				for i := 0; i < n; i++ {
					if _, _, err := e.Step(nil); err != nil {
						t.Fatal(err)
					}
				}

				want := (start + n) % size
				if e.Cursor() != want {
					t.Errorf("size %v: cursor after %v steps from %v = %v, "+
						"want %v", size, n, start, e.Cursor(), want)
				}
			}
		}
	}
}

func TestStepIgnoresAction(t *testing.T) {
	actions := []*mat.VecDense{
		nil,
		mat.NewVecDense(1, []float64{-1}),
		mat.NewVecDense(1, []float64{0.3}),
		mat.NewVecDense(1, []float64{1}),
	}

	e, err := New(newData(t, 30, nil), 0.99, 5)
	if err != nil {
		t.Fatal(err)
	}

	var first []float64
	for i, a := range actions {
		if _, err := e.SetCursor(11); err != nil {
			t.Fatal(err)
		}
		step, done, err := e.Step(a)
		if err != nil {
			t.Fatal(err)
		}

		got := []float64{step.Reward, step.Observation.AtVec(0),
			step.Info[EpisodeRewardKey], float64(e.Cursor())}
		if done {
			got = append(got, 1)
		}
		if i == 0 {
			first = got
			continue
		}
		if len(got) != len(first) {
			t.Fatalf("action %v changed terminal flag", a)
		}
		for j := range got {
			if got[j] != first[j] {
				t.Errorf("action %v changed output %v: %v != %v", a, j,
					got[j], first[j])
			}
		}
	}
}

func TestStepReplaysLoggedRow(t *testing.T) {
	terminals := make([]float64, 10)
	terminals[4] = 1

	e, err := New(newData(t, 10, terminals), 0.9, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.SetCursor(2); err != nil {
		t.Fatal(err)
	}

	step, done, err := e.Step(nil)
	if err != nil {
		t.Fatal(err)
	}
	if done || step.Last() {
		t.Error("non-terminal row ended the episode")
	}
	if step.Reward != 1 || step.Discount != 0.9 {
		t.Errorf("reward, discount = %v, %v; want 1, 0.9", step.Reward,
			step.Discount)
	}
	if step.Observation.AtVec(0) != 3 {
		t.Errorf("observation = %v, want state of row 3",
			step.Observation.AtVec(0))
	}
	if step.Truncated() {
		t.Error("step reported truncated")
	}

	e.Step(nil)
	step, done, err = e.Step(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !done || !step.Last() || !step.TerminalStateReached() {
		t.Error("terminal row did not end the episode")
	}
	if step.Discount != 0 {
		t.Errorf("terminal discount = %v, want 0", step.Discount)
	}
	if step.Info[EpisodeRewardKey] != 1 {
		t.Errorf("episode reward = %v, want 1 (1 - 1 + 1)",
			step.Info[EpisodeRewardKey])
	}
	if e.EpisodeLength() != 3 {
		t.Errorf("episode length = %v, want 3", e.EpisodeLength())
	}

	// Cursor does not re-randomize on terminal
	if e.Cursor() != 5 {
		t.Errorf("cursor after terminal = %v, want 5", e.Cursor())
	}
}

func TestStepBeforeReset(t *testing.T) {
	e, err := New(newData(t, 5, nil), 0.99, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Step(nil); err == nil {
		t.Error("expected error stepping before reset")
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil, 0.99, 0); err == nil {
		t.Error("expected error for nil dataset")
	}
	if _, err := New(newData(t, 5, nil), 1.5, 0); err == nil {
		t.Error("expected error for discount > 1")
	}
}

func TestSpecs(t *testing.T) {
	e, err := New(newData(t, 5, nil), 0.99, 0)
	if err != nil {
		t.Fatal(err)
	}

	if e.ObservationSpec().Shape.Len() != 2 {
		t.Errorf("observation dims = %v, want 2",
			e.ObservationSpec().Shape.Len())
	}
	a := e.ActionSpec()
	if a.Shape.Len() != 1 || a.LowerBound.AtVec(0) != -1 ||
		a.UpperBound.AtVec(0) != 1 {
		t.Error("action spec should be one dimension in [-1, 1]")
	}
}
