package experiment

import (
	"testing"

	"github.com/samuelfneumann/offlinedose/dataset"
	"github.com/samuelfneumann/offlinedose/environment/offline"
	ts "github.com/samuelfneumann/offlinedose/timestep"
	"gonum.org/v1/gonum/mat"
)

// countingAgent is an agent that always selects the zero action and
// counts the calls made to it
type countingAgent struct {
	t *testing.T

	firsts, observes, steps, ends int
	added                         []ts.Transition
}

func (c *countingAgent) SelectAction(ts.TimeStep) *mat.VecDense {
	return mat.NewVecDense(1, nil)
}

func (c *countingAgent) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		c.t.Errorf("ObserveFirst called with %v timestep", t.StepType)
	}
	c.firsts++
	return nil
}

func (c *countingAgent) Observe(*mat.VecDense, ts.TimeStep) error {
	c.observes++
	return nil
}

func (c *countingAgent) Step() error {
	c.steps++
	return nil
}

func (c *countingAgent) EndEpisode() { c.ends++ }
func (c *countingAgent) Eval()       {}
func (c *countingAgent) Train()      {}
func (c *countingAgent) IsEval() bool {
	return false
}

func (c *countingAgent) AddTransition(t ts.Transition) error {
	c.added = append(c.added, t)
	return nil
}

// periodicData returns n rows with reward 1 whose every fifth row is
// terminal
func periodicData(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	states := make([][]float64, n)
	actions := make([]float64, n)
	rewards := make([]float64, n)
	terminals := make([]float64, n)
	for i := range states {
		states[i] = []float64{float64(i)}
		rewards[i] = 1
		if i%5 == 4 {
			terminals[i] = 1
		}
	}

	d, err := dataset.New(states, actions, rewards, terminals,
		dataset.DefaultTerminalFallback)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestOnlineIterate(t *testing.T) {
	e, err := offline.New(periodicData(t, 50), 0.99, 1)
	if err != nil {
		t.Fatal(err)
	}
	a := &countingAgent{t: t}
	o, err := NewOnline(e, a, 100, 100)
	if err != nil {
		t.Fatal(err)
	}

	m, err := o.Iterate()
	if err != nil {
		t.Fatal(err)
	}

	if m.EnvStepsLifetime != 100 {
		t.Errorf("lifetime steps: want(100) have(%v)", m.EnvStepsLifetime)
	}
	if a.observes != 100 || a.steps != 100 {
		t.Errorf("agent observed %v and stepped %v times, want 100",
			a.observes, a.steps)
	}
	if a.ends != m.EpisodesThisIter || a.firsts < a.ends {
		t.Errorf("episode bookkeeping: %v firsts, %v ends, %v episodes",
			a.firsts, a.ends, m.EpisodesThisIter)
	}

	// Each episode ends within 5 steps, and rewards are 1 per step
	if m.EpisodesThisIter < 20 {
		t.Errorf("episodes: want >= 20 have(%v)", m.EpisodesThisIter)
	}
	if m.EpisodeRewardMean != m.EpisodeLenMean {
		t.Errorf("mean reward %v != mean length %v", m.EpisodeRewardMean,
			m.EpisodeLenMean)
	}
	if m.EpisodeLenMean < 1 || m.EpisodeLenMean > 5 {
		t.Errorf("mean length %v outside [1, 5]", m.EpisodeLenMean)
	}

	m, err = o.Iterate()
	if err != nil {
		t.Fatal(err)
	}
	if m.EnvStepsLifetime != 200 {
		t.Errorf("lifetime steps: want(200) have(%v)", m.EnvStepsLifetime)
	}
	if len(o.Returns()) != len(o.Lengths()) {
		t.Errorf("%v returns but %v lengths", len(o.Returns()),
			len(o.Lengths()))
	}
}

func TestWindowMean(t *testing.T) {
	tests := []struct {
		data   []float64
		window int
		want   float64
	}{
		{nil, 100, 0},
		{[]float64{1, 2, 3}, 100, 2},
		{[]float64{1, 2, 3, 4, 5}, 2, 4.5},
		{[]float64{-1}, 1, -1},
	}

	for _, test := range tests {
		if got := windowMean(test.data, test.window); got != test.want {
			t.Errorf("windowMean(%v, %v): want(%v) have(%v)", test.data,
				test.window, test.want, got)
		}
	}
}

func TestNewOnlineErrors(t *testing.T) {
	e, err := offline.New(periodicData(t, 5), 0.99, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewOnline(e, &countingAgent{t: t}, 0, 1); err == nil {
		t.Error("expected error for zero steps per iteration")
	}
	if _, err := NewOnline(e, &countingAgent{t: t}, 1, 0); err == nil {
		t.Error("expected error for zero metrics window")
	}
}

func TestPrefill(t *testing.T) {
	d := periodicData(t, 10)
	a := &countingAgent{t: t}

	n, err := Prefill(a, d, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 || len(a.added) != 10 {
		t.Fatalf("prefilled %v transitions, want 10", len(a.added))
	}
	if a.added[4].Discount != 0 || a.added[3].Discount != 0.9 {
		t.Errorf("unexpected discounts %v and %v", a.added[4].Discount,
			a.added[3].Discount)
	}
}
