package experiment

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/samuelfneumann/offlinedose/experiment/checkpointer"
)

// mockLearner is a Learner whose state is a single integer
type mockLearner struct {
	value     int
	exportErr error
	exported  []string
}

func (m *mockLearner) GobEncode() ([]byte, error) {
	return []byte(strconv.Itoa(m.value)), nil
}

func (m *mockLearner) GobDecode(in []byte) error {
	v, err := strconv.Atoi(string(in))
	m.value = v
	return err
}

func (m *mockLearner) ExportPolicy(path string) error {
	if m.exportErr != nil {
		return m.exportErr
	}
	m.exported = append(m.exported, path)
	return os.WriteFile(path, []byte("policy"), 0o644)
}

// mockTrainer returns preset rewards, setting the learner's value to
// the iteration index
type mockTrainer struct {
	rewards []float64
	learner *mockLearner
	calls   int

	failAt   int // Iteration returning an error, -1 for none
	cancelAt int // Iteration after which cancel is called, -1 for none
	cancel   context.CancelFunc
}

func (m *mockTrainer) Iterate() (Metrics, error) {
	i := m.calls
	m.calls++
	if i == m.failAt {
		return Metrics{}, errors.New("iteration failed")
	}
	if i == m.cancelAt && m.cancel != nil {
		defer m.cancel()
	}

	m.learner.value = i
	r := 0.0
	if i < len(m.rewards) {
		r = m.rewards[i]
	}
	return Metrics{EpisodeRewardMean: r, EnvStepsLifetime: 10 * (i + 1)}, nil
}

func newMocks(rewards ...float64) (*mockTrainer, *mockLearner) {
	l := &mockLearner{}
	return &mockTrainer{rewards: rewards, learner: l, failAt: -1,
		cancelAt: -1}, l
}

func testDriverConfig(t *testing.T, iterations int) DriverConfig {
	dir := t.TempDir()
	return DriverConfig{
		Iterations:    iterations,
		MinIterations: 20,
		BestPath:      filepath.Join(dir, "best.ckpt"),
		FinalPath:     filepath.Join(dir, "final.ckpt"),
		PolicyPath:    filepath.Join(dir, "policy_model.gob"),
	}
}

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestDriver(t *testing.T, c DriverConfig, tr Trainer,
	l Learner) *Driver {
	t.Helper()
	d, err := NewDriver(c, tr, l, silentLogger())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// loadValue returns the learner value and header stored at path
func loadValue(t *testing.T, path string) (int, checkpointer.Header) {
	t.Helper()
	var l mockLearner
	h, err := checkpointer.Load(path, &l)
	if err != nil {
		t.Fatalf("could not load %v: %v", path, err)
	}
	return l.value, h
}

func TestDriverKeepsOnlyBest(t *testing.T) {
	tr, l := newMocks(1, 3, 2, 3, 0.5)
	c := testDriverConfig(t, 5)
	d := newTestDriver(t, c, tr, l)

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if res.Iterations != 5 || res.Reason != BudgetExhausted {
		t.Errorf("want 5 iterations and budget exhausted, have %v and %v",
			res.Iterations, res.Reason)
	}
	if res.BestReward != 3 || res.BestIteration != 1 {
		t.Errorf("best: want(3 at 1) have(%v at %v)", res.BestReward,
			res.BestIteration)
	}

	value, h := loadValue(t, c.BestPath)
	if value != 1 || h.Iteration != 1 || h.Reward != 3 {
		t.Errorf("best checkpoint holds iteration %v (value %v, reward %v), "+
			"want iteration 1 with reward 3", h.Iteration, value, h.Reward)
	}

	value, h = loadValue(t, c.FinalPath)
	if value != 4 || h.Iteration != 4 {
		t.Errorf("final checkpoint holds value %v iteration %v, want 4",
			value, h.Iteration)
	}
	if res.PolicyPath != c.PolicyPath || len(l.exported) != 1 {
		t.Errorf("policy not exported: %+v", res)
	}
	if d.State() != Done {
		t.Errorf("state: want(%v) have(%v)", Done, d.State())
	}
}

func TestDriverEarlyStop(t *testing.T) {
	tests := []struct {
		name     string
		rewards  []float64
		wantIter int
		reason   StopReason
	}{
		// Rewards are 0 from the first iteration: only stops after 21
		{"zero", nil, 22, EarlyStopped},
		{"positive", repeat(1, 30), 30, BudgetExhausted},
		{"turnsNegative", append(repeat(1, 25), -1), 26, EarlyStopped},
		{"negativeEarly", append(repeat(-1, 21), repeat(1, 9)...), 30,
			BudgetExhausted},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tr, l := newMocks(test.rewards...)
			d := newTestDriver(t, testDriverConfig(t, 30), tr, l)

			res, err := d.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.Iterations != test.wantIter || res.Reason != test.reason {
				t.Errorf("want %v iterations (%v), have %v (%v)",
					test.wantIter, test.reason, res.Iterations, res.Reason)
			}
			if res.FinalCheckpoint == "" {
				t.Error("final checkpoint not written")
			}
		})
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestEarlyStop(t *testing.T) {
	tests := []struct {
		iteration int
		reward    float64
		want      bool
	}{
		{0, -5, false},
		{20, 0, false},
		{20, -1, false},
		{21, 0, true},
		{21, -0.1, true},
		{21, 0.1, false},
		{99, 0, true},
	}

	for _, test := range tests {
		if got := EarlyStop(test.iteration, test.reward, 20); got != test.want {
			t.Errorf("EarlyStop(%v, %v): want(%v) have(%v)", test.iteration,
				test.reward, test.want, got)
		}
	}
}

func TestDriverInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, l := newMocks(repeat(1, 10)...)
	tr.cancelAt = 2
	tr.cancel = cancel
	c := testDriverConfig(t, 10)
	d := newTestDriver(t, c, tr, l)

	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("interruption should not be an error: %v", err)
	}
	if res.Reason != Interrupted || res.Iterations != 3 {
		t.Errorf("want 3 iterations (Interrupted), have %v (%v)",
			res.Iterations, res.Reason)
	}

	value, _ := loadValue(t, c.FinalPath)
	if value != 2 {
		t.Errorf("final checkpoint value: want(2) have(%v)", value)
	}
	if _, err := os.Stat(c.PolicyPath); err != nil {
		t.Errorf("policy not exported: %v", err)
	}
}

func TestDriverCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr, l := newMocks(1)
	c := testDriverConfig(t, 10)
	res, err := newTestDriver(t, c, tr, l).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tr.calls != 0 || res.Iterations != 0 {
		t.Errorf("no iterations should run, ran %v", tr.calls)
	}
	if res.FinalCheckpoint != c.FinalPath {
		t.Error("final checkpoint not written")
	}
	if _, err := os.Stat(c.BestPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("best checkpoint should not exist: %v", err)
	}
}

func TestDriverExportFailureNotFatal(t *testing.T) {
	tr, l := newMocks(1, 2)
	exportErr := errors.New("disk full")
	l.exportErr = exportErr
	c := testDriverConfig(t, 2)

	res, err := newTestDriver(t, c, tr, l).Run(context.Background())
	if err != nil {
		t.Fatalf("export failure should not fail the run: %v", err)
	}
	if res.ExportErr == nil || !errors.Is(res.ExportErr, exportErr) {
		t.Fatalf("export error not recorded: %v", res.ExportErr)
	}
	if res.ExportErr.Path != c.PolicyPath || res.PolicyPath != "" {
		t.Errorf("unexpected export result: %+v", res)
	}
	if res.FinalCheckpoint != c.FinalPath {
		t.Error("final checkpoint not written")
	}
}

func TestDriverIterationError(t *testing.T) {
	tr, l := newMocks(1, 2, 3)
	tr.failAt = 2
	c := testDriverConfig(t, 3)

	res, err := newTestDriver(t, c, tr, l).Run(context.Background())
	if err == nil {
		t.Fatal("expected iteration error")
	}
	if res.Reason != Failed || res.Iterations != 2 {
		t.Errorf("want 2 iterations (Failed), have %v (%v)", res.Iterations,
			res.Reason)
	}
	if value, _ := loadValue(t, c.FinalPath); value != 1 {
		t.Errorf("final checkpoint value: want(1) have(%v)", value)
	}
}

func TestDriverPeriodicCheckpoints(t *testing.T) {
	tr, l := newMocks(1, 1, 1, 1)
	c := testDriverConfig(t, 4)
	dir := filepath.Dir(c.BestPath)
	c.CheckpointInterval = 2
	c.PeriodicName = checkpointer.FilenameEnumerator(0,
		filepath.Join(dir, "iter"), ".ckpt")

	if _, err := newTestDriver(t, c, tr, l).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for file, want := range map[string]int{"iter1.ckpt": 1, "iter2.ckpt": 3} {
		if value, _ := loadValue(t, filepath.Join(dir, file)); value != want {
			t.Errorf("%v: want(%v) have(%v)", file, want, value)
		}
	}
}

func TestDriverRunOnce(t *testing.T) {
	tr, l := newMocks(1)
	d := newTestDriver(t, testDriverConfig(t, 1), tr, l)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Run(context.Background()); err == nil {
		t.Error("expected error running driver twice")
	}
}

func TestNewDriverErrors(t *testing.T) {
	tr, l := newMocks()
	c := testDriverConfig(t, 0)
	if _, err := NewDriver(c, tr, l, nil); err == nil {
		t.Error("expected error for zero iterations")
	}

	c = testDriverConfig(t, 1)
	c.CheckpointInterval = 1
	if _, err := NewDriver(c, tr, l, nil); err == nil {
		t.Error("expected error for periodic checkpoints without names")
	}
}
