package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelfneumann/offlinedose/agent/sac"
	"github.com/samuelfneumann/offlinedose/dataset"
	"github.com/samuelfneumann/offlinedose/experiment/tracker"
	"github.com/samuelfneumann/offlinedose/expreplay"
	"github.com/samuelfneumann/offlinedose/network"
)

// writeDataset writes a table of n rows with no terminal flags, whose
// rewards alternate between 1 and -1
func writeDataset(t *testing.T, n int) string {
	t.Helper()

	var b strings.Builder
	for c := 0; c < dataset.Columns; c++ {
		if c > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "col%d", c)
	}
	b.WriteString("\n")

	for i := 0; i < n; i++ {
		for c := 0; c < dataset.Features; c++ {
			fmt.Fprintf(&b, "%.3f,", float64((i+c)%17)/17)
		}
		reward := 1
		if i%2 == 1 {
			reward = -1
		}
		fmt.Fprintf(&b, "%.2f,%d,0\n", float64(i%10)/10-0.5, reward)
	}

	path := filepath.Join(t.TempDir(), "model-base.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func smallConfig(t *testing.T, data string) Config {
	c := DefaultConfig()
	c.DatasetPath = data
	c.CheckpointDir = filepath.Join(t.TempDir(), "checkpoints")
	c.Iterations = 3
	c.StepsPerIteration = 40
	c.Seed = 7

	c.Agent.PolicyLayers = []int{8}
	c.Agent.PolicyBiases = []bool{true}
	c.Agent.PolicyActivations = []*network.Activation{network.TanH()}
	c.Agent.ValueFnLayers = []int{8}
	c.Agent.ValueFnBiases = []bool{true}
	c.Agent.ValueFnActivations = []*network.Activation{network.ReLU()}
	c.Agent.ExpReplay.SampleSize = 8
	c.Agent.ExpReplay.MinReplayCapacity = 16
	c.Agent.ExpReplay.MaxReplayCapacity = 256
	return c
}

func TestExperimentEndToEnd(t *testing.T) {
	c := smallConfig(t, writeDataset(t, 2000))
	exp, err := New(c, silentLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer exp.Close()

	// No logged terminals: the last 1000 rows are marked terminal
	d := exp.Dataset()
	if d.Len() != 2000 || d.TerminalCount() != 1000 {
		t.Fatalf("dataset has %v rows and %v terminals, want 2000 and 1000",
			d.Len(), d.TerminalCount())
	}
	if !d.Terminal(1000) || d.Terminal(999) {
		t.Error("terminal fallback marked the wrong rows")
	}
	if d.MeanReward() != 0 {
		t.Errorf("mean reward: want(0) have(%v)", d.MeanReward())
	}

	res, err := exp.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Iterations != 3 || res.Reason != BudgetExhausted {
		t.Errorf("want 3 iterations (BudgetExhausted), have %v (%v)",
			res.Iterations, res.Reason)
	}
	if steps := res.History[2].EnvStepsLifetime; steps != 120 {
		t.Errorf("lifetime steps: want(120) have(%v)", steps)
	}
	if want := 120 - 16 + 1; exp.Agent().Updates() != want {
		t.Errorf("updates: want(%v) have(%v)", want, exp.Agent().Updates())
	}

	for _, path := range []string{c.BestPath(), c.FinalPath(), c.PolicyPath()} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing output: %v", err)
		}
	}
	if res.ExportErr != nil {
		t.Errorf("unexpected export error: %v", res.ExportErr)
	}

	paths, err := exp.SaveTrackers()
	if err != nil {
		t.Fatal(err)
	}
	returns, err := tracker.LoadData(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(returns) != len(exp.Trainer().Returns()) {
		t.Errorf("saved returns: want(%v) have(%v)",
			len(exp.Trainer().Returns()), len(returns))
	}

	p, err := sac.LoadPolicy(c.PolicyPath(), 1)
	if err != nil {
		t.Fatalf("could not load exported policy: %v", err)
	}
	p.Close()

	// Resume a new run from the final checkpoint
	c2 := c
	c2.CheckpointDir = filepath.Join(t.TempDir(), "resumed")
	resumed, err := New(c2, silentLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer resumed.Close()

	h, err := resumed.Resume(c.FinalPath())
	if err != nil {
		t.Fatal(err)
	}
	if h.Iteration != 2 {
		t.Errorf("final checkpoint iteration: want(2) have(%v)", h.Iteration)
	}
	if resumed.Agent().Updates() != exp.Agent().Updates() {
		t.Errorf("resumed updates: want(%v) have(%v)",
			exp.Agent().Updates(), resumed.Agent().Updates())
	}
}

func TestExperimentMissingDataset(t *testing.T) {
	c := smallConfig(t, filepath.Join(t.TempDir(), "missing.csv"))
	_, err := New(c, silentLogger())
	if err == nil {
		t.Fatal("expected error for missing dataset")
	}
	if !dataset.IsNotExist(err) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, have %v", err)
	}
	if _, statErr := os.Stat(c.CheckpointDir); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("checkpoint directory created despite failed load")
	}
}

func TestLoadConfig(t *testing.T) {
	c := DefaultConfig()
	c.Iterations = 7
	c.Agent.ExpReplay.SampleMethod = expreplay.Uniform
	c.Agent.PolicyLayers = []int{64, 64}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Iterations != 7 || loaded.MinIterations != 20 {
		t.Errorf("iterations: want(7, 20) have(%v, %v)", loaded.Iterations,
			loaded.MinIterations)
	}
	if loaded.Agent.ExpReplay.SampleMethod != expreplay.Uniform {
		t.Errorf("sample method: want(%v) have(%v)", expreplay.Uniform,
			loaded.Agent.ExpReplay.SampleMethod)
	}
	if len(loaded.Agent.PolicyLayers) != 2 || loaded.Agent.PolicyLayers[0] != 64 {
		t.Errorf("policy layers: have %v", loaded.Agent.PolicyLayers)
	}
	if loaded.Agent.PolicySolver == nil || loaded.Agent.InitWFn == nil {
		t.Error("solver or weight initializer not decoded")
	}
}

func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"Iterations": 5}`), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Iterations != 5 || c.StepsPerIteration != DefaultConfig().StepsPerIteration {
		t.Errorf("unexpected config %+v", c)
	}

	if err := os.WriteFile(path, []byte(`{"Iterations": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.DatasetPath != "model-base.csv" {
		t.Errorf("dataset path: want(model-base.csv) have(%v)", c.DatasetPath)
	}
	if c.Iterations != 100 || c.MinIterations != 20 {
		t.Errorf("iterations: want(100, 20) have(%v, %v)", c.Iterations,
			c.MinIterations)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}
