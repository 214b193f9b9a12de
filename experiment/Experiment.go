// Package experiment implements functionality for running a training
// run: the online trainer, the driver managing iterations and
// checkpoints, and their configuration
package experiment

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/offlinedose/agent/sac"
	"github.com/samuelfneumann/offlinedose/dataset"
	"github.com/samuelfneumann/offlinedose/environment/offline"
	"github.com/samuelfneumann/offlinedose/experiment/checkpointer"
	"github.com/samuelfneumann/offlinedose/experiment/tracker"
	"github.com/samuelfneumann/offlinedose/utils/progressbar"
)

// Experiment is a complete training run of a SAC agent on the replay
// environment of a logged dataset
type Experiment struct {
	config Config
	logger *log.Logger

	data    *dataset.Dataset
	env     *offline.Env
	agent   *sac.SAC
	trainer *Online
	driver  *Driver
}

// New loads the dataset named by c and sets up a training run. An
// error loading the dataset is returned unchanged apart from wrapping,
// so that dataset.IsNotExist and the other predicates apply.
func New(c Config, logger *log.Logger) (*Experiment, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	data, err := dataset.Load(c.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	logger.Printf("Loaded %v", data)

	if err := os.MkdirAll(c.CheckpointDir, 0o755); err != nil {
		return nil, fmt.Errorf("new: could not create checkpoint "+
			"directory: %w", err)
	}

	e, err := offline.New(data, c.Discount, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	a, err := sac.New(e, c.Agent, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create agent: %v", err)
	}

	if c.Prefill {
		n, err := Prefill(a, data, c.Discount)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("new: %v", err)
		}
		logger.Printf("Prefilled replay buffer with %v transitions", n)
	}

	trainer, err := NewOnline(e, a, c.StepsPerIteration, c.MetricsWindow)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("new: %v", err)
	}

	dc := DriverConfig{
		Iterations:         c.Iterations,
		MinIterations:      c.MinIterations,
		CheckpointInterval: c.CheckpointInterval,
		BestPath:           c.BestPath(),
		FinalPath:          c.FinalPath(),
		PolicyPath:         c.PolicyPath(),
		PeriodicName: checkpointer.FilenameEnumerator(0,
			filepath.Join(c.CheckpointDir, "iter"), ".ckpt"),
	}
	driver, err := NewDriver(dc, trainer, a, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("new: %v", err)
	}
	if c.ProgressBar {
		driver.WithProgressBar(progressbar.NewManualProgressBar(os.Stderr,
			40, c.Iterations))
	}

	return &Experiment{
		config:  c,
		logger:  logger,
		data:    data,
		env:     e,
		agent:   a,
		trainer: trainer,
		driver:  driver,
	}, nil
}

// Resume restores the agent from the checkpoint at path
func (e *Experiment) Resume(path string) (checkpointer.Header, error) {
	h, err := checkpointer.Load(path, e.agent)
	if err != nil {
		return h, fmt.Errorf("resume: %w", err)
	}
	e.logger.Printf("Resumed from %v (iteration %v, reward %.4f)", path,
		h.Iteration, h.Reward)
	return h, nil
}

// Run runs the training driver, see Driver.Run
func (e *Experiment) Run(ctx context.Context) (Result, error) {
	return e.driver.Run(ctx)
}

// SaveTrackers writes the episode returns and lengths recorded during
// training to the checkpoint directory and returns the files written
func (e *Experiment) SaveTrackers() ([]string, error) {
	files := []struct {
		name string
		t    tracker.Tracker
	}{
		{"returns.bin", e.trainer.returns},
		{"lengths.bin", e.trainer.lengths},
	}

	var paths []string
	for _, f := range files {
		path := filepath.Join(e.config.CheckpointDir, f.name)
		if err := f.t.Save(path); err != nil {
			return paths, fmt.Errorf("saveTrackers: %v", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Agent returns the agent being trained
func (e *Experiment) Agent() *sac.SAC {
	return e.agent
}

// Trainer returns the online trainer
func (e *Experiment) Trainer() *Online {
	return e.trainer
}

// Dataset returns the logged dataset
func (e *Experiment) Dataset() *dataset.Dataset {
	return e.data
}

// Close releases the resources of the agent
func (e *Experiment) Close() error {
	return e.agent.Close()
}
