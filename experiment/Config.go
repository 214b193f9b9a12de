package experiment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/offlinedose/agent/sac"
)

// Config represents a configuration of a training run
type Config struct {
	DatasetPath   string // CSV file of logged transitions
	CheckpointDir string // Directory holding checkpoints and the policy
	PolicyFile    string // Name of the exported policy in CheckpointDir

	Iterations         int // Maximum number of training iterations
	MinIterations      int // Iterations before early stopping may occur
	StepsPerIteration  int // Environment steps per iteration
	MetricsWindow      int // Completed episodes averaged in metrics
	CheckpointInterval int // Periodic checkpoints, 0 to disable
	ProgressBar        bool

	Seed     uint64
	Discount float64

	// Prefill adds every logged transition to the replay buffer before
	// training starts
	Prefill bool

	Agent sac.Config
}

// DefaultConfig returns the default training configuration: 100
// iterations of 1000 environment steps, early stopping allowed after
// iteration 20, metrics averaged over the last 100 episodes, and
// checkpoints written to ./checkpoints
func DefaultConfig() Config {
	return Config{
		DatasetPath:       "model-base.csv",
		CheckpointDir:     "checkpoints",
		PolicyFile:        "policy_model.gob",
		Iterations:        100,
		MinIterations:     20,
		StepsPerIteration: 1000,
		MetricsWindow:     100,
		Seed:              0,
		Discount:          0.99,
		Agent:             sac.DefaultConfig(),
	}
}

// LoadConfig reads a JSON configuration from path. Fields missing from
// the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loadConfig: %w", err)
	}

	c := DefaultConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("loadConfig: could not decode %v: %v",
			path, err)
	}
	return c, c.Validate()
}

// Validate checks that the configuration is legal
func (c Config) Validate() error {
	if c.DatasetPath == "" || c.CheckpointDir == "" || c.PolicyFile == "" {
		return fmt.Errorf("validate: dataset path, checkpoint directory, " +
			"and policy file must be set")
	}
	if c.Iterations < 1 || c.StepsPerIteration < 1 || c.MetricsWindow < 1 {
		return fmt.Errorf("validate: iterations, steps per iteration, and " +
			"metrics window must be >= 1")
	}
	if c.MinIterations < 0 || c.CheckpointInterval < 0 {
		return fmt.Errorf("validate: minimum iterations and checkpoint " +
			"interval must be >= 0")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1]")
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("validate: agent: %v", err)
	}
	return nil
}

// BestPath returns the path of the best checkpoint
func (c Config) BestPath() string {
	return filepath.Join(c.CheckpointDir, "best.ckpt")
}

// FinalPath returns the path of the checkpoint written at exit
func (c Config) FinalPath() string {
	return filepath.Join(c.CheckpointDir, "final.ckpt")
}

// PolicyPath returns the path of the exported policy
func (c Config) PolicyPath() string {
	return filepath.Join(c.CheckpointDir, c.PolicyFile)
}
