package sac

import (
	"fmt"

	"github.com/samuelfneumann/offlinedose/expreplay"
	"github.com/samuelfneumann/offlinedose/initwfn"
	"github.com/samuelfneumann/offlinedose/network"
	"github.com/samuelfneumann/offlinedose/solver"
)

// Config implements a configuration of the SAC agent
type Config struct {
	// Policy network: a tree MLP with these root layers and one linear
	// head each for the mean and log standard deviation
	PolicyLayers      []int
	PolicyBiases      []bool
	PolicyActivations []*network.Activation

	// Each of the twin critic networks
	ValueFnLayers      []int
	ValueFnBiases      []bool
	ValueFnActivations []*network.Activation

	InitWFn       *initwfn.InitWFn
	PolicySolver  *solver.Solver
	ValueFnSolver *solver.Solver
	AlphaSolver   *solver.Solver

	// Replay buffer; ExpReplay.SampleSize is the train batch size and
	// no updates happen until ExpReplay.MinReplayCapacity transitions
	// have been observed
	ExpReplay expreplay.Config

	Tau                  float64 // Polyak coefficient of target critics
	TargetUpdateInterval int     // Gradient steps between target updates
	GradientSteps        int     // Gradient steps per call to Step()

	InitAlpha         float64
	AutoTargetEntropy bool    // If true, target entropy is -|A|
	TargetEntropy     float64 // Used if AutoTargetEntropy is false

	LogStdMin float64
	LogStdMax float64
}

// DefaultConfig returns the default SAC configuration: a [256, 256]
// tanh policy, [256, 256, 256] ReLU critics, learning rates of 3e-4,
// τ = 0.01, batches of 1024 from a prioritized replay buffer of 100000
// transitions, and 5000 transitions observed before learning starts.
func DefaultConfig() Config {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		panic(err)
	}

	return Config{
		PolicyLayers:      []int{256, 256},
		PolicyBiases:      []bool{true, true},
		PolicyActivations: []*network.Activation{network.TanH(), network.TanH()},

		ValueFnLayers: []int{256, 256, 256},
		ValueFnBiases: []bool{true, true, true},
		ValueFnActivations: []*network.Activation{network.ReLU(),
			network.ReLU(), network.ReLU()},

		InitWFn:       init,
		PolicySolver:  mustAdam(3e-4),
		ValueFnSolver: mustAdam(3e-4),
		AlphaSolver:   mustAdam(3e-4),

		ExpReplay: expreplay.Config{
			SampleMethod:      expreplay.Prioritized,
			SampleSize:        1024,
			MaxReplayCapacity: 100000,
			MinReplayCapacity: 5000,
			Alpha:             0.6,
			Beta:              0.4,
			BetaIncrement:     0.0,
			Epsilon:           1e-6,
		},

		Tau:                  0.01,
		TargetUpdateInterval: 1,
		GradientSteps:        1,

		InitAlpha:         1.0,
		AutoTargetEntropy: true,

		LogStdMin: -20,
		LogStdMax: 2,
	}
}

func mustAdam(stepSize float64) *solver.Solver {
	s, err := solver.NewDefaultAdam(stepSize, 1)
	if err != nil {
		panic(err)
	}
	return s
}

// BatchSize returns the number of transitions in each gradient step
func (c Config) BatchSize() int {
	return c.ExpReplay.SampleSize
}

// Validate checks that the configuration is legal
func (c Config) Validate() error {
	if len(c.PolicyLayers) == 0 {
		return fmt.Errorf("validate: policy must have at least one hidden " +
			"layer")
	}
	if len(c.PolicyLayers) != len(c.PolicyBiases) ||
		len(c.PolicyLayers) != len(c.PolicyActivations) {
		return fmt.Errorf("validate: policy must have one bias and one " +
			"activation per layer")
	}
	if len(c.ValueFnLayers) != len(c.ValueFnBiases) ||
		len(c.ValueFnLayers) != len(c.ValueFnActivations) {
		return fmt.Errorf("validate: critics must have one bias and one " +
			"activation per layer")
	}
	if c.InitWFn == nil || c.PolicySolver == nil ||
		c.ValueFnSolver == nil || c.AlphaSolver == nil {
		return fmt.Errorf("validate: InitWFn and solvers must be set")
	}
	if c.BatchSize() < 1 {
		return fmt.Errorf("validate: batch size must be >= 1")
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau must be in (0, 1]")
	}
	if c.TargetUpdateInterval < 1 || c.GradientSteps < 1 {
		return fmt.Errorf("validate: target update interval and gradient " +
			"steps must be >= 1")
	}
	if c.InitAlpha <= 0 {
		return fmt.Errorf("validate: initial alpha must be > 0")
	}
	if c.LogStdMin >= c.LogStdMax {
		return fmt.Errorf("validate: LogStdMin must be < LogStdMax")
	}
	return nil
}
