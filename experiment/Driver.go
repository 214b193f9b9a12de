package experiment

import (
	"context"
	"fmt"
	"log"

	"github.com/samuelfneumann/offlinedose/agent"
	"github.com/samuelfneumann/offlinedose/experiment/checkpointer"
	"github.com/samuelfneumann/offlinedose/utils/progressbar"
)

// State is a state of the training driver
type State int

const (
	Initializing State = iota
	Training
	Stopping
	Finalizing
	Done
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Training:
		return "Training"
	case Stopping:
		return "Stopping"
	case Finalizing:
		return "Finalizing"
	case Done:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StopReason describes why training ended
type StopReason int

const (
	BudgetExhausted StopReason = iota // All iterations were run
	EarlyStopped                      // No positive reward after the minimum iterations
	Interrupted                       // The context was cancelled
	Failed                            // An iteration or checkpoint failed
)

func (r StopReason) String() string {
	switch r {
	case BudgetExhausted:
		return "BudgetExhausted"
	case EarlyStopped:
		return "EarlyStopped"
	case Interrupted:
		return "Interrupted"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// Trainer runs one training iteration at a time
type Trainer interface {
	Iterate() (Metrics, error)
}

// Learner is the trained object: it can be checkpointed and its policy
// exported
type Learner interface {
	checkpointer.Serializable
	agent.PolicyExporter
}

// ExportError records a failure to export the policy at the end of
// training. It is reported on the Result but does not fail the run.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %v: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Result summarizes a training run
type Result struct {
	Iterations    int // Iterations completed
	Reason        StopReason
	BestReward    float64
	BestIteration int // -1 if no best checkpoint was written
	History       []Metrics

	FinalCheckpoint string // Empty if the final checkpoint failed
	PolicyPath      string // Empty if the export failed
	ExportErr       *ExportError
}

// DriverConfig configures a Driver
type DriverConfig struct {
	Iterations         int
	MinIterations      int
	CheckpointInterval int

	BestPath   string
	FinalPath  string
	PolicyPath string

	// PeriodicName returns the path of the next periodic checkpoint,
	// used when CheckpointInterval > 0
	PeriodicName func() string
}

// Driver runs training iterations and manages checkpoints. It moves
// through the states Initializing, Training, optionally Stopping, and
// Finalizing. Finalizing is always reached once training has started,
// whether training ran its full budget, stopped early, was
// interrupted, or failed.
type Driver struct {
	config  DriverConfig
	trainer Trainer
	learner Learner
	logger  *log.Logger
	bar     *progressbar.ManualProgressBar

	state State
}

// NewDriver returns a new Driver. If logger is nil, log.Default() is
// used.
func NewDriver(c DriverConfig, t Trainer, l Learner,
	logger *log.Logger) (*Driver, error) {
	if c.Iterations < 1 {
		return nil, fmt.Errorf("newDriver: iterations must be >= 1")
	}
	if c.BestPath == "" || c.FinalPath == "" || c.PolicyPath == "" {
		return nil, fmt.Errorf("newDriver: checkpoint and policy paths " +
			"must be set")
	}
	if c.CheckpointInterval > 0 && c.PeriodicName == nil {
		return nil, fmt.Errorf("newDriver: periodic checkpoints require " +
			"a filename function")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Driver{
		config:  c,
		trainer: t,
		learner: l,
		logger:  logger,
		state:   Initializing,
	}, nil
}

// WithProgressBar displays a progress bar of training iterations
func (d *Driver) WithProgressBar(bar *progressbar.ManualProgressBar) {
	d.bar = bar
}

// State returns the current state of the driver
func (d *Driver) State() State {
	return d.state
}

// Run trains until the iteration budget is exhausted, early stopping
// triggers, ctx is cancelled, or an iteration fails. Cancellation is
// only checked between iterations. In every case the final checkpoint
// is written and the policy exported before Run returns.
//
// Run returns an error if an iteration or checkpoint failed. A failed
// policy export is recorded on the Result only.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	if d.state != Initializing {
		return Result{}, fmt.Errorf("run: driver already run")
	}
	res := Result{Reason: BudgetExhausted, BestIteration: -1}

	best := checkpointer.NewBest(d.config.BestPath, d.learner)
	var periodic checkpointer.Checkpointer
	if d.config.CheckpointInterval > 0 {
		periodic = checkpointer.NewNStep(d.config.CheckpointInterval,
			d.learner, d.config.PeriodicName)
	}

	d.state = Training
	var runErr error
	var last Metrics
	for i := 0; i < d.config.Iterations && d.state == Training; i++ {
		if ctx.Err() != nil {
			d.logger.Println("Training interrupted")
			res.Reason = Interrupted
			break
		}

		m, err := d.trainer.Iterate()
		if err != nil {
			runErr = fmt.Errorf("run: iteration %v: %v", i, err)
			res.Reason = Failed
			break
		}
		last = m
		res.Iterations++
		res.History = append(res.History, m)

		d.logger.Printf("Iteration %v | Avg reward: %.4f | Avg length: %.2f "+
			"| Steps: %v", i, m.EpisodeRewardMean, m.EpisodeLenMean,
			m.EnvStepsLifetime)
		d.progress(m)

		if err := d.checkpoint(best, periodic, i, m); err != nil {
			runErr = fmt.Errorf("run: iteration %v: %v", i, err)
			res.Reason = Failed
			break
		}

		if EarlyStop(i, m.EpisodeRewardMean, d.config.MinIterations) {
			d.logger.Println("No reward improvement, early stopping")
			res.Reason = EarlyStopped
			d.state = Stopping
		}
	}
	res.BestReward, res.BestIteration = best.Reward()

	if err := d.finalize(&res, last); err != nil && runErr == nil {
		runErr = err
	}
	d.state = Done
	return res, runErr
}

// finalize writes the final checkpoint and exports the policy
func (d *Driver) finalize(res *Result, last Metrics) error {
	d.state = Finalizing
	if d.bar != nil {
		d.bar.Close()
	}

	var err error
	h := checkpointer.Header{
		Iteration: res.Iterations - 1,
		Reward:    last.EpisodeRewardMean,
	}
	if err = checkpointer.Save(d.config.FinalPath, h, d.learner); err != nil {
		err = fmt.Errorf("finalize: %v", err)
		d.logger.Printf("Failed to save final checkpoint: %v", err)
	} else {
		res.FinalCheckpoint = d.config.FinalPath
		d.logger.Printf("Final checkpoint saved to: %v", d.config.FinalPath)
	}

	if exportErr := d.learner.ExportPolicy(d.config.PolicyPath); exportErr != nil {
		res.ExportErr = &ExportError{Path: d.config.PolicyPath, Err: exportErr}
		d.logger.Printf("Failed to save policy model: %v", exportErr)
	} else {
		res.PolicyPath = d.config.PolicyPath
		d.logger.Printf("Policy model saved to: %v", d.config.PolicyPath)
	}

	return err
}

// checkpoint writes the best and periodic checkpoints due after an
// iteration
func (d *Driver) checkpoint(best *checkpointer.Best,
	periodic checkpointer.Checkpointer, iteration int, m Metrics) error {
	saved, err := best.Checkpoint(iteration, m.EpisodeRewardMean)
	if err != nil {
		return err
	}
	if saved {
		d.logger.Printf("Saved best checkpoint (reward=%.4f)",
			m.EpisodeRewardMean)
	}

	if periodic != nil {
		if _, err := periodic.Checkpoint(iteration, m.EpisodeRewardMean); err != nil {
			return err
		}
	}
	return nil
}

// progress updates the progress bar, if any
func (d *Driver) progress(m Metrics) {
	if d.bar == nil {
		return
	}
	d.bar.Increment()
	d.bar.SetStatus(fmt.Sprintf("reward=%.3f", m.EpisodeRewardMean))
	d.bar.Display()
}

// EarlyStop returns whether training should stop after the iteration
// with index iteration, given its mean episode reward. Training stops
// once iteration exceeds minIterations while the reward is not
// positive.
func EarlyStop(iteration int, reward float64, minIterations int) bool {
	return iteration > minIterations && reward <= 0
}
