// Package agent defines the interfaces between learners, their policies,
// and the loops that drive them
package agent

import (
	"github.com/samuelfneumann/offlinedose/network"
	"github.com/samuelfneumann/offlinedose/timestep"
	"gonum.org/v1/gonum/mat"
)

// Agent pairs a Learner with the Policy it improves. Actions chosen by
// the Policy are fed back to the Learner through Observe.
type Agent interface {
	Learner
	Policy
}

// Closer is an Agent holding resources, such as Gorgonia VMs, that must
// be released
type Closer interface {
	Agent
	Close() error
}

// Learner consumes experience and updates weights
type Learner interface {
	Step() error // Update, if enough experience is available
	Observe(action *mat.VecDense, next timestep.TimeStep) error
	ObserveFirst(timestep.TimeStep) error
	EndEpisode()
}

// Policy selects actions. In evaluation mode a stochastic policy acts
// greedily.
type Policy interface {
	SelectAction(t timestep.TimeStep) *mat.VecDense
	Eval()
	Train()
	IsEval() bool
}

// NNPolicy is a Policy computed by a neural network
type NNPolicy interface {
	Policy
	Network() network.NeuralNet
	Close() error
}

// PolicyExporter is an agent whose policy weights can be written to a
// file independently of the rest of its state
type PolicyExporter interface {
	ExportPolicy(path string) error
}
