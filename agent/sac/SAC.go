// Package sac implements the Soft Actor-Critic algorithm with twin
// critics, Polyak-averaged target critics, and a learned entropy
// temperature
package sac

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"github.com/samuelfneumann/offlinedose/agent"
	"github.com/samuelfneumann/offlinedose/environment"
	"github.com/samuelfneumann/offlinedose/expreplay"
	"github.com/samuelfneumann/offlinedose/network"
	ts "github.com/samuelfneumann/offlinedose/timestep"
	"github.com/samuelfneumann/offlinedose/utils/op"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// critic is one of the twin Q networks together with the nodes of its
// squared TD error loss
type critic struct {
	net     network.NeuralNet // Input: [state, action]
	target  *G.Node           // Regression targets y
	weights *G.Node           // Importance sampling weights
	loss    *G.Node
	vm      G.VM
	solver  G.Solver

	targetNet network.NeuralNet
	targetVM  G.VM
}

// SAC implements the Soft Actor-Critic algorithm. The critics minimize
//
//	w · (Q(s, a) - (r + γ(min Q'(s', a') - α log π(a'|s'))))²
//
// where w are the replay importance sampling weights and a' ~ π(s').
// The policy minimizes α log π(ã|s) - min Q(s, ã) with ã ~ π(s) sampled
// by reparameterization, and log α is trained so that the policy
// entropy tracks the target entropy.
type SAC struct {
	behaviour *GaussianPolicy // Acts in the environment, batch size 1

	// Policy being trained and the copies of the critics it is
	// evaluated with
	policy        *GaussianPolicy
	policyCritics []network.NeuralNet
	alpha         *G.Node
	policyLoss    *G.Node
	policyVM      G.VM
	policySolver  G.Solver

	// Samples the next actions used in critic targets
	nextPolicy   *GaussianPolicy
	nextPolicyVM G.VM

	critics []*critic

	logAlpha      *G.Node
	entropyGap    *G.Node
	alphaVM       G.VM
	alphaSolver   G.Solver
	targetEntropy float64

	replay   expreplay.ExperienceReplayer
	prevStep ts.TimeStep

	tau                  float64
	targetUpdateInterval int
	gradientSteps        int
	updates              int

	features   int
	actionDims int
	batchSize  int
}

// New creates and returns a new SAC agent acting in an environment with
// the observation and action specifications of env
func New(env environment.Environment, c Config, seed uint64) (*SAC, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("new: SAC requires continuous actions")
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	batch := c.BatchSize()
	init := c.InitWFn.InitWFn()

	replay, err := c.ExpReplay.Create(features, actionDims, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create replay buffer: %v", err)
	}

	behaviour, err := NewGaussianPolicy(features, actionDims, c.PolicyLayers,
		c.PolicyBiases, c.PolicyActivations, init, c.LogStdMin, c.LogStdMax,
		seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour policy: %v",
			err)
	}

	agent := &SAC{
		behaviour:            behaviour,
		replay:               replay,
		tau:                  c.Tau,
		targetUpdateInterval: c.TargetUpdateInterval,
		gradientSteps:        c.GradientSteps,
		features:             features,
		actionDims:           actionDims,
		batchSize:            batch,
		targetEntropy:        c.TargetEntropy,
	}
	if c.AutoTargetEntropy {
		agent.targetEntropy = -float64(actionDims)
	}

	for i := 0; i < 2; i++ {
		cr, err := newCritic(features, actionDims, batch, c, init)
		if err != nil {
			return nil, fmt.Errorf("new: could not create critic %v: %v", i,
				err)
		}
		agent.critics = append(agent.critics, cr)
	}

	if err := agent.buildPolicyUpdate(c, seed+1); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := agent.buildNextPolicy(c, seed+2); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := agent.buildAlphaUpdate(c); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return agent, nil
}

// newCritic creates a Q network with its loss and a target network
func newCritic(features, actionDims, batch int, c Config,
	init G.InitWFn) (*critic, error) {
	g := G.NewGraph()
	net, err := network.NewMultiHeadMLP(features+actionDims, batch, 1, g,
		c.ValueFnLayers, c.ValueFnBiases, init, c.ValueFnActivations)
	if err != nil {
		return nil, err
	}

	target := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, 1),
		G.WithName("target"), G.WithInit(G.Zeroes()))
	weights := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, 1),
		G.WithName("isWeights"), G.WithInit(G.Ones()))

	diff := G.Must(G.Sub(net.Prediction()[0], target))
	loss := G.Must(G.HadamardProd(weights, G.Must(G.Square(diff))))
	loss = G.Must(G.Mean(loss))

	if _, err := G.Grad(loss, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("could not compute gradient: %v", err)
	}

	targetNet, err := net.Clone()
	if err != nil {
		return nil, fmt.Errorf("could not create target network: %v", err)
	}

	return &critic{
		net:       net,
		target:    target,
		weights:   weights,
		loss:      loss,
		vm:        G.NewTapeMachine(g, G.BindDualValues(net.Learnables()...)),
		solver:    c.ValueFnSolver.Config.Create(),
		targetNet: targetNet,
		targetVM:  G.NewTapeMachine(targetNet.Graph()),
	}, nil
}

// buildPolicyUpdate creates the graph of the policy loss
func (s *SAC) buildPolicyUpdate(c Config, seed uint64) error {
	g := G.NewGraph()
	states := G.NewMatrix(g, tensor.Float64,
		G.WithShape(s.batchSize, s.features), G.WithName("states"),
		G.WithInit(G.Zeroes()))

	policy, err := s.behaviour.cloneWithInput(states, c.LogStdMin,
		c.LogStdMax, seed)
	if err != nil {
		return fmt.Errorf("could not create policy: %v", err)
	}
	s.policy = policy

	qs := make([]*G.Node, len(s.critics))
	s.policyCritics = make([]network.NeuralNet, len(s.critics))
	for i, cr := range s.critics {
		s.policyCritics[i], err = cr.net.CloneWithInputTo(1,
			[]*G.Node{states, policy.action}, g)
		if err != nil {
			return fmt.Errorf("could not copy critic %v to policy graph: %v",
				i, err)
		}
		qs[i] = s.policyCritics[i].Prediction()[0]
	}
	minQ := G.Must(G.Ravel(op.Min(qs[0], qs[1])))

	s.alpha = G.NewScalar(g, tensor.Float64, G.WithName("alpha"),
		G.WithValue(c.InitAlpha))
	loss := G.Must(G.HadamardProd(s.alpha, policy.logProb))
	loss = G.Must(G.Sub(loss, minQ))
	s.policyLoss = G.Must(G.Mean(loss))

	learnables := policy.Network().Learnables()
	if _, err := G.Grad(s.policyLoss, learnables...); err != nil {
		return fmt.Errorf("could not compute policy gradient: %v", err)
	}

	s.policyVM = G.NewTapeMachine(g, G.BindDualValues(learnables...))
	s.policySolver = c.PolicySolver.Config.Create()
	return nil
}

// buildNextPolicy creates the policy used to sample next actions
func (s *SAC) buildNextPolicy(c Config, seed uint64) error {
	g := G.NewGraph()
	states := G.NewMatrix(g, tensor.Float64,
		G.WithShape(s.batchSize, s.features), G.WithName("nextStates"),
		G.WithInit(G.Zeroes()))

	policy, err := s.behaviour.cloneWithInput(states, c.LogStdMin,
		c.LogStdMax, seed)
	if err != nil {
		return fmt.Errorf("could not create next action policy: %v", err)
	}

	s.nextPolicy = policy
	s.nextPolicyVM = G.NewTapeMachine(g)
	return nil
}

// buildAlphaUpdate creates the graph of the temperature loss
// -log α · (E[log π] + target entropy)
func (s *SAC) buildAlphaUpdate(c Config) error {
	g := G.NewGraph()

	logAlpha := tensor.New(tensor.WithShape(1),
		tensor.WithBacking([]float64{math.Log(c.InitAlpha)}))
	s.logAlpha = G.NewVector(g, tensor.Float64, G.WithShape(1),
		G.WithName("logAlpha"), G.WithValue(logAlpha))
	s.entropyGap = G.NewVector(g, tensor.Float64, G.WithShape(1),
		G.WithName("entropyGap"), G.WithInit(G.Zeroes()))

	loss := G.Must(G.HadamardProd(s.logAlpha, s.entropyGap))
	loss = G.Must(G.Neg(G.Must(G.Sum(loss))))
	if _, err := G.Grad(loss, s.logAlpha); err != nil {
		return fmt.Errorf("could not compute temperature gradient: %v", err)
	}

	s.alphaVM = G.NewTapeMachine(g, G.BindDualValues(s.logAlpha))
	s.alphaSolver = c.AlphaSolver.Config.Create()
	return nil
}

// SelectAction samples an action from the behaviour policy, or selects
// the mean action in evaluation mode
func (s *SAC) SelectAction(t ts.TimeStep) *mat.VecDense {
	return s.behaviour.SelectAction(t)
}

// Eval sets the agent's policy to evaluation mode
func (s *SAC) Eval() { s.behaviour.Eval() }

// Train sets the agent's policy to training mode
func (s *SAC) Train() { s.behaviour.Train() }

// IsEval returns whether the agent's policy is in evaluation mode
func (s *SAC) IsEval() bool { return s.behaviour.IsEval() }

// ObserveFirst records the first timestep in an episode
func (s *SAC) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observeFirst: timestep is %v, expected first",
			t.StepType)
	}
	s.prevStep = t
	return nil
}

// Observe records the transition from the previous timestep to next
// after taking action
func (s *SAC) Observe(action *mat.VecDense, next ts.TimeStep) error {
	if s.prevStep.Observation == nil {
		return fmt.Errorf("observe: ObserveFirst must be called first")
	}

	transition := ts.NewTransition(s.prevStep, action, next)
	if err := s.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not add to replay buffer: %v", err)
	}
	s.prevStep = next
	return nil
}

// AddTransition adds a transition to the replay buffer directly, for
// example to seed the buffer with logged data
func (s *SAC) AddTransition(t ts.Transition) error {
	return s.replay.Add(t)
}

// EndEpisode performs cleanup at the end of an episode
func (s *SAC) EndEpisode() {
	s.prevStep = ts.TimeStep{}
}

// Step performs the configured number of gradient steps. No updates are
// performed until the replay buffer holds its minimum number of
// transitions.
func (s *SAC) Step() error {
	for i := 0; i < s.gradientSteps; i++ {
		batch, err := s.replay.Sample()
		if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
			return nil
		} else if err != nil {
			return fmt.Errorf("step: could not sample from replay buffer: %v",
				err)
		}

		if err := s.update(batch); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}
	return nil
}

// update performs one gradient step on a batch of transitions
func (s *SAC) update(b expreplay.Batch) error {
	targets, err := s.criticTargets(b)
	if err != nil {
		return err
	}

	tdErrors := make([]float64, b.Len())
	stateActions := concatRows(b.State, b.Action, s.features, s.actionDims)
	for i, cr := range s.critics {
		q, err := cr.update(stateActions, targets, b.Weights)
		if err != nil {
			return fmt.Errorf("could not update critic %v: %v", i, err)
		}
		for j := range tdErrors {
			tdErrors[j] += 0.5 * math.Abs(q[j]-targets[j])
		}
	}
	if err := s.replay.UpdatePriorities(b.Indices, tdErrors); err != nil {
		return fmt.Errorf("could not update priorities: %v", err)
	}

	logProbs, err := s.updatePolicy(b.State)
	if err != nil {
		return fmt.Errorf("could not update policy: %v", err)
	}
	if err := s.updateAlpha(logProbs); err != nil {
		return fmt.Errorf("could not update temperature: %v", err)
	}

	s.updates++
	if s.updates%s.targetUpdateInterval == 0 {
		for i, cr := range s.critics {
			if err := cr.targetNet.Polyak(cr.net, s.tau); err != nil {
				return fmt.Errorf("could not update target critic %v: %v", i,
					err)
			}
		}
	}

	return s.behaviour.Network().Set(s.policy.Network())
}

// criticTargets computes r + γ(min Q'(s', a') - α log π(a'|s')) for
// a' ~ π(s'), with γ = 0 for terminal transitions
func (s *SAC) criticTargets(b expreplay.Batch) ([]float64, error) {
	if err := s.nextPolicy.Network().Set(s.policy.Network()); err != nil {
		return nil, fmt.Errorf("could not sync next action policy: %v", err)
	}
	defer s.nextPolicyVM.Reset()
	if err := s.nextPolicy.forward(b.NextState, s.nextPolicyVM); err != nil {
		return nil, fmt.Errorf("could not sample next actions: %v", err)
	}
	nextActions := s.nextPolicy.Actions()
	nextLogProbs := s.nextPolicy.LogProbs()

	input := concatRows(b.NextState, nextActions, s.features, s.actionDims)
	var minQ []float64
	for i, cr := range s.critics {
		q, err := cr.targetValues(input)
		if err != nil {
			return nil, fmt.Errorf("could not compute target critic %v: %v",
				i, err)
		}
		if minQ == nil {
			minQ = q
		} else {
			for j := range minQ {
				minQ[j] = math.Min(minQ[j], q[j])
			}
		}
	}

	alpha := s.Alpha()
	targets := make([]float64, b.Len())
	for i := range targets {
		soft := minQ[i] - alpha*nextLogProbs[i]
		targets[i] = b.Reward[i] + b.Discount[i]*soft
	}
	return targets, nil
}

// update takes a gradient step on the critic's loss and returns the
// predicted Q values
func (c *critic) update(stateActions, targets, weights []float64) ([]float64,
	error) {
	if err := c.net.SetInput(stateActions); err != nil {
		return nil, err
	}
	if err := letMatrix(c.target, targets); err != nil {
		return nil, err
	}
	if err := letMatrix(c.weights, weights); err != nil {
		return nil, err
	}

	defer c.vm.Reset()
	if err := c.vm.RunAll(); err != nil {
		return nil, err
	}
	q := append([]float64(nil), float64s(c.net.Output()[0])...)

	if err := c.solver.Step(c.net.Model()); err != nil {
		return nil, err
	}
	return q, nil
}

// targetValues returns the target critic's predictions
func (c *critic) targetValues(stateActions []float64) ([]float64, error) {
	if err := c.targetNet.SetInput(stateActions); err != nil {
		return nil, err
	}

	defer c.targetVM.Reset()
	if err := c.targetVM.RunAll(); err != nil {
		return nil, err
	}
	return append([]float64(nil), float64s(c.targetNet.Output()[0])...), nil
}

// updatePolicy takes a gradient step on the policy loss and returns the
// log density of the sampled actions
func (s *SAC) updatePolicy(states []float64) ([]float64, error) {
	for i, cr := range s.critics {
		if err := s.policyCritics[i].Set(cr.net); err != nil {
			return nil, fmt.Errorf("could not sync critic %v: %v", i, err)
		}
	}
	if err := G.Let(s.alpha, s.Alpha()); err != nil {
		return nil, err
	}

	defer s.policyVM.Reset()
	if err := s.policy.forward(states, s.policyVM); err != nil {
		return nil, err
	}
	logProbs := append([]float64(nil), s.policy.LogProbs()...)

	if err := s.policySolver.Step(s.policy.Network().Model()); err != nil {
		return nil, err
	}
	return logProbs, nil
}

// updateAlpha takes a gradient step on the temperature loss
func (s *SAC) updateAlpha(logProbs []float64) error {
	gap := floats.Sum(logProbs)/float64(len(logProbs)) + s.targetEntropy
	if err := letVector(s.entropyGap, []float64{gap}); err != nil {
		return err
	}

	defer s.alphaVM.Reset()
	if err := s.alphaVM.RunAll(); err != nil {
		return err
	}
	return s.alphaSolver.Step([]G.ValueGrad{s.logAlpha})
}

// Alpha returns the current entropy temperature
func (s *SAC) Alpha() float64 {
	return math.Exp(float64s(s.logAlpha.Value())[0])
}

// Updates returns the number of gradient steps taken
func (s *SAC) Updates() int {
	return s.updates
}

// ReplayCapacity returns the number of transitions in the replay buffer
func (s *SAC) ReplayCapacity() int {
	return s.replay.Capacity()
}

// Policy returns the behaviour policy
func (s *SAC) Policy() *GaussianPolicy {
	return s.behaviour
}

// Close closes all VMs of the agent
func (s *SAC) Close() error {
	var err error
	closeVM := func(vm G.VM) {
		if e := vm.Close(); e != nil && err == nil {
			err = e
		}
	}

	closeVM(s.policyVM)
	closeVM(s.nextPolicyVM)
	closeVM(s.alphaVM)
	for _, cr := range s.critics {
		closeVM(cr.vm)
		closeVM(cr.targetVM)
	}
	if e := s.behaviour.Close(); e != nil && err == nil {
		err = e
	}

	if err != nil {
		return fmt.Errorf("close: %v", err)
	}
	return nil
}

// concatRows returns the row-major matrix [a b], where a has aCols
// columns and b has bCols columns
func concatRows(a, b []float64, aCols, bCols int) []float64 {
	rows := len(a) / aCols
	out := make([]float64, 0, rows*(aCols+bCols))
	for i := 0; i < rows; i++ {
		out = append(out, a[i*aCols:(i+1)*aCols]...)
		out = append(out, b[i*bCols:(i+1)*bCols]...)
	}
	return out
}

func letMatrix(node *G.Node, data []float64) error {
	value := tensor.New(tensor.WithShape(node.Shape()...),
		tensor.WithBacking(append([]float64(nil), data...)))
	return G.Let(node, value)
}

func letVector(node *G.Node, data []float64) error {
	return letMatrix(node, data)
}

// snapshotVersion is the version of the serialized agent format
const snapshotVersion = 1

// snapshot is the serialized state of a SAC agent. Optimizer moments
// and the replay buffer are not included.
type snapshot struct {
	Version  int
	Policy   [][]float64
	Critics  [][][]float64
	Targets  [][][]float64
	LogAlpha float64
	Updates  int
}

// GobEncode implements the gob.GobEncoder interface
func (s *SAC) GobEncode() ([]byte, error) {
	snap := snapshot{
		Version:  snapshotVersion,
		Policy:   network.Weights(s.policy.Network()),
		LogAlpha: float64s(s.logAlpha.Value())[0],
		Updates:  s.updates,
	}
	for _, cr := range s.critics {
		snap.Critics = append(snap.Critics, network.Weights(cr.net))
		snap.Targets = append(snap.Targets, network.Weights(cr.targetNet))
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The agent must
// have been created with the same architecture as the encoded agent.
func (s *SAC) GobDecode(in []byte) error {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&snap); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("gobDecode: unsupported version %v, expected %v",
			snap.Version, snapshotVersion)
	}
	if len(snap.Critics) != len(s.critics) ||
		len(snap.Targets) != len(s.critics) {
		return fmt.Errorf("gobDecode: expected %v critics, have %v",
			len(s.critics), len(snap.Critics))
	}

	if err := network.SetWeights(s.policy.Network(), snap.Policy); err != nil {
		return fmt.Errorf("gobDecode: policy: %v", err)
	}
	if err := s.behaviour.Network().Set(s.policy.Network()); err != nil {
		return fmt.Errorf("gobDecode: behaviour policy: %v", err)
	}
	for i, cr := range s.critics {
		if err := network.SetWeights(cr.net, snap.Critics[i]); err != nil {
			return fmt.Errorf("gobDecode: critic %v: %v", i, err)
		}
		if err := network.SetWeights(cr.targetNet, snap.Targets[i]); err != nil {
			return fmt.Errorf("gobDecode: target critic %v: %v", i, err)
		}
	}

	logAlpha := tensor.New(tensor.WithShape(1),
		tensor.WithBacking([]float64{snap.LogAlpha}))
	if err := G.Let(s.logAlpha, logAlpha); err != nil {
		return fmt.Errorf("gobDecode: temperature: %v", err)
	}
	s.updates = snap.Updates
	return nil
}

// ExportPolicy writes the behaviour policy to path so that it can be
// loaded with LoadPolicy for deployment
func (s *SAC) ExportPolicy(path string) error {
	return s.behaviour.Export(path)
}

var (
	_ agent.Closer         = (*SAC)(nil)
	_ agent.PolicyExporter = (*SAC)(nil)
	_ agent.NNPolicy       = (*GaussianPolicy)(nil)
)
