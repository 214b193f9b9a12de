package sac

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/samuelfneumann/offlinedose/network"
	ts "github.com/samuelfneumann/offlinedose/timestep"
	"github.com/samuelfneumann/offlinedose/utils/op"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GaussianPolicy is a tanh-squashed Gaussian policy. The policy network
// has two heads predicting the mean and the unbounded log standard
// deviation of the Gaussian; the log standard deviation is squashed
// into [logStdMin, logStdMax]. Actions are sampled with the
// reparameterization a = tanh(μ + σ·ε), ε ~ N(0, I), so that the
// action and its log density are differentiable in the policy weights.
//
// In evaluation mode ε = 0 and the policy selects tanh(μ).
type GaussianPolicy struct {
	net        network.NeuralNet
	actionDims int
	batchSize  int
	logStdMin  float64
	logStdMax  float64

	eps     *G.Node
	mean    *G.Node
	logStd  *G.Node
	action  *G.Node
	logProb *G.Node

	actionVal  *G.Value
	logProbVal *G.Value

	normal distuv.Normal
	noise  []float64

	vm   G.VM // Only set for policies built with a VM
	eval bool
}

// newGaussianPolicy adds the action sampling and log density nodes to
// the graph of net, which must be a network with two output heads of
// actionDims outputs each
func newGaussianPolicy(net network.NeuralNet, actionDims int, logStdMin,
	logStdMax float64, seed uint64) (*GaussianPolicy, error) {
	if len(net.Prediction()) != 2 {
		return nil, fmt.Errorf("newGaussianPolicy: network must have 2 "+
			"output heads, have %v", len(net.Prediction()))
	}
	for _, out := range net.Outputs() {
		if out != actionDims {
			return nil, fmt.Errorf("newGaussianPolicy: network heads must "+
				"predict %v outputs, have %v", actionDims, out)
		}
	}
	if logStdMin >= logStdMax {
		return nil, fmt.Errorf("newGaussianPolicy: logStdMin (%v) must be "+
			"< logStdMax (%v)", logStdMin, logStdMax)
	}

	g := net.Graph()
	batch := net.BatchSize()

	eps := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, actionDims),
		G.WithName(fmt.Sprintf("eps_%p", net)), G.WithInit(G.Zeroes()))

	mean := net.Prediction()[0]
	rawLogStd := net.Prediction()[1]

	logStd := op.Rescale(G.Must(G.Tanh(rawLogStd)), logStdMin, logStdMax)
	std := G.Must(G.Exp(logStd))

	preSquash := G.Must(G.Add(mean, G.Must(G.HadamardProd(std, eps))))
	action := G.Must(G.Tanh(preSquash))
	logProb := op.SquashedGaussianLogPdf(eps, logStd, action)

	p := &GaussianPolicy{
		net:        net,
		actionDims: actionDims,
		batchSize:  batch,
		logStdMin:  logStdMin,
		logStdMax:  logStdMax,
		eps:        eps,
		mean:       mean,
		logStd:     logStd,
		action:     action,
		logProb:    logProb,
		actionVal:  new(G.Value),
		logProbVal: new(G.Value),
		normal: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(seed),
		},
		noise: make([]float64, batch*actionDims),
	}
	G.Read(p.action, p.actionVal)
	G.Read(p.logProb, p.logProbVal)

	return p, nil
}

// NewGaussianPolicy returns a new GaussianPolicy with its own VM acting
// on a single observation at a time. The policy network is a tree MLP
// whose root hidden layers are given by hiddenSizes, biases, and
// activations, with one linear head for the mean and one for the log
// standard deviation.
func NewGaussianPolicy(features, actionDims int, hiddenSizes []int,
	biases []bool, activations []*network.Activation, init G.InitWFn,
	logStdMin, logStdMax float64, seed uint64) (*GaussianPolicy, error) {
	net, err := network.NewTreeMLP(features, 1, actionDims, G.NewGraph(),
		hiddenSizes, biases, activations, [][]int{{}, {}},
		[][]bool{{}, {}}, [][]*network.Activation{{}, {}}, init)
	if err != nil {
		return nil, fmt.Errorf("newGaussianPolicy: could not create "+
			"network: %v", err)
	}

	p, err := newGaussianPolicy(net, actionDims, logStdMin, logStdMax, seed)
	if err != nil {
		return nil, err
	}
	p.vm = G.NewTapeMachine(net.Graph())
	return p, nil
}

// cloneWithInput returns a copy of the policy in the graph of the
// states node, using states as the network input. The returned policy
// has no VM.
func (p *GaussianPolicy) cloneWithInput(states *G.Node, logStdMin,
	logStdMax float64, seed uint64) (*GaussianPolicy, error) {
	net, err := p.net.CloneWithInputTo(-1, []*G.Node{states}, states.Graph())
	if err != nil {
		return nil, fmt.Errorf("clone: %v", err)
	}
	return newGaussianPolicy(net, p.actionDims, logStdMin, logStdMax, seed)
}

// SelectAction returns an action in the observation of t. The policy
// must have been created with NewGaussianPolicy.
func (p *GaussianPolicy) SelectAction(t ts.TimeStep) *mat.VecDense {
	if p.vm == nil {
		panic("selectAction: policy has no VM")
	}

	obs := t.Observation.RawVector().Data
	defer p.vm.Reset()
	if err := p.forward(append([]float64(nil), obs...), p.vm); err != nil {
		panic(fmt.Sprintf("selectAction: %v", err))
	}

	action := append([]float64(nil), p.Actions()...)
	return mat.NewVecDense(p.actionDims, action)
}

// forward runs the policy on a batch of states, row-major, sampling new
// noise unless the policy is in evaluation mode. The caller must reset
// vm once it has used any gradients computed.
func (p *GaussianPolicy) forward(states []float64, vm G.VM) error {
	if err := p.net.SetInput(states); err != nil {
		return err
	}
	if err := p.sampleNoise(); err != nil {
		return err
	}
	return vm.RunAll()
}

// sampleNoise sets ε for the next forward pass
func (p *GaussianPolicy) sampleNoise() error {
	for i := range p.noise {
		if p.eval {
			p.noise[i] = 0
		} else {
			p.noise[i] = p.normal.Rand()
		}
	}

	noise := tensor.New(
		tensor.WithShape(p.batchSize, p.actionDims),
		tensor.WithBacking(append([]float64(nil), p.noise...)),
	)
	return G.Let(p.eps, noise)
}

// Actions returns the actions selected in the last forward pass,
// row-major
func (p *GaussianPolicy) Actions() []float64 {
	return float64s(*p.actionVal)
}

// LogProbs returns the log density of each action selected in the last
// forward pass
func (p *GaussianPolicy) LogProbs() []float64 {
	return float64s(*p.logProbVal)
}

// Network returns the policy network
func (p *GaussianPolicy) Network() network.NeuralNet {
	return p.net
}

// Eval sets the policy to evaluation mode
func (p *GaussianPolicy) Eval() {
	p.eval = true
}

// Train sets the policy to training mode
func (p *GaussianPolicy) Train() {
	p.eval = false
}

// IsEval returns whether the policy is in evaluation mode
func (p *GaussianPolicy) IsEval() bool {
	return p.eval
}

// Close closes the policy's VM, if any
func (p *GaussianPolicy) Close() error {
	if p.vm == nil {
		return nil
	}
	return p.vm.Close()
}

// float64s returns the data of a float64 tensor or scalar value
func float64s(v G.Value) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case float64:
		return []float64{data}
	default:
		panic(fmt.Sprintf("float64s: unexpected value type %T", data))
	}
}

// exportedPolicy is the serialized form of a GaussianPolicy
type exportedPolicy struct {
	Network    *network.TreeMLP
	ActionDims int
	LogStdMin  float64
	LogStdMax  float64
}

// Export writes the policy network and its action bounds to path
func (p *GaussianPolicy) Export(path string) error {
	net, ok := p.net.(*network.TreeMLP)
	if !ok {
		return fmt.Errorf("export: cannot export network of type %T", p.net)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	exp := exportedPolicy{
		Network:    net,
		ActionDims: p.actionDims,
		LogStdMin:  p.logStdMin,
		LogStdMax:  p.logStdMax,
	}
	if err := gob.NewEncoder(f).Encode(exp); err != nil {
		f.Close()
		return fmt.Errorf("export: could not encode policy: %v", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// LoadPolicy loads a policy written by Export. The loaded policy acts
// on a single observation at a time.
func LoadPolicy(path string, seed uint64) (*GaussianPolicy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadPolicy: %w", err)
	}
	defer f.Close()

	var exp exportedPolicy
	if err := gob.NewDecoder(f).Decode(&exp); err != nil {
		return nil, fmt.Errorf("loadPolicy: could not decode policy: %v", err)
	}
	if exp.Network == nil {
		return nil, fmt.Errorf("loadPolicy: no policy network in %v", path)
	}
	if exp.Network.BatchSize() != 1 {
		return nil, fmt.Errorf("loadPolicy: policy batch size must be 1, "+
			"have %v", exp.Network.BatchSize())
	}

	p, err := newGaussianPolicy(exp.Network, exp.ActionDims, exp.LogStdMin,
		exp.LogStdMax, seed)
	if err != nil {
		return nil, fmt.Errorf("loadPolicy: %v", err)
	}
	p.vm = G.NewTapeMachine(exp.Network.Graph())
	return p, nil
}
