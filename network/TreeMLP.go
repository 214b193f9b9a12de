package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// TreeMLP implements a multi-layered perceptron with a root network
// and multiple leaf networks that use the output of the root
// network as their own inputs. A diagram of a tree MLP:
//
//	                   ╭─→ Leaf Network 1 ─→ Output
//	                   ├─→ Leaf Network 2 ─→ Output
//	Input ─→ Root Net ─┼─→ ...            ─→ ...
//	                   ╰─→ Leaf Network N ─→ Output
//
// A Gaussian policy, for example, uses one leaf for the mean and one
// for the log standard deviation.
type TreeMLP struct {
	g          *G.ExprGraph
	input      *G.Node
	root       []*fcLayer
	rootOutput *G.Node
	leaves     []*multiHeadMLP

	numOutputs int // Number of outputs per leaf network
	numInputs  int
	batchSize  int

	learnables G.Nodes
	model      []G.ValueGrad

	// Configuration data needed for gobbing
	rootHiddenSizes []int
	rootBiases      []bool
	rootActivations []*Activation
	leafHiddenSizes [][]int
	leafBiases      [][]bool
	leafActivations [][]*Activation
}

// validateTreeMLP validates the arguments of NewTreeMLP() to ensure
// they are legal.
func validateTreeMLP(numOutputs int, rootHiddenSizes []int, rootBiases []bool,
	rootActivations []*Activation, leafHiddenSizes [][]int,
	leafBiases [][]bool, leafActivations [][]*Activation) error {
	if len(rootHiddenSizes) == 0 {
		return fmt.Errorf("root network must have at least one hidden layer")
	}
	if err := validateLayers(rootHiddenSizes, rootBiases,
		rootActivations); err != nil {
		return fmt.Errorf("root network: %v", err)
	}

	if len(leafHiddenSizes) == 0 {
		return fmt.Errorf("there must be at least one leaf network specified")
	}
	if numOutputs <= 0 {
		return fmt.Errorf("there must be more than 0 outputs per leaf network")
	}
	if len(leafHiddenSizes) != len(leafActivations) ||
		len(leafHiddenSizes) != len(leafBiases) {
		msg := "inconsistent number of leaf networks: %v hidden sizes, " +
			"%v biases, %v activations"
		return fmt.Errorf(msg, len(leafHiddenSizes), len(leafBiases),
			len(leafActivations))
	}

	for i := range leafHiddenSizes {
		if err := validateLayers(leafHiddenSizes[i], leafBiases[i],
			leafActivations[i]); err != nil {
			return fmt.Errorf("leaf network %v: %v", i, err)
		}
	}
	return nil
}

// NewTreeMLP returns a new NeuralNet with a tree MLP architecture.
//
// The root network has number of layers equal to len(rootHiddenSizes).
// For index i, rootHiddenSizes[i] determines the number of hidden units
// in that layer, rootBiases[i] determines if a bias unit is added to the
// hidden layer, and rootActivations[i] determines the activation
// function to apply to that hidden layer.
//
// The number of leaf networks is defined by len(leafHiddenSizes), with
// leafHiddenSizes[i], leafBiases[i], and leafActivations[i] defining the
// hidden layers of leaf network i. For all leaf networks, a final linear
// layer with a bias and no activation is added so that each leaf
// network predicts outputs values. To create a network with only a
// single linear layer per leaf network, set leafHiddenSizes =
// [][]int{{}, {}, ..., {}} (similarly for leafBiases and
// leafActivations).
func NewTreeMLP(features, batch, outputs int, g *G.ExprGraph,
	rootHiddenSizes []int, rootBiases []bool, rootActivations []*Activation,
	leafHiddenSizes [][]int, leafBiases [][]bool,
	leafActivations [][]*Activation, init G.InitWFn) (NeuralNet, error) {
	err := validateTreeMLP(outputs, rootHiddenSizes, rootBiases,
		rootActivations, leafHiddenSizes, leafBiases, leafActivations)
	if err != nil {
		return nil, fmt.Errorf("newTreeMLP: %v", err)
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(uniqueName("input")), G.WithInit(G.Zeroes()))

	net := &TreeMLP{
		g:               g,
		input:           input,
		root:            newFCLayers(g, features, rootHiddenSizes, rootBiases, rootActivations, init),
		numOutputs:      outputs,
		numInputs:       features,
		batchSize:       batch,
		rootHiddenSizes: rootHiddenSizes,
		rootBiases:      rootBiases,
		rootActivations: rootActivations,
		leafHiddenSizes: leafHiddenSizes,
		leafBiases:      leafBiases,
		leafActivations: leafActivations,
	}
	if err := net.rootFwd(); err != nil {
		return nil, fmt.Errorf("newTreeMLP: %v", err)
	}

	net.leaves = make([]*multiHeadMLP, len(leafHiddenSizes))
	for i := range leafHiddenSizes {
		net.leaves[i], err = newMultiHeadMLPFromInput(
			[]*G.Node{net.rootOutput}, outputs, g, leafHiddenSizes[i],
			leafBiases[i], init, leafActivations[i])
		if err != nil {
			return nil, fmt.Errorf("newTreeMLP: could not construct leaf "+
				"network %v: %v", i, err)
		}
	}

	return net, nil
}

// rootFwd adds the forward pass of the root network to the graph
func (t *TreeMLP) rootFwd() error {
	pred := t.input
	var err error
	for i, l := range t.root {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("could not compute forward pass of root "+
				"layer %v: %v", i, err)
		}
	}
	t.rootOutput = pred
	return nil
}

// SetInput sets the value of the input node before running the forward
// pass.
func (t *TreeMLP) SetInput(input []float64) error {
	return setInput(t.input, input)
}

// Outputs returns the number of outputs per leaf network
func (t *TreeMLP) Outputs() []int {
	outputs := make([]int, len(t.leaves))
	for i := range outputs {
		outputs[i] = t.numOutputs
	}
	return outputs
}

// Graph returns the computational graph of the network
func (t *TreeMLP) Graph() *G.ExprGraph {
	return t.g
}

// Features returns the number of input features
func (t *TreeMLP) Features() int {
	return t.numInputs
}

// BatchSize returns the batch size of inputs to the network
func (t *TreeMLP) BatchSize() int {
	return t.batchSize
}

// Clone returns a clone of the TreeMLP.
func (t *TreeMLP) Clone() (NeuralNet, error) {
	return t.CloneWithBatch(t.batchSize)
}

// CloneWithBatch returns a clone of the TreeMLP with a new input
// batch size.
func (t *TreeMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()
	input := G.NewMatrix(graph, tensor.Float64,
		G.WithShape(batchSize, t.numInputs), G.WithName(uniqueName("input")),
		G.WithInit(G.Zeroes()))

	return t.CloneWithInputTo(-1, []*G.Node{input}, graph)
}

// CloneWithInputTo clones the TreeMLP to a specific computational graph
// with a specified input node. If multiple input nodes are given, then
// they are first concatenated along the specified axis.
func (t *TreeMLP) CloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	input, err := concatInputs(axis, inputs, graph)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: %v", err)
	}
	if input.Shape()[1] != t.numInputs {
		return nil, fmt.Errorf("cloneWithInputTo: invalid input features"+
			"\n\twant(%v)\n\thave(%v)", t.numInputs, input.Shape()[1])
	}

	root := make([]*fcLayer, len(t.root))
	for i := range t.root {
		root[i] = t.root[i].cloneTo(graph)
	}

	net := &TreeMLP{
		g:               graph,
		input:           input,
		root:            root,
		numOutputs:      t.numOutputs,
		numInputs:       t.numInputs,
		batchSize:       input.Shape()[0],
		rootHiddenSizes: t.rootHiddenSizes,
		rootBiases:      t.rootBiases,
		rootActivations: t.rootActivations,
		leafHiddenSizes: t.leafHiddenSizes,
		leafBiases:      t.leafBiases,
		leafActivations: t.leafActivations,
	}
	if err := net.rootFwd(); err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: %v", err)
	}

	net.leaves = make([]*multiHeadMLP, len(t.leaves))
	for i, leaf := range t.leaves {
		net.leaves[i], err = leaf.cloneWithInputTo(-1,
			[]*G.Node{net.rootOutput}, graph)
		if err != nil {
			return nil, fmt.Errorf("cloneWithInputTo: could not clone leaf "+
				"network %v: %v", i, err)
		}
	}
	return net, nil
}

// Set sets the weights of the TreeMLP to be equal to the weights of
// another NeuralNet with the same architecture
func (t *TreeMLP) Set(source NeuralNet) error {
	return set(t, source)
}

// Polyak sets the weights of the TreeMLP to be a polyak average between
// its existing weights and the weights of another NeuralNet with the
// same architecture
func (t *TreeMLP) Polyak(source NeuralNet, tau float64) error {
	return polyak(t, source, tau)
}

// Learnables returns the learnable nodes of the root network followed
// by those of each leaf network
func (t *TreeMLP) Learnables() G.Nodes {
	if t.learnables == nil {
		var learnables []*G.Node
		for _, l := range t.root {
			learnables = append(learnables, l.learnables()...)
		}
		for _, leaf := range t.leaves {
			learnables = append(learnables, leaf.Learnables()...)
		}
		t.learnables = G.Nodes(learnables)
	}
	return t.learnables
}

// Model returns the learnables nodes with their gradients.
func (t *TreeMLP) Model() []G.ValueGrad {
	if t.model == nil {
		t.model = model(t.Learnables())
	}
	return t.model
}

// Output returns the output of each leaf network
func (t *TreeMLP) Output() []G.Value {
	outputs := make([]G.Value, len(t.leaves))
	for i, leaf := range t.leaves {
		outputs[i] = leaf.Output()[0]
	}
	return outputs
}

// Prediction returns the nodes holding the output of each leaf network
func (t *TreeMLP) Prediction() []*G.Node {
	predictions := make([]*G.Node, len(t.leaves))
	for i, leaf := range t.leaves {
		predictions[i] = leaf.Prediction()[0]
	}
	return predictions
}

// treeConfig is the gob representation of a TreeMLP's architecture
type treeConfig struct {
	Features, Batch, Outputs int
	RootHiddenSizes          []int
	RootBiases               []bool
	RootActivations          []*Activation
	LeafHiddenSizes          [][]int
	LeafBiases               [][]bool
	LeafActivations          [][]*Activation
}

// GobEncode implements the gob.GobEncoder interface
func (t *TreeMLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	c := treeConfig{
		Features:        t.numInputs,
		Batch:           t.batchSize,
		Outputs:         t.numOutputs,
		RootHiddenSizes: t.rootHiddenSizes,
		RootBiases:      t.rootBiases,
		RootActivations: t.rootActivations,
		LeafHiddenSizes: t.leafHiddenSizes,
		LeafBiases:      t.leafBiases,
		LeafActivations: t.leafActivations,
	}
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode architecture: %v",
			err)
	}
	if err := enc.Encode(Weights(t)); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode weights: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The decoded
// network lives in a new computational graph.
func (t *TreeMLP) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var c treeConfig
	if err := dec.Decode(&c); err != nil {
		return fmt.Errorf("gobdecode: could not decode architecture: %v", err)
	}

	var weights [][]float64
	if err := dec.Decode(&weights); err != nil {
		return fmt.Errorf("gobdecode: could not decode weights: %v", err)
	}

	// Gob decodes empty slices as nil
	for i := range c.LeafHiddenSizes {
		if c.LeafHiddenSizes[i] == nil {
			c.LeafHiddenSizes[i] = []int{}
		}
	}
	for len(c.LeafBiases) < len(c.LeafHiddenSizes) {
		c.LeafBiases = append(c.LeafBiases, []bool{})
	}
	for len(c.LeafActivations) < len(c.LeafHiddenSizes) {
		c.LeafActivations = append(c.LeafActivations, []*Activation{})
	}

	net, err := NewTreeMLP(c.Features, c.Batch, c.Outputs, G.NewGraph(),
		c.RootHiddenSizes, c.RootBiases, c.RootActivations,
		c.LeafHiddenSizes, c.LeafBiases, c.LeafActivations, G.Zeroes())
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new tree MLP: %v",
			err)
	}
	if err := SetWeights(net, weights); err != nil {
		return fmt.Errorf("gobdecode: %v", err)
	}

	*t = *(net.(*TreeMLP))
	return nil
}
