package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// multiHeadMLP implements a multi-layered perceptron with a single
// output layer predicting numOutputs values per sample
type multiHeadMLP struct {
	g          *G.ExprGraph
	layers     []*fcLayer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	// Data needed for gobbing, including the final layer
	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    *G.Value
}

// validateLayers ensures there is one bias and one activation per layer
func validateLayers(hiddenSizes []int, biases []bool,
	activations []*Activation) error {
	if len(hiddenSizes) != len(activations) {
		msg := "invalid number of activations\n\twant(%d)\n\thave(%d)"
		return fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "invalid number of biases\n\twant(%d)\n\thave(%d)"
		return fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}
	return nil
}

// concatInputs concatenates inputs along axis if there is more than one
func concatInputs(axis int, inputs []*G.Node, g *G.ExprGraph) (*G.Node,
	error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input nodes")
	}
	for _, input := range inputs {
		if input.Graph() != g {
			return nil, fmt.Errorf("not all inputs have the same graph")
		}
	}

	input := inputs[0]
	if len(inputs) > 1 {
		var err error
		if input, err = G.Concat(axis, inputs...); err != nil {
			return nil, fmt.Errorf("could not concatenate inputs: %v", err)
		}
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("input must be a matrix")
	}
	return input, nil
}

// newMultiHeadMLPFromInput returns a new MLP that has a specific node as
// its input node. If multiple input nodes are given, they are first
// concatenated along the feature (column) dimension. A final linear
// layer with a bias predicting outputs values is added.
func newMultiHeadMLPFromInput(inputs []*G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (*multiHeadMLP, error) {
	if err := validateLayers(hiddenSizes, biases, activations); err != nil {
		return nil, fmt.Errorf("newMultiHeadMLPFromInput: %v", err)
	}
	if outputs <= 0 {
		return nil, fmt.Errorf("newMultiHeadMLPFromInput: outputs must be " +
			"> 0")
	}

	input, err := concatInputs(1, inputs, g)
	if err != nil {
		return nil, fmt.Errorf("newMultiHeadMLPFromInput: %v", err)
	}

	hiddenSizes = append(append([]int(nil), hiddenSizes...), outputs)
	biases = append(append([]bool(nil), biases...), true)
	activations = append(append([]*Activation(nil), activations...),
		Identity())

	features := input.Shape()[1]
	layers := newFCLayers(g, features, hiddenSizes, biases, activations, init)

	return newMultiHeadMLPWithLayers(input, g, layers, features, outputs,
		hiddenSizes, biases, activations)
}

func newMultiHeadMLPWithLayers(input *G.Node, g *G.ExprGraph,
	layers []*fcLayer, features, outputs int, hiddenSizes []int,
	biases []bool, activations []*Activation) (*multiHeadMLP, error) {
	network := &multiHeadMLP{
		g:           g,
		layers:      layers,
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   input.Shape()[0],
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}

	if _, err := network.fwd(input); err != nil {
		msg := "could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}
	return network, nil
}

// NewMultiHeadMLP creates and returns a new multi-layered perceptron
// that predicts outputs values for each of batch input samples. The
// graph parameter g is populated with the MLP.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. A final
// layer is always added such that given any input, the output will
// be outputs. The final layer also contains a bias unit, and bias units
// for each additional hidden layer is specified by biases. The final
// layer will contain no activations, and the activations of additional
// hidden layers is specified by activations. The parameter init
// determines the weight initialization scheme.
//
// The function works such that for index i, hiddenSizes[i] is the
// number of nodes in hidden layer i; biases[i] is true if the
// hidden layer will contain a bias unit and false otherwise; and
// activations[i] is the activation function for hidden layer i.
func NewMultiHeadMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(uniqueName("input")), G.WithInit(G.Zeroes()))

	net, err := newMultiHeadMLPFromInput([]*G.Node{input}, outputs, g,
		hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, fmt.Errorf("newMultiHeadMLP: %v", err)
	}
	return net, nil
}

// Graph returns the computational graph of the multiHeadMLP.
func (e *multiHeadMLP) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones a multiHeadMLP
func (e *multiHeadMLP) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithInputTo clones a multiHeadMLP to a specific computational
// graph with a specified input node. If multiple input nodes are given,
// then they are first concatenated along the specified axis.
func (e *multiHeadMLP) CloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	return e.cloneWithInputTo(axis, inputs, graph)
}

func (e *multiHeadMLP) cloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (*multiHeadMLP, error) {
	input, err := concatInputs(axis, inputs, graph)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: %v", err)
	}
	if input.Shape()[1] != e.numInputs {
		return nil, fmt.Errorf("cloneWithInputTo: invalid input features"+
			"\n\twant(%v)\n\thave(%v)", e.numInputs, input.Shape()[1])
	}

	layers := make([]*fcLayer, len(e.layers))
	for i := range e.layers {
		layers[i] = e.layers[i].cloneTo(graph)
	}

	net, err := newMultiHeadMLPWithLayers(input, graph, layers, e.numInputs,
		e.numOutputs, e.hiddenSizes, e.biases, e.activations)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: %v", err)
	}
	return net, nil
}

// CloneWithBatch clones a multiHeadMLP with a new input batch
// size.
func (e *multiHeadMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()
	input := G.NewMatrix(graph, tensor.Float64,
		G.WithShape(batchSize, e.numInputs), G.WithName(uniqueName("input")),
		G.WithInit(G.Zeroes()))

	return e.cloneWithInputTo(-1, []*G.Node{input}, graph)
}

// BatchSize returns the batch size of inputs to the network
func (e *multiHeadMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single input sample
func (e *multiHeadMLP) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs from the network
func (e *multiHeadMLP) Outputs() []int {
	return []int{e.numOutputs}
}

// SetInput sets the value of the input node before running the forward
// pass.
func (e *multiHeadMLP) SetInput(input []float64) error {
	return setInput(e.input, input)
}

func setInput(node *G.Node, input []float64) error {
	if len(input) != node.Shape().TotalSize() {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", node.Shape().TotalSize(), len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(node.Shape()...),
	)
	return G.Let(node, inputTensor)
}

// Set sets the weights of a multiHeadMLP to be equal to the
// weights of another NeuralNet with the same architecture
func (e *multiHeadMLP) Set(source NeuralNet) error {
	return set(e, source)
}

// Polyak sets the weights of a multiHeadMLP to be a polyak
// average between its existing weights and the weights of another
// NeuralNet with the same architecture
func (e *multiHeadMLP) Polyak(source NeuralNet, tau float64) error {
	return polyak(e, source, tau)
}

// Learnables returns the learnable nodes in a multiHeadMLP
func (e *multiHeadMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(e.layers))
		for _, l := range e.layers {
			learnables = append(learnables, l.learnables()...)
		}
		e.learnables = G.Nodes(learnables)
	}
	return e.learnables
}

// Model returns the learnables nodes with their gradients.
func (e *multiHeadMLP) Model() []G.ValueGrad {
	if e.model == nil {
		e.model = model(e.Learnables())
	}
	return e.model
}

// fwd performs the forward pass of the multiHeadMLP on the input
// node
func (e *multiHeadMLP) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape != e.numInputs {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	e.prediction = pred
	e.predVal = new(G.Value)
	G.Read(e.prediction, e.predVal)

	return pred, nil
}

// Output returns the output of the multiHeadMLP.
func (e *multiHeadMLP) Output() []G.Value {
	return []G.Value{*e.predVal}
}

// Prediction returns the node of the computational graph the stores
// the output of the multiHeadMLP
func (e *multiHeadMLP) Prediction() []*G.Node {
	return []*G.Node{e.prediction}
}

// mlpConfig is the gob representation of a multiHeadMLP's architecture,
// excluding the final layer
type mlpConfig struct {
	Features, Batch, Outputs int
	HiddenSizes              []int
	Biases                   []bool
	Activations              []*Activation
}

func (e *multiHeadMLP) config() mlpConfig {
	n := len(e.hiddenSizes) - 1
	return mlpConfig{
		Features:    e.numInputs,
		Batch:       e.batchSize,
		Outputs:     e.numOutputs,
		HiddenSizes: e.hiddenSizes[:n],
		Biases:      e.biases[:n],
		Activations: e.activations[:n],
	}
}

// GobEncode implements the gob.GobEncoder interface
func (e *multiHeadMLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(e.config()); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode architecture: %v",
			err)
	}
	if err := enc.Encode(Weights(e)); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode weights: %v", err)
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The decoded
// network lives in a new computational graph.
func (e *multiHeadMLP) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var c mlpConfig
	if err := dec.Decode(&c); err != nil {
		return fmt.Errorf("gobdecode: could not decode architecture: %v", err)
	}

	var weights [][]float64
	if err := dec.Decode(&weights); err != nil {
		return fmt.Errorf("gobdecode: could not decode weights: %v", err)
	}

	net, err := NewMultiHeadMLP(c.Features, c.Batch, c.Outputs, G.NewGraph(),
		c.HiddenSizes, c.Biases, G.Zeroes(), c.Activations)
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new MLP: %v", err)
	}
	if err := SetWeights(net, weights); err != nil {
		return fmt.Errorf("gobdecode: %v", err)
	}

	*e = *(net.(*multiHeadMLP))
	return nil
}
