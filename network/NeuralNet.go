// Package network implements feed forward neural networks on gorgonia
// computational graphs
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network whose forward pass has been added to a
// computational graph
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)

	// CloneWithInputTo clones the network into graph g, using the
	// inputs, concatenated along axis, as the network input
	CloneWithInputTo(axis int, inputs []*G.Node,
		g *G.ExprGraph) (NeuralNet, error)

	BatchSize() int
	Features() int
	Outputs() []int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() []G.Value
	Prediction() []*G.Node
}
