package network

import (
	"fmt"
	"sync/atomic"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// nodeID numbers the nodes created by this package. Gorgonia merges
// variable nodes with equal names and shapes within a graph, so every
// node gets a unique name.
var nodeID uint64

func uniqueName(base string) string {
	return fmt.Sprintf("%s_%d", base, atomic.AddUint64(&nodeID, 1))
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayers adds len(hiddenSizes) fully connected layers to g, the
// first of which takes features inputs
func newFCLayers(g *G.ExprGraph, features int, hiddenSizes []int,
	biases []bool, activations []*Activation, init G.InitWFn) []*fcLayer {
	layers := make([]*fcLayer, len(hiddenSizes))

	in := features
	for i, out := range hiddenSizes {
		weights := G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
			G.WithName(uniqueName(fmt.Sprintf("L%dW", i))), G.WithInit(init))

		var bias *G.Node
		if biases[i] {
			bias = G.NewMatrix(g, tensor.Float64, G.WithShape(1, out),
				G.WithName(uniqueName(fmt.Sprintf("L%dB", i))),
				G.WithInit(G.Zeroes()))
		}

		layers[i] = &fcLayer{weights: weights, bias: bias, act: activations[i]}
		in = out
	}
	return layers
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, err
	}
	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
		if err != nil {
			return nil, err
		}
	}
	return f.act.fwd(x)
}

// cloneTo clones an fcLayer to a new computational graph, copying its
// weights
func (f *fcLayer) cloneTo(g *G.ExprGraph) *fcLayer {
	clone := func(n *G.Node, base string) *G.Node {
		value := n.Value().(*tensor.Dense).Clone().(*tensor.Dense)
		return G.NewMatrix(g, tensor.Float64, G.WithShape(n.Shape()...),
			G.WithName(uniqueName(base)), G.WithValue(value))
	}

	var bias *G.Node
	if f.bias != nil {
		bias = clone(f.bias, "B")
	}
	return &fcLayer{
		weights: clone(f.weights, "W"),
		bias:    bias,
		act:     f.act,
	}
}

// learnables returns the weights then, if present, the bias
func (f *fcLayer) learnables() []*G.Node {
	if f.bias == nil {
		return []*G.Node{f.weights}
	}
	return []*G.Node{f.weights, f.bias}
}
