// Package op provides extended Gorgonia graph operations.
package op

import (
	"math"

	G "gorgonia.org/gorgonia"
)

// SquashEpsilon keeps the log of the tanh Jacobian finite for actions
// at the bounds
const SquashEpsilon = 1e-6

// Min returns the element-wise minimum of two nodes of the same shape,
// computed as ½(a + b - |a - b|) so that the gradient flows through
// whichever of a or b is smaller.
func Min(a, b *G.Node) *G.Node {
	diff := G.Must(G.Abs(G.Must(G.Sub(a, b))))
	sum := G.Must(G.Add(a, b))
	min := G.Must(G.Sub(sum, diff))
	return G.Must(G.HadamardProd(G.NewConstant(0.5), min))
}

// Max returns the element-wise maximum of two nodes of the same shape,
// computed as ½(a + b + |a - b|)
func Max(a, b *G.Node) *G.Node {
	diff := G.Must(G.Abs(G.Must(G.Sub(a, b))))
	sum := G.Must(G.Add(a, b))
	max := G.Must(G.Add(sum, diff))
	return G.Must(G.HadamardProd(G.NewConstant(0.5), max))
}

// Rescale maps a node with values in [-1, 1] to [min, max]
func Rescale(value *G.Node, min, max float64) *G.Node {
	halfRange := G.NewConstant(0.5 * (max - min))
	out := G.Must(G.Add(value, G.NewConstant(1.0)))
	out = G.Must(G.HadamardProd(halfRange, out))
	return G.Must(G.Add(out, G.NewConstant(min)))
}

// SquashedGaussianLogPdf returns the log density, summed over axis 1,
// of actions tanh(μ + σε) drawn from a diagonal Gaussian N(μ, σ²) and
// squashed by tanh. The nodes are all of shape (batch, actionDims):
// eps holds the standard normal noise ε, logStd holds log σ, and
// action holds the squashed actions.
func SquashedGaussianLogPdf(eps, logStd, action *G.Node) *G.Node {
	// log N(u; μ, σ) = -½ε² - log σ - ½log(2π)
	logPdf := G.Must(G.HadamardProd(G.NewConstant(-0.5),
		G.Must(G.Square(eps))))
	logPdf = G.Must(G.Sub(logPdf, logStd))
	logPdf = G.Must(G.Sub(logPdf, G.NewConstant(0.5*math.Log(2*math.Pi))))

	// Change of variables for the tanh squashing
	jacobian := G.Must(G.Sub(G.NewConstant(1.0),
		G.Must(G.Square(action))))
	jacobian = G.Must(G.Add(jacobian, G.NewConstant(SquashEpsilon)))
	logPdf = G.Must(G.Sub(logPdf, G.Must(G.Log(jacobian))))

	return G.Must(G.Sum(logPdf, 1))
}
