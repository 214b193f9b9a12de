package solver

import G "gorgonia.org/gorgonia"

// VanillaConfig configures stochastic gradient descent
type VanillaConfig struct {
	StepSize float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewVanilla returns a new stochastic gradient descent Solver
func NewVanilla(stepSize float64, batch int, clip float64) (*Solver, error) {
	return newSolver(Vanilla, VanillaConfig{stepSize, batch, clip})
}

// Create returns a new Gorgonia VanillaSolver
func (v VanillaConfig) Create() G.Solver {
	return G.NewVanillaSolver(options(v.StepSize, v.Batch, v.Clip)...)
}

func (v VanillaConfig) ValidType(t Type) bool { return t == Vanilla }

func (v VanillaConfig) Validate() error { return validate(v.StepSize, v.Batch) }
