// Package solver wraps Gorgonia Solvers so that optimizers can be named
// and configured in JSON configuration files
package solver

import (
	"encoding/json"
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type names an optimization algorithm
type Type string

const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// decoders decode the JSON configuration of each solver type
var decoders = map[Type]func(json.RawMessage) (Config, error){
	Adam: func(raw json.RawMessage) (Config, error) {
		var c AdamConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	},
	Vanilla: func(raw json.RawMessage) (Config, error) {
		var c VanillaConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	},
}

// Solver is a serializable Gorgonia Solver.
//
// Gorgonia Solvers keep per-parameter state, so the embedded Solver must
// only ever step a single model. Use Config.Create() to obtain a fresh
// Gorgonia Solver for each additional model.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newSolver: %v", err)
	}
	return &Solver{Solver: c.Create(), Type: t, Config: c}, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	var fields struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}

	decode, ok := decoders[fields.Type]
	if !ok {
		return fmt.Errorf("unmarshalJSON: unknown solver type %q",
			fields.Type)
	}
	if len(fields.Config) == 0 {
		return fmt.Errorf("unmarshalJSON: missing %v configuration",
			fields.Type)
	}
	config, err := decode(fields.Config)
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}

	decoded, err := newSolver(fields.Type, config)
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}
	*s = *decoded
	return nil
}

// Config describes a Gorgonia Solver
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool

	Validate() error
}

// options returns the Gorgonia options shared by all solvers
func options(stepSize float64, batch int, clip float64) []G.SolverOpt {
	opts := []G.SolverOpt{
		G.WithLearnRate(stepSize),
		G.WithBatchSize(float64(batch)),
	}
	if clip > 0 {
		opts = append(opts, G.WithClip(clip))
	}
	return opts
}

func validate(stepSize float64, batch int) error {
	if stepSize <= 0 {
		return fmt.Errorf("step size must be > 0")
	}
	if batch < 1 {
		return fmt.Errorf("batch size must be >= 1")
	}
	return nil
}
