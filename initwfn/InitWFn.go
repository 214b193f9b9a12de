// Package initwfn wraps Gorgonia weight initializers so that network
// initialization can be named in JSON configuration files
package initwfn

import (
	"encoding/json"
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type names a weight initialization scheme
type Type string

const (
	GlorotU Type = "GlorotU"
	GlorotN Type = "GlorotN"
	HeU     Type = "HeU"
	HeN     Type = "HeN"
	Zeroes  Type = "Zeroes"
)

// gained are the schemes scaled by a gain
var gained = map[Type]func(float64) G.InitWFn{
	GlorotU: G.GlorotU,
	GlorotN: G.GlorotN,
	HeU:     G.HeU,
	HeN:     G.HeN,
}

// InitWFn is a serializable Gorgonia InitWFn. Gain is ignored by
// Zeroes.
type InitWFn struct {
	Type Type
	Gain float64

	initWFn G.InitWFn
}

// New returns a new InitWFn of type t
func New(t Type, gain float64) (*InitWFn, error) {
	w := &InitWFn{Type: t, Gain: gain}
	if err := w.create(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return w, nil
}

// NewGlorotU returns a Glorot uniform initializer
func NewGlorotU(gain float64) (*InitWFn, error) { return New(GlorotU, gain) }

// NewGlorotN returns a Glorot normal initializer
func NewGlorotN(gain float64) (*InitWFn, error) { return New(GlorotN, gain) }

// NewHeU returns a He uniform initializer
func NewHeU(gain float64) (*InitWFn, error) { return New(HeU, gain) }

// NewHeN returns a He normal initializer
func NewHeN(gain float64) (*InitWFn, error) { return New(HeN, gain) }

// NewZeroes returns an initializer setting all weights to 0
func NewZeroes() (*InitWFn, error) { return New(Zeroes, 0) }

func (w *InitWFn) create() error {
	if w.Type == Zeroes {
		w.initWFn = G.Zeroes()
		return nil
	}

	fn, ok := gained[w.Type]
	if !ok {
		return fmt.Errorf("unknown InitWFn type %q", w.Type)
	}
	if w.Gain <= 0 {
		return fmt.Errorf("%v gain must be > 0", w.Type)
	}
	w.initWFn = fn(w.Gain)
	return nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (w *InitWFn) InitWFn() G.InitWFn {
	return w.initWFn
}

func (w *InitWFn) String() string {
	if w.Type == Zeroes {
		return string(w.Type)
	}
	return fmt.Sprintf("%v(gain=%v)", w.Type, w.Gain)
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (w *InitWFn) UnmarshalJSON(data []byte) error {
	var fields struct {
		Type Type
		Gain float64
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}

	w.Type, w.Gain = fields.Type, fields.Gain
	if err := w.create(); err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}
	return nil
}
