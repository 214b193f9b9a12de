// Package dataset loads tables of logged transitions
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/samuelfneumann/offlinedose/timestep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// Features is the number of state features of each logged row
	Features = 34

	// Columns is the minimum number of columns of a data file:
	// 34 state features, the action, the reward, and the terminal flag
	Columns = Features + 3

	actionCol   = Features
	rewardCol   = Features + 1
	terminalCol = Features + 2

	// DefaultTerminalFallback is the number of trailing rows marked
	// terminal when the data contains no terminal flags
	DefaultTerminalFallback = 1000
)

// Dataset is an immutable, in-memory table of logged transitions. Each
// row holds a state, the logged action, the reward, and a terminal flag.
type Dataset struct {
	states    []float64 // Row-major, len() == rows * features
	actions   []float64
	rewards   []float64
	terminals []float64

	features   int
	actionDims int
}

// Load reads a Dataset from a CSV file with a header row. Columns
// 0 - 33 hold the state, 34 the action, 35 the reward, and 36 the
// terminal flag. Additional columns are ignored.
//
// If no row is flagged terminal, the last DefaultTerminalFallback rows
// (or all rows if fewer exist) are marked terminal.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Op: "load", Path: path, Err: err}
	}
	defer f.Close()

	d, err := Read(f, DefaultTerminalFallback)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Path = path
			return nil, e
		}
		return nil, &Error{Op: "load", Path: path, Err: err}
	}
	return d, nil
}

// Read reads a Dataset in the format described by Load from r. The
// fallback argument is the number of trailing rows marked terminal
// when no row is flagged terminal.
func Read(r io.Reader, fallback int) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &Error{Op: "read", Err: errEmpty}
	} else if err != nil {
		return nil, &Error{Op: "read", Err: malformed("%v", err)}
	}
	if len(header) < Columns {
		return nil, &Error{Op: "read", Err: malformed("header has %v "+
			"columns, need at least %v", len(header), Columns)}
	}

	var states, actions, rewards, terminals []float64
	row := make([]float64, Columns)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, &Error{Op: "read", Err: malformed("%v", err)}
		}

		if len(record) < Columns {
			return nil, &Error{Op: "read", Err: malformed("line %v has %v "+
				"columns, need at least %v", line, len(record), Columns)}
		}

		for i := 0; i < Columns; i++ {
			row[i], err = strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, &Error{Op: "read", Err: malformed("line %v "+
					"column %v: %v", line, i, err)}
			}
		}

		states = append(states, row[:Features]...)
		actions = append(actions, row[actionCol])
		rewards = append(rewards, row[rewardCol])
		terminals = append(terminals, row[terminalCol])
	}

	return newFlat(states, actions, rewards, terminals, Features, fallback)
}

// New returns a new Dataset from the given rows. The states argument
// holds one state per row; actions, rewards, and terminals hold one
// value per row. The arguments are copied. The fallback argument is
// the number of trailing rows marked terminal when no row is flagged
// terminal.
func New(states [][]float64, actions, rewards, terminals []float64,
	fallback int) (*Dataset, error) {
	if len(states) == 0 {
		return nil, &Error{Op: "new", Err: errEmpty}
	}

	features := len(states[0])
	flat := make([]float64, 0, len(states)*features)
	for i, s := range states {
		if len(s) != features {
			return nil, &Error{Op: "new", Err: malformed("state %v has %v "+
				"features, want %v", i, len(s), features)}
		}
		flat = append(flat, s...)
	}

	return newFlat(flat, append([]float64(nil), actions...),
		append([]float64(nil), rewards...),
		append([]float64(nil), terminals...), features, fallback)
}

func newFlat(states, actions, rewards, terminals []float64, features,
	fallback int) (*Dataset, error) {
	rows := len(rewards)
	if rows == 0 || len(states) == 0 || len(actions) == 0 ||
		len(terminals) == 0 {
		return nil, &Error{Op: "new", Err: errEmpty}
	}
	if len(actions) != rows || len(terminals) != rows ||
		len(states) != rows*features {
		return nil, &Error{Op: "new", Err: malformed("column lengths "+
			"differ: states %v, actions %v, rewards %v, terminals %v",
			len(states)/features, len(actions), rows, len(terminals))}
	}

	d := &Dataset{
		states:     states,
		actions:    actions,
		rewards:    rewards,
		terminals:  terminals,
		features:   features,
		actionDims: 1,
	}

	if floats.Sum(d.terminals) == 0 {
		d.EnsureTerminals(fallback)
	}
	return d, nil
}

// EnsureTerminals marks the last n rows terminal (all rows if fewer
// than n exist) when no row is currently flagged terminal, and returns
// the number of rows it marked. Rows before the last n are never
// modified.
//
// The logged data must carry episode boundaries for the replayed
// episodes to end; this is only a fallback for data that has none.
func (d *Dataset) EnsureTerminals(n int) int {
	if n <= 0 || d.TerminalCount() > 0 {
		return 0
	}
	if n > d.Len() {
		n = d.Len()
	}
	for i := d.Len() - n; i < d.Len(); i++ {
		d.terminals[i] = 1.0
	}
	return n
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.rewards)
}

// Features returns the number of state features
func (d *Dataset) Features() int {
	return d.features
}

// ActionDims returns the dimensionality of the logged actions
func (d *Dataset) ActionDims() int {
	return d.actionDims
}

// State returns the state of row i. The returned slice must not be
// modified.
func (d *Dataset) State(i int) []float64 {
	return d.states[i*d.features : (i+1)*d.features]
}

// Action returns the logged action of row i
func (d *Dataset) Action(i int) float64 {
	return d.actions[i]
}

// Reward returns the reward of row i
func (d *Dataset) Reward(i int) float64 {
	return d.rewards[i]
}

// Terminal returns whether row i is flagged terminal
func (d *Dataset) Terminal(i int) bool {
	return d.terminals[i] != 0
}

// TerminalCount returns the number of rows flagged terminal
func (d *Dataset) TerminalCount() int {
	count := 0
	for _, t := range d.terminals {
		if t != 0 {
			count++
		}
	}
	return count
}

// MeanReward returns the average reward over all rows
func (d *Dataset) MeanReward() float64 {
	return stat.Mean(d.rewards, nil)
}

// Transition returns the logged transition of row i, whose next state
// is the state of the following row (wrapping around to the first row).
// Terminal rows have a discount of 0.
func (d *Dataset) Transition(i int, discount float64) timestep.Transition {
	if d.Terminal(i) {
		discount = 0.0
	}
	next := (i + 1) % d.Len()

	return timestep.Transition{
		State:     mat.NewVecDense(d.features, copyOf(d.State(i))),
		Action:    mat.NewVecDense(d.actionDims, []float64{d.Action(i)}),
		Reward:    d.Reward(i),
		Discount:  discount,
		NextState: mat.NewVecDense(d.features, copyOf(d.State(next))),
	}
}

func (d *Dataset) String() string {
	return fmt.Sprintf("Dataset | Samples: %v  |  Terminals: %v  |  "+
		"Average reward: %.4f", d.Len(), d.TerminalCount(), d.MeanReward())
}

func copyOf(s []float64) []float64 {
	return append([]float64(nil), s...)
}
