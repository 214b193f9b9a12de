package analysis

import (
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GroupSummary summarizes the results of one group
type GroupSummary struct {
	Name     string
	Min, Max float64 // Range of the group means
	Mean     float64 // Mean of the group means
	MeanStd  float64 // Mean of the group standard deviations

	// RSquared is the coefficient of determination of the group's fit
	// at the original offsets. It is only set for polynomial fits.
	RSquared    float64
	HasRSquared bool
}

// Summary summarizes a table of group results
type Summary struct {
	Method      string // Fitting method, empty if no curves were fit
	N           int
	XMin, XMax  float64
	Groups      []GroupSummary
	Correlation float64 // Pearson correlation between the group means
}

// Summarize returns the summary of t. If fits is not nil, it holds one
// fit per group of t.
func Summarize(t *Table, fits []Fit) Summary {
	s := Summary{
		N:    t.Len(),
		XMin: floats.Min(t.X),
		XMax: floats.Max(t.X),
	}
	if len(fits) > 0 {
		s.Method = fits[0].Method
	}

	for g, group := range t.Groups {
		gs := GroupSummary{
			Name:    group.Name,
			Min:     floats.Min(group.Mean),
			Max:     floats.Max(group.Mean),
			Mean:    stat.Mean(group.Mean, nil),
			MeanStd: stat.Mean(group.Std, nil),
		}
		if g < len(fits) && fits[g].Polynomial() {
			gs.RSquared = RSquared(fits[g].Curve, t.X, group.Mean)
			gs.HasRSquared = true
		}
		s.Groups = append(s.Groups, gs)
	}

	if len(t.Groups) >= 2 {
		s.Correlation = stat.Correlation(t.Groups[0].Mean, t.Groups[1].Mean,
			nil)
	}
	return s
}

// WriteTo writes a human readable report of the summary to w
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "\n%v\n", rule)
	if s.Method != "" {
		fmt.Fprintln(&b, "CURVE FITTING ANALYSIS SUMMARY")
		fmt.Fprintln(&b, rule)
		fmt.Fprintf(&b, "Fitting method used: %v\n", s.Method)
		fmt.Fprintf(&b, "Number of data points: %v\n", s.N)
	} else {
		fmt.Fprintln(&b, "DATA ANALYSIS SUMMARY")
		fmt.Fprintln(&b, rule)
	}
	fmt.Fprintf(&b, "X-axis range: %.2f to %.2f\n", s.XMin, s.XMax)

	for _, g := range s.Groups {
		if s.Method != "" {
			fmt.Fprintf(&b, "Group %v range: %.2f to %.2f\n", g.Name, g.Min,
				g.Max)
		}
		fmt.Fprintf(&b, "Group %v mean ± std: %.2f ± %.2f\n", g.Name, g.Mean,
			g.MeanStd)
	}
	fmt.Fprintf(&b, "Correlation between groups: %.3f\n", s.Correlation)

	for _, g := range s.Groups {
		if g.HasRSquared {
			fmt.Fprintf(&b, "Group %v R² score: %.3f\n", g.Name, g.RSquared)
		}
	}
	fmt.Fprintln(&b, rule)

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
