package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrPolyFit is returned when a least-squares polynomial cannot be fit
// to the data
var ErrPolyFit = errors.New("polynomial fit failed")

// Fitting methods
const (
	PolynomialMethod = "4th Order Polynomial"
	SplineMethod     = "Spline Interpolation"
)

// FitDegree is the degree of the fitted polynomials
const FitDegree = 4

// Curve is a function fit to data
type Curve interface {
	Predict(x float64) float64
}

// Polynomial is a polynomial in the standardized variable
// (x - Shift) / Scale, with coefficients in increasing order of degree
type Polynomial struct {
	Coef  []float64
	Shift float64
	Scale float64
}

// PolyFit fits a polynomial of the given degree to the points (x, y) by
// least squares. The returned error wraps ErrPolyFit if the data cannot
// determine the polynomial.
func PolyFit(x, y []float64, degree int) (Polynomial, error) {
	if len(x) != len(y) {
		return Polynomial{}, fmt.Errorf("polyFit: %w: %v x values and %v "+
			"y values", ErrPolyFit, len(x), len(y))
	}
	if degree < 0 {
		return Polynomial{}, fmt.Errorf("polyFit: %w: negative degree",
			ErrPolyFit)
	}
	for i := range x {
		if math.IsNaN(x[i]) || math.IsInf(x[i], 0) ||
			math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return Polynomial{}, fmt.Errorf("polyFit: %w: non-finite data "+
				"at %v", ErrPolyFit, i)
		}
	}
	if n := distinct(x); n <= degree {
		return Polynomial{}, fmt.Errorf("polyFit: %w: %v distinct x values "+
			"cannot determine a degree %v polynomial", ErrPolyFit, n, degree)
	}

	// Standardize x to keep the Vandermonde matrix well conditioned
	lo, hi := floats.Min(x), floats.Max(x)
	p := Polynomial{Shift: (lo + hi) / 2, Scale: (hi - lo) / 2}
	if p.Scale == 0 {
		p.Scale = 1
	}

	a := mat.NewDense(len(x), degree+1, nil)
	for i, xi := range x {
		z := (xi - p.Shift) / p.Scale
		v := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, v)
			v *= z
		}
	}

	var coef mat.VecDense
	if err := coef.SolveVec(a, mat.NewVecDense(len(y), append([]float64(nil),
		y...))); err != nil {
		return Polynomial{}, fmt.Errorf("polyFit: %w: %v", ErrPolyFit, err)
	}
	p.Coef = append([]float64(nil), coef.RawVector().Data...)
	return p, nil
}

// Predict evaluates the polynomial at x
func (p Polynomial) Predict(x float64) float64 {
	z := (x - p.Shift) / p.Scale
	var y float64
	for i := len(p.Coef) - 1; i >= 0; i-- {
		y = y*z + p.Coef[i]
	}
	return y
}

// Fit is a curve fit to one group
type Fit struct {
	Method string
	Curve  Curve

	// Err is the polynomial fit error that caused the fall back to a
	// spline, or nil
	Err error
}

// Polynomial returns whether the fit is a least-squares polynomial
func (f Fit) Polynomial() bool {
	return f.Err == nil
}

// FitCurve fits a 4th order polynomial to (x, y), falling back to a
// spline through the sorted data if the polynomial fit fails
func FitCurve(x, y []float64) (Fit, error) {
	poly, err := PolyFit(x, y, FitDegree)
	if err == nil {
		return Fit{Method: PolynomialMethod, Curve: poly}, nil
	}

	spline, splineErr := fitSpline(x, y, &interp.AkimaSpline{})
	if splineErr != nil {
		return Fit{}, fmt.Errorf("fitCurve: %v; fallback: %v", err,
			splineErr)
	}
	return Fit{Method: SplineMethod, Curve: spline, Err: err}, nil
}

// FitGroups fits a curve to the mean of every group of t. All groups
// share one method: if the polynomial fit of any group fails, every
// group is fit with a spline.
func FitGroups(t *Table) ([]Fit, error) {
	fits := make([]Fit, len(t.Groups))
	var polyErr error
	for g, group := range t.Groups {
		poly, err := PolyFit(t.X, group.Mean, FitDegree)
		if err != nil {
			polyErr = fmt.Errorf("group %v: %w", group.Name, err)
			break
		}
		fits[g] = Fit{Method: PolynomialMethod, Curve: poly}
	}
	if polyErr == nil {
		return fits, nil
	}

	for g, group := range t.Groups {
		spline, err := fitSpline(t.X, group.Mean, &interp.AkimaSpline{})
		if err != nil {
			return nil, fmt.Errorf("fitGroups: %v; fallback: group %v: %v",
				polyErr, group.Name, err)
		}
		fits[g] = Fit{Method: SplineMethod, Curve: spline, Err: polyErr}
	}
	return fits, nil
}

// fittablePredictor is an interpolator that can be fit to data
type fittablePredictor interface {
	Fit(xs, ys []float64) error
	Predict(x float64) float64
}

// fitSpline fits s to the points (x, y) sorted by x, averaging the y
// values of repeated x values. A piecewise linear interpolant is used
// if there are too few points for s.
func fitSpline(x, y []float64, s fittablePredictor) (Curve, error) {
	xs, ys := collapse(x, y)
	if len(xs) < 2 {
		return nil, fmt.Errorf("fitSpline: need at least 2 distinct x "+
			"values, have %v", len(xs))
	}

	if len(xs) < 4 {
		var linear interp.PiecewiseLinear
		if err := linear.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("fitSpline: %v", err)
		}
		return &linear, nil
	}

	if err := s.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fitSpline: %v", err)
	}
	return s, nil
}

// Smooth returns n evenly spaced points spanning the x range of the data
// and the values of a cubic not-a-knot spline interpolating (x, y) at
// those points
func Smooth(x, y []float64, n int) ([]float64, []float64, error) {
	curve, err := fitSpline(x, y, &notAKnotCubic{})
	if err != nil {
		return nil, nil, fmt.Errorf("smooth: %v", err)
	}

	xs := Linspace(floats.Min(x), floats.Max(x), n)
	return xs, Evaluate(curve, xs), nil
}

// notAKnotCubic is the C² cubic spline interpolant whose third
// derivative is also continuous at the second and second to last knots
type notAKnotCubic struct {
	interp.PiecewiseCubic
}

// Fit fits the spline to at least 4 points with strictly increasing xs
func (s *notAKnotCubic) Fit(xs, ys []float64) error {
	slopes, err := notAKnotSlopes(xs, ys)
	if err != nil {
		return err
	}
	s.FitWithDerivatives(xs, ys, slopes)
	return nil
}

// notAKnotSlopes solves for the first derivatives of the not-a-knot
// spline at each knot
func notAKnotSlopes(xs, ys []float64) ([]float64, error) {
	n := len(xs)
	if n < 4 || len(ys) != n {
		return nil, fmt.Errorf("not-a-knot spline needs at least 4 points")
	}

	h := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := range h {
		h[i] = xs[i+1] - xs[i]
		if h[i] <= 0 {
			return nil, fmt.Errorf("knots must be strictly increasing")
		}
		delta[i] = (ys[i+1] - ys[i]) / h[i]
	}

	a := mat.NewDense(n, n, nil)
	b := mat.NewVecDense(n, nil)

	d := h[0] + h[1]
	a.Set(0, 0, h[1])
	a.Set(0, 1, d)
	b.SetVec(0, ((h[0]+2*d)*h[1]*delta[0]+h[0]*h[0]*delta[1])/d)

	for i := 1; i < n-1; i++ {
		a.Set(i, i-1, h[i])
		a.Set(i, i, 2*(h[i-1]+h[i]))
		a.Set(i, i+1, h[i-1])
		b.SetVec(i, 3*(h[i]*delta[i-1]+h[i-1]*delta[i]))
	}

	last, prev := h[n-2], h[n-3]
	d = last + prev
	a.Set(n-1, n-2, d)
	a.Set(n-1, n-1, prev)
	b.SetVec(n-1, (last*last*delta[n-3]+(2*d+last)*prev*delta[n-2])/d)

	var m mat.VecDense
	if err := m.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("not-a-knot spline: %v", err)
	}
	return m.RawVector().Data, nil
}

// Linspace returns n evenly spaced values from min to max inclusive
func Linspace(min, max float64, n int) []float64 {
	if n < 2 {
		return []float64{min}
	}
	return floats.Span(make([]float64, n), min, max)
}

// Evaluate returns the curve's predictions at each of xs
func Evaluate(c Curve, xs []float64) []float64 {
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = c.Predict(x)
	}
	return ys
}

// RSquared returns the coefficient of determination of the curve's
// predictions of y at x
func RSquared(c Curve, x, y []float64) float64 {
	return stat.RSquaredFrom(Evaluate(c, x), y, nil)
}

// distinct returns the number of distinct values in s
func distinct(s []float64) int {
	seen := make(map[float64]struct{}, len(s))
	for _, v := range s {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// collapse returns the points sorted by x, with points sharing an x
// value replaced by their mean
func collapse(x, y []float64) ([]float64, []float64) {
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return x[order[i]] < x[order[j]] })

	var xs, ys []float64
	count := 0
	for _, i := range order {
		if len(xs) > 0 && x[i] == xs[len(xs)-1] {
			count++
			last := len(ys) - 1
			ys[last] += (y[i] - ys[last]) / float64(count)
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
		count = 1
	}
	return xs, ys
}
