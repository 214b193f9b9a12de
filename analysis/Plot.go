package analysis

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Output files of the plotting tools
const (
	CurveFitBase   = "curve_fitting_analysis"
	ComparisonBase = "bis01_comparison_nature_style"
)

var (
	// CurveFitFormats are the formats the curve fitting figure is
	// saved in
	CurveFitFormats = []string{"png", "pdf", "svg"}

	// ComparisonFormats are the formats the comparison figure is saved
	// in
	ComparisonFormats = []string{"svg", "png", "pdf"}
)

// Grid sizes of the fitted and smoothed curves
const (
	FitPoints    = 500
	SmoothPoints = 300
)

// Group colours
var (
	Blue = color.RGBA{R: 0x21, G: 0x66, B: 0xAC, A: 0xFF}
	Red  = color.RGBA{R: 0xB2, G: 0x18, B: 0x2B, A: 0xFF}
)

// GroupColor returns the colour of group g
func GroupColor(g int) color.RGBA {
	if g%2 == 0 {
		return Blue
	}
	return Red
}

// fade returns c with its opacity scaled by alpha
func fade(c color.RGBA, alpha float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(alpha * 255)}
}

// errorPoints are points with symmetric vertical error bars
type errorPoints struct {
	x, y, err []float64
}

func (e errorPoints) Len() int                        { return len(e.x) }
func (e errorPoints) XY(i int) (float64, float64)     { return e.x[i], e.y[i] }
func (e errorPoints) YError(i int) (float64, float64) { return e.err[i], e.err[i] }

// xys returns the points (x[i], y[i])
func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}
	return pts
}

// newPlot returns a plot with the common styling of the figures
func newPlot(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "State Offset"
	p.Y.Label.Text = "Mean Value"
	p.Legend.Top = true

	grid := plotter.NewGrid()
	grid.Vertical.Color = color.Gray{Y: 220}
	grid.Vertical.Width = vg.Points(0.5)
	grid.Horizontal.Color = color.Gray{Y: 220}
	grid.Horizontal.Width = vg.Points(0.5)
	p.Add(grid)
	return p
}

// setLimits sets the axis ranges to those of the data with the given
// fractional margins
func setLimits(p *plot.Plot, t *Table, xMargin, yMargin float64) {
	xMin, xMax := floats.Min(t.X), floats.Max(t.X)
	yMin, yMax := floats.Min(t.Groups[0].Mean), floats.Max(t.Groups[0].Mean)
	for _, g := range t.Groups[1:] {
		yMin = minf(yMin, floats.Min(g.Mean))
		yMax = maxf(yMax, floats.Max(g.Mean))
	}

	dx, dy := (xMax-xMin)*xMargin, (yMax-yMin)*yMargin
	p.X.Min, p.X.Max = xMin-dx, xMax+dx
	p.Y.Min, p.Y.Max = yMin-dy, yMax+dy
}

// CurveFitPlot returns the curve fitting figure: the mean of each group
// with standard deviation error bars, and the curve fit to each group
// evaluated on a grid of FitPoints offsets
func CurveFitPlot(t *Table, fits []Fit) (*plot.Plot, error) {
	if len(fits) != len(t.Groups) {
		return nil, fmt.Errorf("curveFitPlot: have %v fits for %v groups",
			len(fits), len(t.Groups))
	}

	p := newPlot("Curve Fitting Analysis with Standard Deviation")
	grid := Linspace(floats.Min(t.X), floats.Max(t.X), FitPoints)
	glyphs := []draw.GlyphDrawer{draw.CircleGlyph{}, draw.BoxGlyph{}}

	for g, group := range t.Groups {
		c := GroupColor(g)

		pts := errorPoints{x: t.X, y: group.Mean, err: group.Std}
		bars, err := plotter.NewYErrorBars(pts)
		if err != nil {
			return nil, fmt.Errorf("curveFitPlot: %v", err)
		}
		bars.Color = fade(c, 0.7)
		bars.Width = vg.Points(1)
		bars.CapWidth = vg.Points(6)

		scatter, err := plotter.NewScatter(xys(t.X, group.Mean))
		if err != nil {
			return nil, fmt.Errorf("curveFitPlot: %v", err)
		}
		scatter.GlyphStyle.Color = fade(c, 0.7)
		scatter.GlyphStyle.Radius = vg.Points(2.5)
		scatter.GlyphStyle.Shape = glyphs[g%len(glyphs)]

		line, err := plotter.NewLine(xys(grid, Evaluate(fits[g].Curve, grid)))
		if err != nil {
			return nil, fmt.Errorf("curveFitPlot: %v", err)
		}
		line.Color = c
		line.Width = vg.Points(2.5)

		p.Add(bars, scatter, line)
		p.Legend.Add(fmt.Sprintf("Group %v (Mean ± STD)", group.Name), scatter)
		p.Legend.Add(fmt.Sprintf("Group %v Fit (%v)", group.Name,
			fits[g].Method), line)
	}

	setLimits(p, t, 0.05, 0.08)
	return p, nil
}

// ComparisonPlot returns the group comparison figure: for each group, a
// ±1 standard deviation band, the raw means, and a cubic spline through
// the means evaluated on a grid of SmoothPoints offsets
func ComparisonPlot(t *Table) (*plot.Plot, error) {
	sorted := t.Sorted()
	p := newPlot("Comparison of Two Groups with Standard Deviation")

	var bands, lines []plot.Thumbnailer
	for g, group := range sorted.Groups {
		c := GroupColor(g)

		band, err := stdBand(sorted.X, group.Mean, group.Std)
		if err != nil {
			return nil, fmt.Errorf("comparisonPlot: %v", err)
		}
		band.Color = fade(c, 0.15)

		scatter, err := plotter.NewScatter(xys(sorted.X, group.Mean))
		if err != nil {
			return nil, fmt.Errorf("comparisonPlot: %v", err)
		}
		scatter.GlyphStyle.Color = fade(c, 0.4)
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}

		xs, ys, err := Smooth(sorted.X, group.Mean, SmoothPoints)
		if err != nil {
			return nil, fmt.Errorf("comparisonPlot: group %v: %v", group.Name,
				err)
		}
		line, err := plotter.NewLine(xys(xs, ys))
		if err != nil {
			return nil, fmt.Errorf("comparisonPlot: %v", err)
		}
		line.Color = c
		line.Width = vg.Points(1.8)

		p.Add(band, scatter, line)
		bands = append(bands, band)
		lines = append(lines, line)
	}

	for g, group := range sorted.Groups {
		p.Legend.Add(fmt.Sprintf("Group %v mean", group.Name), lines[g])
	}
	for g, group := range sorted.Groups {
		p.Legend.Add(fmt.Sprintf("Group %v ±1 STD", group.Name), bands[g])
	}

	setLimits(p, t, 0.02, 0.05)
	return p, nil
}

// stdBand returns the filled region between mean - std and mean + std,
// for x sorted in increasing order
func stdBand(x, mean, std []float64) (*plotter.Polygon, error) {
	pts := make(plotter.XYs, 0, 2*len(x))
	for i := range x {
		pts = append(pts, plotter.XY{X: x[i], Y: mean[i] - std[i]})
	}
	for i := len(x) - 1; i >= 0; i-- {
		pts = append(pts, plotter.XY{X: x[i], Y: mean[i] + std[i]})
	}

	band, err := plotter.NewPolygon(pts)
	if err != nil {
		return nil, err
	}
	band.LineStyle.Width = 0
	return band, nil
}

// SaveAll saves the plot as base.<format> for each format and returns
// the names of the files written
func SaveAll(p *plot.Plot, base string, formats []string, width,
	height vg.Length) ([]string, error) {
	var saved []string
	for _, format := range formats {
		name := fmt.Sprintf("%v.%v", base, format)
		if err := p.Save(width, height, name); err != nil {
			return saved, fmt.Errorf("saveAll: %v", err)
		}
		saved = append(saved, name)
	}
	return saved, nil
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
