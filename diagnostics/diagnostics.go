// Package diagnostics renders trace and posterior-histogram plots for one
// parameter of a fitted chain's thinned sample, the only direct call site
// in this module for gonum.org/v1/plot (the teacher only reaches it
// transitively, through misc/plotgamma).
//
// Grounded on misc/plotgamma/plotgamma.go's plot.New/p.Save pattern.
package diagnostics

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// TracePlot renders the sampled value of one parameter (by schema index)
// across the thinned sample, in draw order, to a PNG at path. Useful for
// eyeballing mixing once a chain has converged.
func TracePlot(thinnedSample [][]float64, parameterIndex int, parameterName string, path string) error {
	pts, err := traceValues(thinnedSample, parameterIndex)
	if err != nil {
		return err
	}

	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	p.Title.Text = fmt.Sprintf("trace: %s", parameterName)
	p.X.Label.Text = "draw"
	p.Y.Label.Text = parameterName

	if err := plotutil.AddLines(p, pts); err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	return p.Save(8*vg.Inch, 3*vg.Inch, path)
}

// PosteriorHistogram renders a histogram of one parameter's thinned
// posterior sample to a PNG at path.
func PosteriorHistogram(thinnedSample [][]float64, parameterIndex int, parameterName string, path string) error {
	if parameterIndex < 0 || len(thinnedSample) == 0 || parameterIndex >= len(thinnedSample[0]) {
		return fmt.Errorf("diagnostics: parameter index %d out of range", parameterIndex)
	}
	values := make(plotter.Values, len(thinnedSample))
	for i, draw := range thinnedSample {
		values[i] = draw[parameterIndex]
	}

	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	p.Title.Text = fmt.Sprintf("posterior: %s", parameterName)

	hist, err := plotter.NewHist(values, bucketCount(len(values)))
	if err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	hist.Normalize(1)
	p.Add(hist)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

func traceValues(thinnedSample [][]float64, parameterIndex int) (plotter.XYs, error) {
	if len(thinnedSample) == 0 || parameterIndex < 0 || parameterIndex >= len(thinnedSample[0]) {
		return nil, fmt.Errorf("diagnostics: parameter index %d out of range", parameterIndex)
	}
	pts := make(plotter.XYs, len(thinnedSample))
	for i, draw := range thinnedSample {
		pts[i].X = float64(i)
		pts[i].Y = draw[parameterIndex]
	}
	return pts, nil
}

// bucketCount picks a histogram bucket count that scales gently with the
// sample size rather than a single fixed constant.
func bucketCount(n int) int {
	switch {
	case n < 30:
		return 5
	case n < 200:
		return 15
	default:
		return 30
	}
}
