package report

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNoMeasurements is returned when a trace has no measured frame to chart.
var ErrNoMeasurements = errors.New("no measured frames to chart")

var (
	colorLeft  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorRight = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorMean  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	colorBand  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	colorRep   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Plot builds the knee angle chart: one line per leg, the mean, dashed
// threshold lines and a cross on every counted rep.
func (t *Trace) Plot() (*plot.Plot, error) {
	var left, right, mean, reps plotter.XYs
	for _, p := range t.Points {
		if !p.Measured {
			continue
		}
		x := seconds(p.Timestamp)
		left = append(left, plotter.XY{X: x, Y: p.Left})
		right = append(right, plotter.XY{X: x, Y: p.Right})
		mean = append(mean, plotter.XY{X: x, Y: p.Mean()})
		if p.Rep > 0 {
			reps = append(reps, plotter.XY{X: x, Y: p.Mean()})
		}
	}
	if len(mean) == 0 {
		return nil, ErrNoMeasurements
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %d step-ups", t.Source, t.Reps)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Knee angle (°)"
	p.Y.Min, p.Y.Max = 0, 180
	p.X.Min = 0
	p.X.Max = seconds(t.Points[len(t.Points)-1].Timestamp)
	if p.X.Max <= 0 {
		p.X.Max = 1
	}

	for _, s := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
		w    vg.Length
	}{
		{"left", left, colorLeft, vg.Points(1)},
		{"right", right, colorRight, vg.Points(1)},
		{"mean", mean, colorMean, vg.Points(2)},
	} {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return nil, err
		}
		line.Color = s.c
		line.Width = s.w
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	for _, th := range []struct {
		name string
		v    float64
	}{
		{fmt.Sprintf("up %.0f°", t.Thresholds.Up), t.Thresholds.Up},
		{fmt.Sprintf("down %.0f°", t.Thresholds.Down), t.Thresholds.Down},
	} {
		v := th.v
		fn := plotter.NewFunction(func(float64) float64 { return v })
		fn.Color = colorBand
		fn.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(fn)
		p.Legend.Add(th.name, fn)
	}

	if len(reps) > 0 {
		sc, err := plotter.NewScatter(reps)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = colorRep
		sc.GlyphStyle.Radius = vg.Points(5)
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(sc)
		p.Legend.Add("rep", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePlot renders the chart to file. The format follows the extension
// (.png, .svg, .pdf).
func (t *Trace) SavePlot(file string) error {
	p, err := t.Plot()
	if err != nil {
		return err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", file, err)
	}
	return nil
}
