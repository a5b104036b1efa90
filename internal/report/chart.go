package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// missing is how echarts marks a gap in a line series.
const missing = "-"

// Chart builds an interactive line chart of the trace. Unmeasured frames
// leave gaps; the thresholds are mark lines on the mean series and every
// counted rep is a mark point.
func (t *Trace) Chart() (*charts.Line, error) {
	if len(t.Points) == 0 {
		return nil, ErrNoMeasurements
	}

	x := make([]string, 0, len(t.Points))
	left := make([]opts.LineData, 0, len(t.Points))
	right := make([]opts.LineData, 0, len(t.Points))
	mean := make([]opts.LineData, 0, len(t.Points))
	var reps []opts.MarkPointNameCoordItem
	measured := 0
	for _, p := range t.Points {
		label := strconv.FormatFloat(seconds(p.Timestamp), 'f', 3, 64)
		x = append(x, label)
		if !p.Measured {
			left = append(left, opts.LineData{Value: missing})
			right = append(right, opts.LineData{Value: missing})
			mean = append(mean, opts.LineData{Value: missing})
			continue
		}
		measured++
		left = append(left, opts.LineData{Value: round1(p.Left)})
		right = append(right, opts.LineData{Value: round1(p.Right)})
		mean = append(mean, opts.LineData{Value: round1(p.Mean())})
		if p.Rep > 0 {
			reps = append(reps, opts.MarkPointNameCoordItem{
				Name:       fmt.Sprintf("rep %d", p.Rep),
				Coordinate: []interface{}{label, round1(p.Mean())},
				Value:      strconv.Itoa(p.Rep),
			})
		}
	}
	if measured == 0 {
		return nil, ErrNoMeasurements
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Step-up knee angle", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Knee angle", Subtitle: fmt.Sprintf("%s: %d step-ups, %d frames", t.Source, t.Reps, len(t.Points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "angle (°)", Min: 0, Max: 180}),
	)
	line.SetXAxis(x).
		AddSeries("left", left).
		AddSeries("right", right).
		AddSeries("mean", mean,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithMarkLineNameYAxisItemOpts(
				opts.MarkLineNameYAxisItem{Name: "up", YAxis: t.Thresholds.Up},
				opts.MarkLineNameYAxisItem{Name: "down", YAxis: t.Thresholds.Down},
			),
			charts.WithMarkPointNameCoordItemOpts(reps...),
		)
	return line, nil
}

// RenderHTML writes the chart as a standalone HTML page.
func (t *Trace) RenderHTML(w io.Writer) error {
	line, err := t.Chart()
	if err != nil {
		return err
	}
	return line.Render(w)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
