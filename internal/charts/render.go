package charts

import (
	"fmt"
	"io"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/pv/callpanel-go/internal/model"
)

const (
	chartWidth  = 640
	chartHeight = 400
)

// lineColor цвет линии графика длительности звонков
var lineColor = drawing.ColorFromHex("8b5cf6")

// RenderDuration рисует линейный график длительности звонков в PNG
func RenderDuration(dataset model.ChartDataset, w io.Writer) error {
	if len(dataset) == 0 {
		return fmt.Errorf("empty dataset")
	}

	xs := make([]float64, len(dataset))
	ys := make([]float64, len(dataset))
	ticks := make([]chart.Tick, len(dataset))
	for i, d := range dataset {
		xs[i] = float64(i)
		ys[i] = float64(d.Count)
		ticks[i] = chart.Tick{Value: float64(i), Label: d.Name}
	}

	ch := chart.Chart{
		Width:  chartWidth,
		Height: chartHeight,
		XAxis: chart.XAxis{
			Ticks: ticks,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "count",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: lineColor,
					StrokeWidth: 3,
					DotColor:    lineColor,
					DotWidth:    4,
				},
			},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	return ch.Render(chart.PNG, w)
}

// RenderIssues рисует столбчатый график причин неудачных звонков в PNG
func RenderIssues(issues []model.IssueDatum, w io.Writer) error {
	if len(issues) == 0 {
		return fmt.Errorf("empty dataset")
	}

	bars := make([]chart.Value, len(issues))
	for i, d := range issues {
		bars[i] = chart.Value{
			Value: float64(d.Value),
			Label: d.Issue,
			Style: chart.Style{
				FillColor:   colorFromHex(d.Fill),
				StrokeColor: colorFromHex(d.Fill),
			},
		}
	}

	ch := chart.BarChart{
		Width:    chartWidth,
		Height:   chartHeight,
		BarWidth: 60,
		Bars:     bars,
	}

	return ch.Render(chart.PNG, w)
}

// RenderHostility рисует кольцевую диаграмму уровней агрессивности в PNG
func RenderHostility(levels []model.HostilityDatum, w io.Writer) error {
	if len(levels) == 0 {
		return fmt.Errorf("empty dataset")
	}

	values := make([]chart.Value, len(levels))
	for i, d := range levels {
		values[i] = chart.Value{
			Value: float64(d.Value),
			Label: d.Label,
			Style: chart.Style{
				FillColor: colorFromHex(d.Color),
			},
		}
	}

	ch := chart.DonutChart{
		Width:  chartHeight,
		Height: chartHeight,
		Values: values,
	}

	return ch.Render(chart.PNG, w)
}

func colorFromHex(hex string) drawing.Color {
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}
