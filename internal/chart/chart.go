package chart

import (
	"bytes"
	"fmt"
	"time"

	"crypto-price-bot/lib/helpers"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	width  = 1200
	height = 600
)

var (
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	gridColor       = drawing.Color{R: 100, G: 100, B: 100, A: 128}
	lineColor       = drawing.Color{R: 0, G: 122, B: 255, A: 255}
	fillColor       = drawing.Color{R: 0, G: 122, B: 255, A: 25}
)

var ErrNotEnoughData = errors.New("not enough data points to draw a chart")

// Point is one price sample.
type Point struct {
	Time  time.Time
	Price float64
}

// RenderPrice draws a dark themed USD price line chart and returns it as PNG.
func RenderPrice(title string, points []Point) ([]byte, error) {
	if len(points) < 2 {
		return nil, ErrNotEnoughData
	}

	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Time
		ys[i] = p.Price
	}

	minValue, maxValue := paddedRange(ys)
	span := points[len(points)-1].Time.Sub(points[0].Time)

	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.Style{FontColor: textColor, FontSize: 14},
		Width:      width,
		Height:     height,
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 60, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{FillColor: backgroundColor},
		XAxis: chart.XAxis{
			Style:          chart.Style{FontColor: textColor, StrokeColor: textColor, FontSize: 11},
			ValueFormatter: chart.TimeValueFormatterWithFormat(timeFormat(span)),
		},
		YAxis: chart.YAxis{
			Style:          chart.Style{FontColor: textColor, StrokeColor: textColor, FontSize: 11},
			GridMajorStyle: chart.Style{StrokeColor: gridColor, StrokeWidth: 1},
			Range:          &chart.ContinuousRange{Min: minValue, Max: maxValue},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return "$" + helpers.FormatPriceUS(f, false)
				}
				return fmt.Sprint(v)
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: title,
				Style: chart.Style{
					StrokeColor: lineColor,
					StrokeWidth: 2,
					FillColor:   fillColor,
				},
				XValues: xs,
				YValues: ys,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "render chart")
	}
	return buf.Bytes(), nil
}

// paddedRange returns the y range with 10% headroom on both sides.
func paddedRange(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	padding := (hi - lo) * 0.1
	if padding == 0 {
		padding = hi * 0.01
		if padding == 0 {
			padding = 1
		}
	}
	return lo - padding, hi + padding
}

func timeFormat(span time.Duration) string {
	if span <= 48*time.Hour {
		return "Jan 02 15:04"
	}
	return "02-Jan"
}
