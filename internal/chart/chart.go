package chart

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"crypto-portfolio-monitor/internal/types"
	"crypto-portfolio-monitor/lib/helpers"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	Width  = 1200
	Height = 600
)

var (
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	gridColor       = drawing.Color{R: 100, G: 100, B: 100, A: 128}
	seriesColor     = drawing.Color{R: 0, G: 122, B: 255, A: 255}
	seriesFill      = drawing.Color{R: 0, G: 122, B: 255, A: 25}
)

var (
	fontOnce sync.Once
	font     *truetype.Font
	fontErr  error
)

func defaultFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		font, fontErr = gochart.GetDefaultFont()
	})
	return font, fontErr
}

// ErrNotEnoughPoints is returned when a series has fewer than two points.
var ErrNotEnoughPoints = errors.New("at least two price points are required")

// Render draws coin's price history as a PNG.
func Render(coin string, points []types.PricePoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, ErrNotEnoughPoints
	}

	f, err := defaultFont()
	if err != nil {
		return nil, errors.Wrap(err, "could not load chart font")
	}

	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	minPrice, maxPrice := points[0].Price, points[0].Price
	for i, p := range points {
		xs[i] = p.Timestamp
		ys[i] = p.Price
		if p.Price < minPrice {
			minPrice = p.Price
		}
		if p.Price > maxPrice {
			maxPrice = p.Price
		}
	}
	padding := (maxPrice - minPrice) * 0.1
	if padding == 0 {
		padding = maxPrice * 0.01
	}

	days := xs[len(xs)-1].Sub(xs[0]).Hours() / 24
	graph := gochart.Chart{
		Title:  fmt.Sprintf("%s price (%.0f days)", coin, days),
		Width:  Width,
		Height: Height,
		Font:   f,
		TitleStyle: gochart.Style{
			FontColor: textColor,
			FontSize:  14,
		},
		Background: gochart.Style{
			FillColor: backgroundColor,
			Padding:   gochart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: gochart.Style{FillColor: backgroundColor},
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeValueFormatterWithFormat("02-Jan"),
			Style:          gochart.Style{FontColor: textColor, StrokeColor: textColor},
		},
		YAxis: gochart.YAxis{
			Range: &gochart.ContinuousRange{Min: minPrice - padding, Max: maxPrice + padding},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return "$" + helpers.FormatPriceUS(f)
				}
				return ""
			},
			Style:          gochart.Style{FontColor: textColor, StrokeColor: textColor},
			GridMajorStyle: gochart.Style{StrokeColor: gridColor, StrokeWidth: 1},
		},
		Series: []gochart.Series{
			gochart.TimeSeries{
				Name:    coin,
				XValues: xs,
				YValues: ys,
				Style: gochart.Style{
					StrokeColor: seriesColor,
					StrokeWidth: 2,
					FillColor:   seriesFill,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, errors.Wrapf(err, "could not render chart for %s", coin)
	}
	return buf.Bytes(), nil
}
