package report

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/passenger.counter/internal/db"
)

var (
	inColor  = color.RGBA{R: 0x1f, G: 0x9e, B: 0x89, A: 0xff}
	outColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// echartsAssetsHost serves the echarts javascript for rendered pages.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderPNG draws in and out counts per bucket as two lines.
func RenderPNG(title string, buckets []db.CountBucket, interval time.Duration) ([]byte, error) {
	filled := Fill(buckets, interval)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time"
	p.Y.Label.Text = fmt.Sprintf("Passengers per %v", interval)
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04"}
	p.Y.Min = 0

	ins := make(plotter.XYs, len(filled))
	outs := make(plotter.XYs, len(filled))
	for i, b := range filled {
		x := float64(b.Start.Unix())
		ins[i] = plotter.XY{X: x, Y: float64(b.In)}
		outs[i] = plotter.XY{X: x, Y: float64(b.Out)}
	}

	if len(filled) > 0 {
		inLine, err := plotter.NewLine(ins)
		if err != nil {
			return nil, err
		}
		inLine.Color = inColor
		inLine.Width = vg.Points(1.5)
		p.Add(inLine)
		p.Legend.Add("in", inLine)

		outLine, err := plotter.NewLine(outs)
		if err != nil {
			return nil, err
		}
		outLine.Color = outColor
		outLine.Width = vg.Points(1.5)
		p.Add(outLine)
		p.Legend.Add("out", outLine)
	}
	p.Add(plotter.NewGrid())

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("create png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render png: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderHTML writes an interactive stacked bar chart of in and out
// counts per bucket.
func RenderHTML(w io.Writer, title string, s Summary, buckets []db.CountBucket, interval time.Duration) error {
	filled := Fill(buckets, interval)

	x := make([]string, len(filled))
	ins := make([]opts.BarData, len(filled))
	outs := make([]opts.BarData, len(filled))
	for i, b := range filled {
		x[i] = b.Start.Format("2006-01-02 15:04")
		ins[i] = opts.BarData{Value: b.In}
		outs[i] = opts.BarData{Value: b.Out}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "560px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("in=%d out=%d net=%d, p50=%.1f p90=%.1f per %s", s.Totals.In, s.Totals.Out, s.Net, s.P50, s.P90, s.Interval),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	stacked := charts.WithBarChartOpts(opts.BarChart{Stack: "total"})
	bar.SetXAxis(x).
		AddSeries("in", ins, stacked, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#1f9e89"})).
		AddSeries("out", outs, stacked, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#d62728"}))

	return bar.Render(w)
}
