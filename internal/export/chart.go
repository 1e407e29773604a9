package export

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/peaking-cli/internal/model"
)

var (
	barColor  = color.RGBA{R: 0x3b, G: 0x7d, B: 0xa8, A: 0xff}
	peakColor = color.RGBA{R: 0xd9, G: 0x4f, B: 0x2b, A: 0xff}
)

// CitySeries returns the dashboard rows of city in year order.
func CitySeries(rows []model.DashboardRow, city string) []model.DashboardRow {
	var out []model.DashboardRow
	for _, r := range rows {
		if r.City == city {
			out = append(out, r)
		}
	}
	return out
}

// RenderChart draws a city's dashboard series as a bar chart, with the peak
// year in a second colour, and saves it to path. The image format follows
// the extension (.png, .svg, .pdf).
func RenderChart(path, city string, series []model.DashboardRow) error {
	if len(series) == 0 {
		return eris.Errorf("export: no dashboard rows for %q", city)
	}

	values := make(plotter.Values, len(series))
	peak := make(plotter.Values, len(series))
	labels := make([]string, len(series))
	for i, r := range series {
		labels[i] = strconv.Itoa(r.Year)
		if !model.IsMissing(r.Emissions) {
			values[i] = r.Emissions
		}
		if r.PeakYear == 1 {
			peak[i] = values[i]
			values[i] = 0
		}
	}

	p := plot.New()
	p.Title.Text = city + " (" + string(series[0].Status) + ")"
	p.Title.TextStyle.Font.Size = vg.Points(12)
	p.Y.Label.Text = "Emissions (mtCO2e)"
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.Font.Size = vg.Points(6)

	width := vg.Points(8)
	bars, err := plotter.NewBarChart(values, width)
	if err != nil {
		return eris.Wrap(err, "export: bar chart")
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0

	peakBars, err := plotter.NewBarChart(peak, width)
	if err != nil {
		return eris.Wrap(err, "export: peak bar chart")
	}
	peakBars.Color = peakColor
	peakBars.LineStyle.Width = 0

	p.Add(bars, peakBars, plotter.NewGrid())
	p.NominalX(labels...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create %s", filepath.Dir(path))
	}
	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return eris.Wrapf(err, "export: save chart %s", path)
	}
	return nil
}
