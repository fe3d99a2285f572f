package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewTrackPlot creates a plot of the East-North ground track from the
// three data sources:
// truth:    the simulated trajectory
// fixes:    the accepted absolute position fixes
// filtered: the fused filter output
// Each matrix carries one position per row with East in column 0 and
// North in column 1. It returns error if either of the supplied data
// matrices is nil or has fewer than 2 columns, or if the gonum plot
// fails to be created.
func NewTrackPlot(truth, fixes, filtered *mat.Dense) (*plot.Plot, error) {
	if truth == nil || fixes == nil || filtered == nil {
		return nil, fmt.Errorf("invalid data supplied")
	}

	for _, m := range []*mat.Dense{truth, fixes, filtered} {
		if _, c := m.Dims(); c < 2 {
			return nil, fmt.Errorf("invalid data dimensions")
		}
	}

	p := plot.New()

	p.Title.Text = "Ground track"
	p.X.Label.Text = "East [m]"
	p.Y.Label.Text = "North [m]"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	truthScatter, err := plotter.NewScatter(makePoints(truth))
	if err != nil {
		return nil, err
	}
	truthScatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	truthScatter.Shape = draw.PyramidGlyph{}
	truthScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(truthScatter)
	p.Legend.Add("truth", truthScatter)

	fixScatter, err := plotter.NewScatter(makePoints(fixes))
	if err != nil {
		return nil, err
	}
	fixScatter.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
	fixScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(fixScatter)
	p.Legend.Add("fixes", fixScatter)

	filterScatter, err := plotter.NewScatter(makePoints(filtered))
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	filterScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169}
	filterScatter.Shape = draw.CrossGlyph{}
	filterScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(filterScatter)
	p.Legend.Add("filtered", filterScatter)

	return p, nil
}

func makePoints(m *mat.Dense) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, 1)
	}

	return pts
}
