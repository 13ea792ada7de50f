package report

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ayusman/shuttlescope/internal/match"
)

// ErrNoTrajectory is returned when a rally has no points to plot.
var ErrNoTrajectory = errors.New("no trajectory points")

var (
	colorX   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorY   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	colorHit = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// PlotRally writes a PNG of a rally trajectory to dir. Position components
// are drawn against frame index; interpolated frames are drawn but lost
// frames leave a gap. Hit points are marked on the y series. It returns the
// written file path.
func PlotRally(dir string, number int, points []match.TrajectoryPoint, hits []match.HitPoint) (string, error) {
	if len(points) == 0 {
		return "", ErrNoTrajectory
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create plot directory: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Rally %d - Shuttle Trajectory", number)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Position (normalized)"

	var labeled bool
	for _, run := range measuredRuns(points) {
		xs := make(plotter.XYs, 0, len(run))
		ys := make(plotter.XYs, 0, len(run))
		for _, pt := range run {
			xs = append(xs, plotter.XY{X: float64(pt.FrameIndex), Y: pt.Position.X})
			ys = append(ys, plotter.XY{X: float64(pt.FrameIndex), Y: pt.Position.Y})
		}

		xLine, err := plotter.NewLine(xs)
		if err != nil {
			return "", fmt.Errorf("x line: %w", err)
		}
		xLine.Width = vg.Points(1)
		xLine.Color = colorX

		yLine, err := plotter.NewLine(ys)
		if err != nil {
			return "", fmt.Errorf("y line: %w", err)
		}
		yLine.Width = vg.Points(1)
		yLine.Color = colorY

		p.Add(xLine, yLine)
		if !labeled {
			p.Legend.Add("x", xLine)
			p.Legend.Add("y", yLine)
			labeled = true
		}
	}

	if len(hits) > 0 {
		hs := make(plotter.XYs, 0, len(hits))
		for _, h := range hits {
			hs = append(hs, plotter.XY{X: float64(h.FrameIndex), Y: h.Position.Y})
		}
		scatter, err := plotter.NewScatter(hs)
		if err != nil {
			return "", fmt.Errorf("hit scatter: %w", err)
		}
		scatter.GlyphStyle.Radius = vg.Points(3)
		scatter.GlyphStyle.Color = colorHit
		p.Add(scatter)
		p.Legend.Add("hit", scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(dir, fmt.Sprintf("rally_%03d.png", number))
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save rally plot: %w", err)
	}
	return file, nil
}

// measuredRuns splits points into runs of consecutive non-lost frames.
func measuredRuns(points []match.TrajectoryPoint) [][]match.TrajectoryPoint {
	var runs [][]match.TrajectoryPoint
	var cur []match.TrajectoryPoint
	for _, pt := range points {
		if pt.Lost {
			if len(cur) > 0 {
				runs = append(runs, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, pt)
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}
