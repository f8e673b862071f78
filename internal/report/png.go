package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// WritePNG renders the occupancy rate time series as a static PNG for
// contexts where the HTML page is not usable.
func WritePNG(w io.Writer, exp *parking.MetricsExport) error {
	p := plot.New()
	p.Title.Text = "Occupancy Rate"
	p.X.Label.Text = "time"
	p.Y.Label.Text = "occupancy rate"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04"}
	p.Y.Min = 0
	p.Y.Max = 1

	pts := make(plotter.XYs, 0, len(exp.Snapshots))
	for _, snap := range exp.Snapshots {
		pts = append(pts, plotter.XY{
			X: float64(snap.Timestamp.Unix()),
			Y: snap.OccupancyRate,
		})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build occupancy line: %w", err)
	}
	line.Width = vg.Points(1)

	p.Add(plotter.NewGrid(), line)

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render occupancy png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write occupancy png: %w", err)
	}
	return nil
}
