// Package report renders a session's metrics export as human-readable
// artefacts: an interactive HTML page (go-echarts) and a static PNG
// occupancy chart (gonum/plot).
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

const timeLabelFormat = "15:04:05"

// WriteHTML renders the occupancy report page: a line chart of occupancy
// rate over the snapshot stream and a bar chart of the peak hours.
func WriteHTML(w io.Writer, exp *parking.MetricsExport, title string) error {
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(occupancyLineChart(exp), peakHoursBarChart(exp))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report page: %w", err)
	}
	return nil
}

func occupancyLineChart(exp *parking.MetricsExport) *charts.Line {
	x := make([]string, 0, len(exp.Snapshots))
	y := make([]opts.LineData, 0, len(exp.Snapshots))
	for _, snap := range exp.Snapshots {
		x = append(x, snap.Timestamp.Format(timeLabelFormat))
		y = append(y, opts.LineData{Value: snap.OccupancyRate})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Occupancy Rate",
			Subtitle: fmt.Sprintf("%d snapshots, %d transitions", len(exp.Snapshots), len(exp.Transitions)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	line.SetXAxis(x).
		AddSeries("occupancy", y,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}),
		)
	return line
}

func peakHoursBarChart(exp *parking.MetricsExport) *charts.Bar {
	x := make([]string, 0, len(exp.Summary.PeakHours))
	y := make([]opts.BarData, 0, len(exp.Summary.PeakHours))
	for _, ph := range exp.Summary.PeakHours {
		x = append(x, hourLabel(ph.Hour))
		y = append(y, opts.BarData{Value: ph.AvgOccupancyRate})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Peak Hours",
			Subtitle: fmt.Sprintf("avg turnover %.2f events/hour", exp.Summary.AvgTurnoverRate),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("avg occupancy", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// hourLabel is shared with the PNG renderer.
func hourLabel(t time.Time) string {
	return t.Format("Jan 2 15:00")
}
