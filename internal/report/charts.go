package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ayusman/shuttlescope/internal/analysis"
	"github.com/ayusman/shuttlescope/internal/match"
)

// RenderCharts writes an HTML page with the session charts: shot type
// distribution, shots per rally, score momentum and rally endings.
func RenderCharts(w io.Writer, s Stats, title string) error {
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(
		shotDistributionChart(s),
		rallyLengthChart(s),
		momentumChart(s),
		endingsChart(s),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	return nil
}

func globalOpts(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}
}

func shotDistributionChart(s Stats) *charts.Bar {
	var x []string
	var a, b []opts.BarData
	for _, t := range analysis.ShotTypes() {
		if s.ShotDistribution.Counts[t] == 0 {
			continue
		}
		x = append(x, t)
		a = append(a, opts.BarData{Value: s.ShotsByPlayer[match.PlayerA][t]})
		b = append(b, opts.BarData{Value: s.ShotsByPlayer[match.PlayerB][t]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Shot Distribution", fmt.Sprintf("total=%d", s.ShotDistribution.Total))...)
	bar.SetXAxis(x).
		AddSeries("Player A", a, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("Player B", b, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

func rallyLengthChart(s Stats) *charts.Bar {
	x := make([]string, 0, len(s.RallyDurations))
	y := make([]opts.BarData, 0, len(s.RallyDurations))
	for _, d := range s.RallyDurations {
		x = append(x, strconv.Itoa(d.RallyNumber))
		y = append(y, opts.BarData{Value: d.Shots})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Shots per Rally",
		fmt.Sprintf("min=%d max=%d median=%g", s.RallyLengths.Min, s.RallyLengths.Max, s.RallyLengths.Median))...)
	bar.SetXAxis(x).AddSeries("shots", y)
	return bar
}

func momentumChart(s Stats) *charts.Line {
	x := make([]string, 0, len(s.Momentum))
	y := make([]opts.LineData, 0, len(s.Momentum))
	for _, m := range s.Momentum {
		x = append(x, strconv.Itoa(m.Rally))
		y = append(y, opts.LineData{Value: m.Diff})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Momentum", "score difference, positive favors Player A")...)
	line.SetXAxis(x).AddSeries("A - B", y)
	return line
}

func endingsChart(s Stats) *charts.Pie {
	var data []opts.PieData
	for _, reason := range []match.EndReason{match.EndNet, match.EndOut, match.EndWinner} {
		for _, p := range players {
			if n := s.WinLoss.ByReason[reason][p]; n > 0 {
				data = append(data, opts.PieData{Name: fmt.Sprintf("%s (%s)", reason, p), Value: n})
			}
		}
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(globalOpts("Rally Endings", "net and out are charged to the player at fault")...)
	pie.AddSeries("endings", data)
	return pie
}
