// Package report renders a standalone HTML report of a training run's loss
// curves using go-echarts. The report is a single self-contained file meant
// to be opened locally or attached to an experiment log.
package report

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Series is one named stat curve, aligned with Batches.
type Series map[string][]float64

// WriteTrainingReport renders one line chart per stat series plus a combined
// chart, into a single HTML page at path. batches is the x axis; every
// series must have len(batches) points.
func WriteTrainingReport(path, runID string, batches []int, series Series) error {
	if len(batches) == 0 {
		return fmt.Errorf("report: no batches to report")
	}
	for name, ys := range series {
		if len(ys) != len(batches) {
			return fmt.Errorf("report: series %s has %d points for %d batches", name, len(ys), len(batches))
		}
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	xs := make([]string, len(batches))
	for i, b := range batches {
		xs[i] = fmt.Sprintf("%d", b)
	}

	combined := charts.NewLine()
	combined.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fmt.Sprintf("Training run %s", runID), Width: "1100px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Training diagnostics", Subtitle: fmt.Sprintf("run=%s batches=%d", runID, len(batches))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	combined.SetXAxis(xs)
	for _, name := range names {
		combined.AddSeries(name, lineItems(series[name]))
	}

	page := components.NewPage()
	page.AddCharts(combined)

	for _, name := range names {
		single := charts.NewLine()
		single.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: name, Subtitle: fmt.Sprintf("run=%s", runID)}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		)
		single.SetXAxis(xs)
		single.AddSeries(name, lineItems(series[name]))
		page.AddCharts(single)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}

func lineItems(ys []float64) []opts.LineData {
	items := make([]opts.LineData, len(ys))
	for i, y := range ys {
		items[i] = opts.LineData{Value: y}
	}
	return items
}
