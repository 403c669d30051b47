package monitoring

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// LossPlotter accumulates per-batch loss series during a training run and
// renders them as PNG line charts once the run finishes. Call Record once
// per logged batch; series are keyed by stat name ("loss", "pos_loss", ...).
type LossPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	runID     string

	series map[string]plotter.XYs
}

// NewLossPlotter creates a plotter writing into outputDir. An empty
// outputDir disables the plotter; Record and GeneratePlots become no-ops.
func NewLossPlotter(outputDir, runID string) *LossPlotter {
	return &LossPlotter{
		enabled:   outputDir != "",
		outputDir: outputDir,
		runID:     runID,
		series:    make(map[string]plotter.XYs),
	}
}

// IsEnabled reports whether the plotter will produce output.
func (lp *LossPlotter) IsEnabled() bool {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.enabled
}

// Record appends one batch's stat values to their series.
func (lp *LossPlotter) Record(batch int, values map[string]float64) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if !lp.enabled {
		return
	}
	for name, v := range values {
		lp.series[name] = append(lp.series[name], plotter.XY{X: float64(batch), Y: v})
	}
}

// GeneratePlots writes one PNG per recorded series plus a combined
// diagnostics plot. Returns the number of files written.
func (lp *LossPlotter) GeneratePlots() (int, error) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if !lp.enabled || len(lp.series) == 0 {
		return 0, nil
	}

	// Sort series names for consistent colours and legend order
	names := make([]string, 0, len(lp.series))
	for name := range lp.series {
		names = append(names, name)
	}
	sort.Strings(names)

	combined := plot.New()
	combined.Title.Text = fmt.Sprintf("Run %s - Training Diagnostics", lp.runID)
	combined.X.Label.Text = "Batch"
	combined.Y.Label.Text = "Value"

	colors := generateColors(len(names))
	written := 0

	for i, name := range names {
		pts := lp.series[name]
		if len(pts) == 0 {
			continue
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return written, fmt.Errorf("series %s: %w", name, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		combined.Add(line)
		combined.Legend.Add(name, line)

		// Per-series plot
		single := plot.New()
		single.Title.Text = fmt.Sprintf("Run %s - %s", lp.runID, name)
		single.X.Label.Text = "Batch"
		single.Y.Label.Text = name

		singleLine, err := plotter.NewLine(pts)
		if err != nil {
			return written, fmt.Errorf("series %s: %w", name, err)
		}
		singleLine.Color = colors[i]
		singleLine.Width = vg.Points(1)
		single.Add(singleLine)

		file := filepath.Join(lp.outputDir, fmt.Sprintf("%s_%s.png", lp.runID, name))
		if err := single.Save(10*vg.Inch, 4*vg.Inch, file); err != nil {
			return written, fmt.Errorf("save %s plot: %w", name, err)
		}
		written++
	}

	combined.Legend.Top = true
	combined.Legend.Left = false
	combined.Legend.XOffs = -10
	combined.Legend.YOffs = -10

	combinedFile := filepath.Join(lp.outputDir, fmt.Sprintf("%s_diagnostics.png", lp.runID))
	if err := combined.Save(14*vg.Inch, 6*vg.Inch, combinedFile); err != nil {
		return written, fmt.Errorf("save diagnostics plot: %w", err)
	}
	written++

	return written, nil
}

// generateColors creates a palette of distinct colours for the series lines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.4)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
