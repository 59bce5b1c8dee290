package metrics

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Curve is the per-step training loss history.
type Curve struct {
	points plotter.XYs
}

// Record appends the loss observed at step.
func (c *Curve) Record(step int, loss float64) {
	c.points = append(c.points, plotter.XY{X: float64(step), Y: loss})
}

// Len returns the number of recorded steps.
func (c *Curve) Len() int { return len(c.points) }

// Last returns the most recent loss, or false when nothing was recorded.
func (c *Curve) Last() (float64, bool) {
	if len(c.points) == 0 {
		return 0, false
	}
	return c.points[len(c.points)-1].Y, true
}

// Save renders the curve to path in the format named by its extension
// (.png, .svg, .pdf, ...).
func (c *Curve) Save(path string) error {
	if len(c.points) == 0 {
		return errors.New("metrics: empty loss curve")
	}
	p := plot.New()
	p.Title.Text = "NT-Xent loss"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(c.points)
	if err != nil {
		return fmt.Errorf("metrics: loss line: %w", err)
	}
	p.Add(line)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("metrics: save %s: %w", path, err)
	}
	return nil
}
