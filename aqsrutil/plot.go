/*
Copyright © 2019 the AQSR authors.
This file is part of AQSR.

AQSR is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AQSR is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AQSR.  If not, see <http://www.gnu.org/licenses/>.
*/

package aqsrutil

import (
	"fmt"
	"image/color"
	"math"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/spatialmodel/aqsr"
	"github.com/spatialmodel/aqsr/srnet"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// plotLoss saves a plot of the average training loss for each epoch
// to file path. The image format is chosen by the file extension.
func plotLoss(results []srnet.EpochResult, path string) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("aqsrutil: plotting loss: %v", err)
	}
	p.Title.Text = "Training loss"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Average loss"
	xy := make(plotter.XYs, 0, len(results))
	for _, r := range results {
		if r.Diverged {
			continue
		}
		xy = append(xy, struct{ X, Y float64 }{X: float64(r.Epoch), Y: r.AvgLoss})
	}
	l, err := plotter.NewLine(xy)
	if err != nil {
		return fmt.Errorf("aqsrutil: plotting loss: %v", err)
	}
	l.Color = color.NRGBA{0, 0, 0, 255}
	p.Add(l)
	if err = p.Save(4*vg.Inch, 3*vg.Inch, path); err != nil {
		return fmt.Errorf("aqsrutil: saving loss plot: %v", err)
	}
	return nil
}

// plotCalibration saves a scatter plot of satellite against ground
// values with a 1:1 line and the least-squares fit to file path.
func plotCalibration(t *aqsr.SampleTable, c *aqsr.Calibration, path string) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("aqsrutil: plotting calibration: %v", err)
	}
	p.Title.Text = fmt.Sprintf("n=%d R²=%.2f", c.N, c.R2)
	p.X.Label.Text = "Ground measurement"
	p.Y.Label.Text = "Satellite estimate"

	xy := make(plotter.XYs, 0, len(t.Samples))
	var all []float64
	for _, s := range t.Samples {
		if math.IsNaN(s.GroundValue) || math.IsNaN(s.SatelliteValue) {
			continue
		}
		xy = append(xy, struct{ X, Y float64 }{X: s.GroundValue, Y: s.SatelliteValue})
		all = append(all, s.GroundValue, s.SatelliteValue)
	}
	min := stats.StatsMin(all)
	max := stats.StatsMax(all)

	s, err := plotter.NewScatter(xy)
	if err != nil {
		return fmt.Errorf("aqsrutil: plotting calibration: %v", err)
	}
	s.Color = color.NRGBA{0, 0, 0, 255}
	s.Radius = 0.75
	s.Shape = draw.CircleGlyph{}
	l1, err := plotter.NewLine(plotter.XYs{{X: min, Y: min}, {X: max, Y: max}})
	if err != nil {
		return fmt.Errorf("aqsrutil: plotting calibration: %v", err)
	}
	l1.Color = color.NRGBA{255, 0, 0, 255}
	l2, err := plotter.NewLine(plotter.XYs{
		{X: min, Y: min*c.Slope + c.Intercept},
		{X: max, Y: max*c.Slope + c.Intercept},
	})
	if err != nil {
		return fmt.Errorf("aqsrutil: plotting calibration: %v", err)
	}
	l2.Color = color.NRGBA{127, 127, 127, 255}
	p.Add(s, l1, l2)
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.Add("Samples", s)
	p.Legend.Add("Fit", l2)
	p.Legend.Add("1:1", l1)
	if err = p.Save(4*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("aqsrutil: saving calibration plot: %v", err)
	}
	return nil
}
