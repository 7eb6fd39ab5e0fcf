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

package aqsr

import (
	"fmt"
	"math"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/ctessum/atmos/evalstats"
)

// Calibration holds statistics comparing satellite estimates (the
// model) with ground measurements (the observations).
type Calibration struct {
	N int

	// Slope, Intercept and R2 describe the least-squares fit of the
	// satellite values against the ground values.
	Slope, Intercept, R2 float64

	MB  float64 // mean bias
	MFB float64 // mean fractional bias, percent
	ME  float64 // mean error
	MFE float64 // mean fractional error, percent
	MR  float64 // model ratio
}

// Calibrate compares the satellite and ground values of the samples.
// Samples with a missing ground value are ignored.
func (t *SampleTable) Calibrate() (*Calibration, error) {
	var obs, mod []float64
	for _, s := range t.Samples {
		if math.IsNaN(s.GroundValue) || math.IsNaN(s.SatelliteValue) {
			continue
		}
		obs = append(obs, s.GroundValue)
		mod = append(mod, s.SatelliteValue)
	}
	if len(obs) < 2 {
		return nil, fmt.Errorf("aqsr: calibration needs at least 2 samples but there are %d", len(obs))
	}
	c := &Calibration{N: len(obs)}
	c.Slope, c.Intercept, c.R2, _, _, _ = stats.LinearRegression(obs, mod)
	c.MB = evalstats.MB(obs, mod)
	c.MFB = evalstats.MFB(obs, mod) * 100
	c.ME = evalstats.ME(obs, mod)
	c.MFE = evalstats.MFE(obs, mod) * 100
	c.MR = evalstats.MR(obs, mod)
	return c, nil
}

func (c *Calibration) String() string {
	return fmt.Sprintf("n=%d slope=%.3g intercept=%.3g R²=%.3g MB=%.3g MFB=%.3g%% ME=%.3g MFE=%.3g%% MR=%.3g",
		c.N, c.Slope, c.Intercept, c.R2, c.MB, c.MFB, c.ME, c.MFE, c.MR)
}
