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

	"github.com/ctessum/geom/proj"
)

// DefaultRadius is the default half-width, in pixels, of the window
// averaged around each station.
const DefaultRadius = 3

// Align pairs each station's measurement with the mean of the valid
// raster values in a square window of half-width radius around the
// pixel containing the station. The window is clipped at the raster
// edges. Stations whose window holds no valid values are skipped and
// counted in the returned table's Skipped field. The raster and the
// stations must share a coordinate reference system; otherwise
// ErrCRSMismatch is returned.
func Align(r *Raster, s *StationSet, radius int) (*SampleTable, error) {
	if radius < 0 {
		return nil, fmt.Errorf("aqsr: window radius must not be negative but is %d", radius)
	}
	if err := checkCRS(r.CRS(), s.CRS); err != nil {
		return nil, err
	}
	inv, err := r.Transform().Invert()
	if err != nil {
		return nil, err
	}

	t := &SampleTable{Stations: len(s.Stations), CRS: s.CRS}
	rows, cols := r.Rows(), r.Cols()
	for _, st := range s.Stations {
		col, row := inv.Apply(st.Location.Y, st.Location.X)
		v, ok := windowMean(r, int(row), int(col), radius, rows, cols)
		if !ok {
			t.Skipped++
			continue
		}
		t.Samples = append(t.Samples, Sample{
			StationID:      st.ID,
			Latitude:       st.Location.Y,
			Longitude:      st.Location.X,
			SatelliteValue: v,
			GroundValue:    st.Measurement,
		})
	}
	return t, nil
}

// windowMean returns the mean of the non-missing values in the window
// centered on (r0, c0), and false if there are none.
func windowMean(r *Raster, r0, c0, radius, rows, cols int) (float64, bool) {
	rStart, rEnd := maxInt(0, r0-radius), minInt(rows, r0+radius+1)
	cStart, cEnd := maxInt(0, c0-radius), minInt(cols, c0+radius+1)
	var sum float64
	var n int
	for i := rStart; i < rEnd; i++ {
		for j := cStart; j < cEnd; j++ {
			v := r.Data.Get(i, j)
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN(), false
	}
	return sum / float64(n), true
}

// checkCRS returns an error unless the two coordinate reference systems
// are present and equivalent.
func checkCRS(rasterCRS, stationCRS string) error {
	if rasterCRS == "" {
		return &FormatError{Err: fmt.Errorf("raster has no coordinate reference system")}
	}
	if stationCRS == "" {
		return &FormatError{Err: fmt.Errorf("stations have no coordinate reference system")}
	}
	if rasterCRS == stationCRS {
		return nil
	}
	rSR, err := proj.Parse(rasterCRS)
	if err != nil {
		return &FormatError{Err: fmt.Errorf("raster coordinate reference system: %v", err)}
	}
	sSR, err := proj.Parse(stationCRS)
	if err != nil {
		return &FormatError{Err: fmt.Errorf("station coordinate reference system: %v", err)}
	}
	if !rSR.Equal(sSR, 3) {
		return fmt.Errorf("%w: raster %q, stations %q", ErrCRSMismatch, rasterCRS, stationCRS)
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
