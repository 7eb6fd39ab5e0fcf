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
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

const (
	lonLat = "+proj=longlat +units=degrees"
	lcc    = "+proj=lcc +lat_1=33.000000 +lat_2=45.000000 +lat_0=40.000000 +lon_0=-97.000000 +x_0=0 +y_0=0 +a=6370997.000000 +b=6370997.000000 +to_meter=1"
)

// identity maps pixel (row, col) to (x, y) = (col, row).
var identity = Affine{A: 1, E: 1}

// constantRaster returns a rows x cols raster with every value set to v.
func constantRaster(t *testing.T, rows, cols int, v float64, transform Affine) *Raster {
	r, err := NewRaster(constantRasterData(rows, cols, v), transform, lonLat)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func constantRasterData(rows, cols int, v float64) *sparse.DenseArray {
	data := sparse.ZerosDense(rows, cols)
	for i := range data.Elements {
		data.Elements[i] = v
	}
	return data
}

func different(a, b, tolerance float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) != math.IsNaN(b)
	}
	if a == b {
		return false
	}
	return math.Abs(a-b)/math.Max(math.Abs(a), math.Abs(b)) > tolerance
}
