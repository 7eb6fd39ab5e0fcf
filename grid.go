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

	"github.com/ctessum/sparse"
)

// GridSpec describes the geometry of a raster without its data.
type GridSpec struct {
	Rows, Cols int
	Transform  Affine

	// Scale is the ratio of the source resolution to the new one.
	Scale float64
}

// HighResGrid plans a grid with pixel size targetRes covering a grid of
// rows x cols pixels with transform t. The scale factor is the source x
// resolution divided by targetRes and each dimension of the new grid is
// the source dimension times the scale factor, rounded down. The new
// transform has the same origin as t and keeps the orientation of its
// axes.
func HighResGrid(rows, cols int, t Affine, targetRes float64) (*GridSpec, error) {
	if !(targetRes > 0) {
		return nil, fmt.Errorf("aqsr: target resolution must be positive but is %g", targetRes)
	}
	if t.A == 0 || math.IsNaN(t.A) {
		return nil, fmt.Errorf("aqsr: source transform has zero x resolution")
	}
	scale := math.Abs(t.A) / targetRes
	e := -targetRes
	if t.E != 0 {
		e = math.Copysign(targetRes, t.E)
	}
	return &GridSpec{
		Rows:  int(math.Floor(float64(rows) * scale)),
		Cols:  int(math.Floor(float64(cols) * scale)),
		Scale: scale,
		Transform: Affine{
			A: math.Copysign(targetRes, t.A),
			C: t.C,
			E: e,
			F: t.F,
		},
	}, nil
}

// HighResGrid plans a grid with pixel size targetRes covering r.
func (r *Raster) HighResGrid(targetRes float64) (*GridSpec, error) {
	return HighResGrid(r.Rows(), r.Cols(), r.transform, targetRes)
}

// Coarsen returns a raster whose pixels are the means of the valid
// values in factor x factor blocks of r. Rows and columns that do not
// fill a whole block are dropped. Blocks with no valid values are
// missing.
func Coarsen(r *Raster, factor int) (*Raster, error) {
	if factor < 1 {
		return nil, fmt.Errorf("aqsr: coarsening factor must be at least 1 but is %d", factor)
	}
	rows, cols := r.Rows()/factor, r.Cols()/factor
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("aqsr: raster of %d x %d pixels is smaller than the coarsening factor %d",
			r.Rows(), r.Cols(), factor)
	}
	o := sparse.ZerosDense(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			var sum float64
			var n int
			for ii := i * factor; ii < (i+1)*factor; ii++ {
				for jj := j * factor; jj < (j+1)*factor; jj++ {
					if v := r.Data.Get(ii, jj); !math.IsNaN(v) {
						sum += v
						n++
					}
				}
			}
			if n == 0 {
				o.Set(math.NaN(), i, j)
			} else {
				o.Set(sum/float64(n), i, j)
			}
		}
	}
	t := r.transform
	f := float64(factor)
	t.A *= f
	t.B *= f
	t.D *= f
	t.E *= f
	return NewRaster(o, t, r.crs)
}
