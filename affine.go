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
	"errors"
	"fmt"
	"math"
)

// ErrNotInvertible is returned for an affine transform with a zero
// determinant.
var ErrNotInvertible = errors.New("aqsr: affine transform is not invertible")

// Affine maps pixel indices to geographic coordinates:
//  x = A·col + B·row + C
//  y = D·col + E·row + F
// where (row, col) = (0, 0) is the outer corner of the first pixel.
// The coefficient order matches GDAL and rasterio.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// FromOrigin returns a north-up transform whose upper-left corner is at
// (west, north), with pixel width xres and pixel height yres.
func FromOrigin(west, north, xres, yres float64) Affine {
	return Affine{A: xres, C: west, E: -yres, F: north}
}

// AffineFromGDAL creates a transform from a GDAL-style geotransform
// (c, a, b, f, d, e).
func AffineFromGDAL(g []float64) (Affine, error) {
	if len(g) != 6 {
		return Affine{}, fmt.Errorf("aqsr: geotransform must have 6 coefficients but has %d", len(g))
	}
	return Affine{C: g[0], A: g[1], B: g[2], F: g[3], D: g[4], E: g[5]}, nil
}

// GDAL returns t as a GDAL-style geotransform.
func (t Affine) GDAL() []float64 {
	return []float64{t.C, t.A, t.B, t.F, t.D, t.E}
}

// Apply returns the geographic coordinates of fractional pixel
// position (row, col).
func (t Affine) Apply(row, col float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

func (t Affine) determinant() float64 {
	return t.A*t.E - t.B*t.D
}

// Invert returns the transform mapping geographic coordinates back to
// pixel indices. In the returned transform the roles of (col, row) and
// (x, y) are swapped: inv.Apply(y, x) returns (col, row).
func (t Affine) Invert() (Affine, error) {
	det := t.determinant()
	if det == 0 || math.IsNaN(det) {
		return Affine{}, ErrNotInvertible
	}
	return Affine{
		A: t.E / det,
		B: -t.B / det,
		C: (t.B*t.F - t.E*t.C) / det,
		D: -t.D / det,
		E: t.A / det,
		F: (t.D*t.C - t.A*t.F) / det,
	}, nil
}

// PixelOf returns the fractional pixel position (row, col) of
// geographic point (x, y).
func (t Affine) PixelOf(x, y float64) (row, col float64, err error) {
	inv, err := t.Invert()
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	col, row = inv.Apply(y, x)
	return row, col, nil
}

// Res returns the pixel width and height in map units.
func (t Affine) Res() (xres, yres float64) {
	return math.Hypot(t.A, t.D), math.Hypot(t.B, t.E)
}
