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
	"math"
	"reflect"
	"testing"
)

func TestAffineRoundTrip(t *testing.T) {
	transforms := []Affine{
		identity,
		FromOrigin(-125, 50, 0.1, 0.1),
		FromOrigin(-2.5e6, 1.8e6, 12000, 12000),
		{A: 0.5, B: 0.1, C: 3, D: -0.2, E: -0.5, F: 7},
	}
	points := [][2]float64{{0, 0}, {5, 5}, {-120.3, 37.9}, {-2.1e6, -3.3e5}, {1e-3, -7}}
	for i, tr := range transforms {
		for _, p := range points {
			row, col, err := tr.PixelOf(p[0], p[1])
			if err != nil {
				t.Fatal(err)
			}
			x, y := tr.Apply(row, col)
			if math.Abs(x-p[0]) > 1e-6*math.Max(1, math.Abs(p[0])) ||
				math.Abs(y-p[1]) > 1e-6*math.Max(1, math.Abs(p[1])) {
				t.Errorf("transform %d: (%g, %g) -> (%g, %g) -> (%g, %g)", i, p[0], p[1], row, col, x, y)
			}
		}
	}
}

func TestPixelOf(t *testing.T) {
	tr := FromOrigin(-125, 50, 0.5, 0.25)
	row, col, err := tr.PixelOf(-124, 49.5)
	if err != nil {
		t.Fatal(err)
	}
	if row != 2 || col != 2 {
		t.Errorf("row, col = %g, %g; want 2, 2", row, col)
	}
	row, col, err = tr.PixelOf(-125+0.5*3.5, 50-0.25*1.25)
	if err != nil {
		t.Fatal(err)
	}
	if different(row, 1.25, 1e-12) || different(col, 3.5, 1e-12) {
		t.Errorf("row, col = %g, %g; want 1.25, 3.5", row, col)
	}
}

func TestAffineNotInvertible(t *testing.T) {
	_, err := Affine{A: 1, B: 2, D: 2, E: 4}.Invert()
	if !errors.Is(err, ErrNotInvertible) {
		t.Errorf("err = %v; want %v", err, ErrNotInvertible)
	}
	if _, _, err := (Affine{}).PixelOf(1, 1); !errors.Is(err, ErrNotInvertible) {
		t.Errorf("err = %v; want %v", err, ErrNotInvertible)
	}
}

func TestAffineGDAL(t *testing.T) {
	g := []float64{-125, 0.1, 0, 50, 0, -0.1}
	a, err := AffineFromGDAL(g)
	if err != nil {
		t.Fatal(err)
	}
	if want := FromOrigin(-125, 50, 0.1, 0.1); a != want {
		t.Errorf("have %+v, want %+v", a, want)
	}
	if !reflect.DeepEqual(a.GDAL(), g) {
		t.Errorf("have %v, want %v", a.GDAL(), g)
	}
	if _, err := AffineFromGDAL(g[:5]); err == nil {
		t.Error("expected an error for a short geotransform")
	}
}

func TestAffineRes(t *testing.T) {
	xres, yres := FromOrigin(0, 0, 0.5, 0.25).Res()
	if xres != 0.5 || yres != 0.25 {
		t.Errorf("res = %g, %g; want 0.5, 0.25", xres, yres)
	}
}
