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
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
)

func TestRasterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raster.nc")

	tr := FromOrigin(-125, 50, 0.25, 0.5)
	r := constantRaster(t, 3, 4, 1.5, tr)
	r.Data.Set(-1, 0, 1)
	r.Data.Set(math.NaN(), 2, 3)
	r.Data.Set(12.25, 1, 2)
	if err := r.WriteFile(path, DefaultVariable); err != nil {
		t.Fatal(err)
	}

	r2, err := LoadRaster(path, DefaultVariable)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Rows() != 3 || r2.Cols() != 4 {
		t.Fatalf("shape = %d x %d; want 3 x 4", r2.Rows(), r2.Cols())
	}
	if r2.Transform() != tr {
		t.Errorf("transform = %+v; want %+v", r2.Transform(), tr)
	}
	if r2.CRS() != lonLat {
		t.Errorf("crs = %q; want %q", r2.CRS(), lonLat)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			want := r.At(i, j)
			if want < 0 {
				want = math.NaN()
			}
			if different(r2.At(i, j), want, 0) {
				t.Errorf("(%d, %d) = %g; want %g", i, j, r2.At(i, j), want)
			}
		}
	}
	mean, n := r2.Mean()
	if n != 10 || different(mean, (9*1.5+12.25)/10, 1e-12) {
		t.Errorf("mean = %g of %d values", mean, n)
	}
}

func TestLoadRasterMissingCRS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nocrs.nc")

	h := cdf.NewHeader([]string{"y", "x"}, []int{2, 2})
	h.AddAttribute("", "geotransform", identity.GDAL())
	h.AddVariable(DefaultVariable, []string{"y", "x"}, []float32{0})
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	ff, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = ff.Writer(DefaultVariable, []int{0, 0}, []int{2, 2}).Write([]float32{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = LoadRaster(path, DefaultVariable)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v; want a FormatError", err)
	}
	if fe.Path != path {
		t.Errorf("error path = %q; want %q", fe.Path, path)
	}
}

func TestLoadRasterNotExist(t *testing.T) {
	_, err := LoadRaster(filepath.Join(t.TempDir(), "missing.nc"), DefaultVariable)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Errorf("err = %v; want a FormatError", err)
	}
}

func TestMaskWhere(t *testing.T) {
	r := constantRaster(t, 3, 3, 1, identity)
	r.Data.Set(600, 1, 1)
	r.Data.Set(math.NaN(), 2, 2)
	n, err := r.MaskWhere("value > 500 || row == 0")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("masked %d values; want 4", n)
	}
	if _, valid := r.Mean(); valid != 4 {
		t.Errorf("%d valid values remain; want 4", valid)
	}
	if _, err := r.MaskWhere("value +"); err == nil {
		t.Error("expected an error for an invalid expression")
	}
	if _, err := r.MaskWhere("value * 2"); err == nil {
		t.Error("expected an error for a non-boolean expression")
	}
}
