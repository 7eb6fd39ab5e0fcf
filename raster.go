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
	"os"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// DefaultVariable is the name of the NetCDF variable holding raster
// values when no other name is given.
const DefaultVariable = "value"

// Raster is a single-band grid of values with its georeferencing.
// Missing values are NaN. The transform and coordinate reference
// system cannot be changed after creation.
type Raster struct {
	// Data holds the values in (row, column) order.
	Data *sparse.DenseArray

	transform Affine
	crs       string
}

// NewRaster creates a raster from a two-dimensional array.
func NewRaster(data *sparse.DenseArray, transform Affine, crs string) (*Raster, error) {
	if data == nil || len(data.Shape) != 2 {
		return nil, fmt.Errorf("aqsr: raster data must be two-dimensional")
	}
	if data.Shape[0] < 1 || data.Shape[1] < 1 {
		return nil, fmt.Errorf("aqsr: raster shape %v is empty", data.Shape)
	}
	return &Raster{Data: data, transform: transform, crs: crs}, nil
}

// Transform returns the pixel to geographic coordinate transform.
func (r *Raster) Transform() Affine { return r.transform }

// CRS returns the coordinate reference system in Proj4 or WKT format.
func (r *Raster) CRS() string { return r.crs }

// Rows returns the number of rows.
func (r *Raster) Rows() int { return r.Data.Shape[0] }

// Cols returns the number of columns.
func (r *Raster) Cols() int { return r.Data.Shape[1] }

// At returns the value at the given row and column.
func (r *Raster) At(row, col int) float64 { return r.Data.Get(row, col) }

// Mean returns the mean of the non-missing values and the number of
// non-missing values.
func (r *Raster) Mean() (float64, int) {
	var sum float64
	var n int
	for _, v := range r.Data.Elements {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return sum / float64(n), n
}

// MaskWhere sets to missing every value for which the given boolean
// expression is true, where the expression refers to the pixel value
// as "value" and to its position as "row" and "col" (for example,
// "value > 500" or "row < 2"). It returns the number of newly
// masked values.
func (r *Raster) MaskWhere(expression string) (int, error) {
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return 0, fmt.Errorf("aqsr: mask expression: %v", err)
	}
	params := make(map[string]interface{}, 3)
	n := 0
	for i := 0; i < r.Rows(); i++ {
		for j := 0; j < r.Cols(); j++ {
			v := r.Data.Get(i, j)
			if math.IsNaN(v) {
				continue
			}
			params["value"] = v
			params["row"] = float64(i)
			params["col"] = float64(j)
			result, err := expr.Evaluate(params)
			if err != nil {
				return n, fmt.Errorf("aqsr: mask expression: %v", err)
			}
			mask, ok := result.(bool)
			if !ok {
				return n, fmt.Errorf("aqsr: mask expression %q does not evaluate to true or false", expression)
			}
			if mask {
				r.Data.Set(math.NaN(), i, j)
				n++
			}
		}
	}
	return n, nil
}

// LoadRaster reads the given variable from a NetCDF file. The file
// must contain the global attributes "geotransform" (six GDAL-ordered
// coefficients) and "crs" (a Proj4 or WKT string), and the variable
// must be two-dimensional. Negative values and values equal to the
// variable's _FillValue attribute are converted to missing values.
func LoadRaster(path, variable string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	gt, err := float64Attribute(ff, "", "geotransform")
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	transform, err := AffineFromGDAL(gt)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	crs, err := stringAttribute(ff, "", "crs")
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	dims := ff.Header.Lengths(variable)
	if len(dims) != 2 {
		return nil, &FormatError{Path: path, Err: fmt.Errorf("variable %q must have 2 dimensions but has %d", variable, len(dims))}
	}
	rd := ff.Reader(variable, nil, nil)
	buf := rd.Zero(-1)
	if _, err = rd.Read(buf); err != nil {
		return nil, &FormatError{Path: path, Err: fmt.Errorf("reading variable %q: %v", variable, err)}
	}
	data := sparse.ZerosDense(dims...)
	switch b := buf.(type) {
	case []float32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []float64:
		copy(data.Elements, b)
	default:
		return nil, &FormatError{Path: path, Err: fmt.Errorf("variable %q has unsupported type %T", variable, buf)}
	}

	fill := math.NaN()
	if fv, err := float64Attribute(ff, variable, "_FillValue"); err == nil && len(fv) > 0 {
		fill = fv[0]
	}
	for i, v := range data.Elements {
		if v < 0 || v == fill {
			data.Elements[i] = math.NaN()
		}
	}
	return NewRaster(data, transform, crs)
}

// float64Attribute reads a numeric attribute of variable v, or a global
// attribute if v is empty.
func float64Attribute(ff *cdf.File, v, name string) ([]float64, error) {
	switch a := ff.Header.GetAttribute(v, name).(type) {
	case []float64:
		return a, nil
	case []float32:
		o := make([]float64, len(a))
		for i, x := range a {
			o[i] = float64(x)
		}
		return o, nil
	case nil:
		return nil, fmt.Errorf("missing attribute %q", name)
	default:
		return nil, fmt.Errorf("attribute %q has unsupported type %T", name, a)
	}
}

// stringAttribute reads a text attribute of variable v, or a global
// attribute if v is empty.
func stringAttribute(ff *cdf.File, v, name string) (string, error) {
	switch a := ff.Header.GetAttribute(v, name).(type) {
	case string:
		if a == "" {
			return "", fmt.Errorf("attribute %q is empty", name)
		}
		return a, nil
	case []byte:
		if len(a) == 0 {
			return "", fmt.Errorf("attribute %q is empty", name)
		}
		return string(a), nil
	case nil:
		return "", fmt.Errorf("missing attribute %q", name)
	default:
		return "", fmt.Errorf("attribute %q has unsupported type %T", name, a)
	}
}

// WriteFile writes r to a NetCDF file in the format read by LoadRaster.
// Missing values are written as NaN.
func (r *Raster) WriteFile(path, variable string) error {
	h := cdf.NewHeader([]string{"y", "x"}, []int{r.Rows(), r.Cols()})
	h.AddAttribute("", "comment", "Gridded air quality data")
	h.AddAttribute("", "geotransform", r.transform.GDAL())
	h.AddAttribute("", "crs", r.crs)
	h.AddVariable(variable, []string{"y", "x"}, []float32{0})
	h.Define()

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("aqsr: writing raster: %v", err)
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		return fmt.Errorf("aqsr: writing raster: %v", err)
	}
	data32 := make([]float32, len(r.Data.Elements))
	for i, v := range r.Data.Elements {
		data32[i] = float32(v)
	}
	end := f.Header.Lengths(variable)
	start := make([]int, len(end))
	if _, err = f.Writer(variable, start, end).Write(data32); err != nil {
		ff.Close()
		return fmt.Errorf("aqsr: writing raster variable %s: %v", variable, err)
	}
	if err = ff.Close(); err != nil {
		return fmt.Errorf("aqsr: writing raster: %v", err)
	}
	return nil
}
