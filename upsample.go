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
	"github.com/spatialmodel/aqsr/srnet"
)

// TrainingPairs creates training batches from high-resolution rasters.
// Each raster is coarsened by scale to create the network input, and
// the input is cut into non-overlapping patch x patch tiles, each paired
// with the matching tile of the original raster as the target. Tiles
// with missing values in either the input or the target are left out.
// Tiles are grouped into batches of at most batchSize.
func TrainingPairs(hi []*Raster, scale, patch, batchSize int, device srnet.Device) ([]srnet.Batch, error) {
	if scale < 2 {
		return nil, fmt.Errorf("aqsr: training scale must be at least 2 but is %d", scale)
	}
	if patch < 1 || batchSize < 1 {
		return nil, fmt.Errorf("aqsr: patch size (%d) and batch size (%d) must be positive", patch, batchSize)
	}
	type tile struct {
		lo, hi *Raster
		i, j   int
	}
	var tiles []tile
	for _, h := range hi {
		lo, err := Coarsen(h, scale)
		if err != nil {
			return nil, err
		}
		for i := 0; i+patch <= lo.Rows(); i += patch {
			for j := 0; j+patch <= lo.Cols(); j += patch {
				if hasMissing(lo, i, j, patch) || hasMissing(h, i*scale, j*scale, patch*scale) {
					continue
				}
				tiles = append(tiles, tile{lo: lo, hi: h, i: i, j: j})
			}
		}
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("aqsr: no complete %d x %d training tiles found", patch, patch)
	}

	hp := patch * scale
	var batches []srnet.Batch
	for b0 := 0; b0 < len(tiles); b0 += batchSize {
		n := minInt(batchSize, len(tiles)-b0)
		in := srnet.NewTensor(n, 1, patch, patch, device)
		target := srnet.NewTensor(n, 1, hp, hp, device)
		for k := 0; k < n; k++ {
			t := tiles[b0+k]
			for y := 0; y < patch; y++ {
				for x := 0; x < patch; x++ {
					in.Set(t.lo.At(t.i+y, t.j+x), k, 0, y, x)
				}
			}
			for y := 0; y < hp; y++ {
				for x := 0; x < hp; x++ {
					target.Set(t.hi.At(t.i*scale+y, t.j*scale+x), k, 0, y, x)
				}
			}
		}
		batches = append(batches, srnet.Batch{Input: in, Target: target})
	}
	return batches, nil
}

func hasMissing(r *Raster, i0, j0, size int) bool {
	for i := i0; i < i0+size; i++ {
		for j := j0; j < j0+size; j++ {
			if math.IsNaN(r.At(i, j)) {
				return true
			}
		}
	}
	return false
}

// PredictRaster upsamples r with a trained network. Missing values are
// replaced with the mean of the valid values before the network is run.
// The result covers the same area as r with pixels that are smaller by
// the network's scale factor, and has the same coordinate reference
// system.
func PredictRaster(net *srnet.Network, r *Raster) (*Raster, error) {
	mean, n := r.Mean()
	if n == 0 {
		return nil, fmt.Errorf("aqsr: raster has no valid values to upsample")
	}
	in := srnet.NewTensor(1, 1, r.Rows(), r.Cols(), net.Device())
	for i, v := range r.Data.Elements {
		if math.IsNaN(v) {
			v = mean
		}
		in.Data[i] = v
	}
	out, err := srnet.Predict(net, in)
	if err != nil {
		return nil, err
	}

	scale := float64(net.Config().Scale)
	xres, _ := r.transform.Res()
	grid, err := r.HighResGrid(xres / scale)
	if err != nil {
		return nil, err
	}
	// The network output defines the shape; floor(rows*scale) can lose
	// a row to rounding.
	data := sparse.ZerosDense(out.Shape[2], out.Shape[3])
	copy(data.Elements, out.Data)
	return NewRaster(data, grid.Transform, r.crs)
}
