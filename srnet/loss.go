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

package srnet

import (
	"fmt"
	"math"
	"strings"
)

// Loss is a differentiable measure of the difference between network
// output and a target.
type Loss interface {
	// Compute returns the loss value and its gradient with respect
	// to out.
	Compute(out, target *Tensor) (float64, *Tensor)
}

// MSE is the mean squared error.
type MSE struct{}

// Compute implements Loss.
func (MSE) Compute(out, target *Tensor) (float64, *Tensor) {
	grad := zerosLike(out)
	n := float64(len(out.Data))
	var sum float64
	for i, o := range out.Data {
		d := o - target.Data[i]
		sum += d * d
		grad.Data[i] = 2 * d / n
	}
	return sum / n, grad
}

// L1 is the mean absolute error.
type L1 struct{}

// Compute implements Loss.
func (L1) Compute(out, target *Tensor) (float64, *Tensor) {
	grad := zerosLike(out)
	n := float64(len(out.Data))
	var sum float64
	for i, o := range out.Data {
		d := o - target.Data[i]
		sum += math.Abs(d)
		switch {
		case d > 0:
			grad.Data[i] = 1 / n
		case d < 0:
			grad.Data[i] = -1 / n
		}
	}
	return sum / n, grad
}

// ParseLoss returns the loss function with the given name ("mse" or "l1").
func ParseLoss(name string) (Loss, error) {
	switch strings.ToLower(name) {
	case "mse":
		return MSE{}, nil
	case "l1", "mae":
		return L1{}, nil
	default:
		return nil, fmt.Errorf("srnet: invalid loss function %q; valid options are mse and l1", name)
	}
}
