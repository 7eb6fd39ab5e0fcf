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

	"gonum.org/v1/gonum/floats"
)

// Optimizer updates parameters from their gradients.
type Optimizer interface {
	// Step applies one update to params using grads, which must have
	// the same layout as params.
	Step(params, grads *Params)
}

// SGD is stochastic gradient descent with optional momentum.
type SGD struct {
	LR       float64
	Momentum float64

	velocity [][]float64
}

// Step implements Optimizer.
func (o *SGD) Step(params, grads *Params) {
	p, g := params.trainable(), grads.trainable()
	if o.velocity == nil {
		o.velocity = make([][]float64, len(p))
		for i := range p {
			o.velocity[i] = make([]float64, len(p[i]))
		}
	}
	for i := range p {
		v := o.velocity[i]
		if o.Momentum != 0 {
			floats.Scale(o.Momentum, v)
			floats.Add(v, g[i])
			floats.AddScaled(p[i], -o.LR, v)
		} else {
			floats.AddScaled(p[i], -o.LR, g[i])
		}
	}
}

// Adam is the Adam optimizer of Kingma and Ba (2015).
type Adam struct {
	LR, Beta1, Beta2, Eps float64

	m, v [][]float64
	t    int
}

// NewAdam returns an Adam optimizer with the given learning rate and
// the usual default decay rates.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Step implements Optimizer.
func (o *Adam) Step(params, grads *Params) {
	p, g := params.trainable(), grads.trainable()
	if o.m == nil {
		o.m = make([][]float64, len(p))
		o.v = make([][]float64, len(p))
		for i := range p {
			o.m[i] = make([]float64, len(p[i]))
			o.v[i] = make([]float64, len(p[i]))
		}
	}
	o.t++
	c1 := 1 - math.Pow(o.Beta1, float64(o.t))
	c2 := 1 - math.Pow(o.Beta2, float64(o.t))
	for i := range p {
		m, v, pi, gi := o.m[i], o.v[i], p[i], g[i]
		for j, gj := range gi {
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*gj
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*gj*gj
			pi[j] -= o.LR * (m[j] / c1) / (math.Sqrt(v[j]/c2) + o.Eps)
		}
	}
}

// ParseOptimizer returns the optimizer with the given name ("sgd" or
// "adam") and learning rate.
func ParseOptimizer(name string, lr, momentum float64) (Optimizer, error) {
	if !(lr > 0) {
		return nil, fmt.Errorf("srnet: learning rate must be > 0 but is %g", lr)
	}
	switch strings.ToLower(name) {
	case "sgd":
		return &SGD{LR: lr, Momentum: momentum}, nil
	case "adam":
		return NewAdam(lr), nil
	default:
		return nil, fmt.Errorf("srnet: invalid optimizer %q; valid options are sgd and adam", name)
	}
}
