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
	"math/rand"
)

// LayerParams holds the parameters of one layer. Convolution layers
// use W (Out×In×Kernel×Kernel, row-major) and B; batch normalization
// layers use Gamma, Beta and the running statistics. Other layers
// have no parameters.
type LayerParams struct {
	W, B                    []float64
	Gamma, Beta             []float64
	RunningMean, RunningVar []float64
}

// Params holds the parameters of every layer of a network, indexed
// by layer position in the Architecture.
type Params struct {
	Layers []LayerParams
}

// NewParams allocates parameters for a and initializes them from a
// random number generator seeded with seed. Convolution weights and
// biases are drawn from U(-1/√fanIn, 1/√fanIn).
func NewParams(a Architecture, seed int64) *Params {
	rng := rand.New(rand.NewSource(seed))
	p := &Params{Layers: make([]LayerParams, len(a.Layers))}
	for i, l := range a.Layers {
		switch l.Op {
		case Conv:
			fanIn := l.In * l.Kernel * l.Kernel
			bound := 1 / math.Sqrt(float64(fanIn))
			lp := LayerParams{
				W: make([]float64, l.Out*fanIn),
				B: make([]float64, l.Out),
			}
			for j := range lp.W {
				lp.W[j] = (2*rng.Float64() - 1) * bound
			}
			for j := range lp.B {
				lp.B[j] = (2*rng.Float64() - 1) * bound
			}
			p.Layers[i] = lp
		case BatchNorm:
			lp := LayerParams{
				Gamma:       make([]float64, l.Out),
				Beta:        make([]float64, l.Out),
				RunningMean: make([]float64, l.Out),
				RunningVar:  make([]float64, l.Out),
			}
			for j := range lp.Gamma {
				lp.Gamma[j] = 1
				lp.RunningVar[j] = 1
			}
			p.Layers[i] = lp
		}
	}
	return p
}

// zeroGrads returns a parameter set shaped like p, with all trainable
// values set to zero, for accumulating gradients.
func zeroGrads(p *Params) *Params {
	g := &Params{Layers: make([]LayerParams, len(p.Layers))}
	for i, lp := range p.Layers {
		if lp.W != nil {
			g.Layers[i].W = make([]float64, len(lp.W))
			g.Layers[i].B = make([]float64, len(lp.B))
		}
		if lp.Gamma != nil {
			g.Layers[i].Gamma = make([]float64, len(lp.Gamma))
			g.Layers[i].Beta = make([]float64, len(lp.Beta))
		}
	}
	return g
}

// trainable returns the trainable parameter slices of p in a fixed
// order. The running statistics are not included.
func (p *Params) trainable() [][]float64 {
	var o [][]float64
	for _, lp := range p.Layers {
		if lp.W != nil {
			o = append(o, lp.W, lp.B)
		}
		if lp.Gamma != nil {
			o = append(o, lp.Gamma, lp.Beta)
		}
	}
	return o
}

// Copy returns a deep copy of p.
func (p *Params) Copy() *Params {
	cp := func(s []float64) []float64 {
		if s == nil {
			return nil
		}
		o := make([]float64, len(s))
		copy(o, s)
		return o
	}
	o := &Params{Layers: make([]LayerParams, len(p.Layers))}
	for i, lp := range p.Layers {
		o.Layers[i] = LayerParams{
			W:           cp(lp.W),
			B:           cp(lp.B),
			Gamma:       cp(lp.Gamma),
			Beta:        cp(lp.Beta),
			RunningMean: cp(lp.RunningMean),
			RunningVar:  cp(lp.RunningVar),
		}
	}
	return o
}

// check makes sure that p has parameters of the right size for a.
func (p *Params) check(a Architecture) error {
	if len(p.Layers) != len(a.Layers) {
		return fmt.Errorf("srnet: architecture has %d layers but parameters have %d", len(a.Layers), len(p.Layers))
	}
	for i, l := range a.Layers {
		lp := p.Layers[i]
		switch l.Op {
		case Conv:
			if len(lp.W) != l.Out*l.In*l.Kernel*l.Kernel || len(lp.B) != l.Out {
				return fmt.Errorf("srnet: layer %d (%s): wrong number of parameters", i, l.Op)
			}
		case BatchNorm:
			if len(lp.Gamma) != l.Out || len(lp.Beta) != l.Out ||
				len(lp.RunningMean) != l.Out || len(lp.RunningVar) != l.Out {
				return fmt.Errorf("srnet: layer %d (%s): wrong number of parameters", i, l.Op)
			}
		}
	}
	return nil
}
