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

import "fmt"

// Mode selects between training and inference behavior.
type Mode int

const (
	// EvalMode uses the running batch normalization statistics and
	// records nothing for backpropagation. Output depends only on the
	// parameters and the input.
	EvalMode Mode = iota

	// TrainMode uses per-batch normalization statistics, updates the
	// running statistics, and records a Tape.
	TrainMode
)

// Tape records the intermediate values of a training-mode forward
// pass so that gradients can be computed by Backward.
type Tape struct {
	arch   Architecture
	inputs []*Tensor
	bn     map[int]*bnCache
	skipOf map[int]int
}

// Apply runs the network described by a with parameters p on input x.
// In TrainMode the returned Tape can be passed to Backward and the
// batch normalization running statistics in p are updated; in EvalMode
// p is not modified and the returned Tape is nil.
func Apply(a Architecture, p *Params, x *Tensor, mode Mode) (*Tensor, *Tape, error) {
	if err := p.check(a); err != nil {
		return nil, nil, err
	}
	if x.Shape[1] != a.Config.InChannels || x.Shape[0] < 1 || x.Shape[2] < 1 || x.Shape[3] < 1 {
		return nil, nil, fmt.Errorf("%w: input %v, want (N≥1, %d, H≥1, W≥1)", ErrShape, x.Shape, a.Config.InChannels)
	}
	if len(x.Data) != x.Shape[0]*x.Shape[1]*x.Shape[2]*x.Shape[3] {
		return nil, nil, fmt.Errorf("%w: tensor %v has %d elements", ErrShape, x.Shape, len(x.Data))
	}
	var tape *Tape
	if mode == TrainMode {
		tape = &Tape{
			arch:   a,
			inputs: make([]*Tensor, len(a.Layers)),
			bn:     make(map[int]*bnCache),
			skipOf: make(map[int]int),
		}
	}
	var open []int
	saved := make(map[int]*Tensor)
	cur := x
	for i, l := range a.Layers {
		if tape != nil {
			tape.inputs[i] = cur
		}
		switch l.Op {
		case Conv:
			cur = convForward(cur, l, p.Layers[i])
		case BatchNorm:
			var cache *bnCache
			cur, cache = batchNormForward(cur, &p.Layers[i], mode)
			if tape != nil {
				tape.bn[i] = cache
			}
		case ReLU:
			cur = reluForward(cur)
		case PixelShuffle:
			if cur.Shape[1]%(l.Factor*l.Factor) != 0 {
				return nil, nil, fmt.Errorf("%w: layer %d: %d channels not divisible by %d", ErrShape, i, cur.Shape[1], l.Factor*l.Factor)
			}
			cur = pixelShuffle(cur, l.Factor)
		case SkipBegin:
			open = append(open, i)
			saved[i] = cur
		case SkipAdd:
			if len(open) == 0 {
				return nil, nil, fmt.Errorf("srnet: layer %d: SkipAdd without SkipBegin", i)
			}
			j := open[len(open)-1]
			open = open[:len(open)-1]
			cur = add(cur, saved[j])
			delete(saved, j)
			if tape != nil {
				tape.skipOf[i] = j
			}
		default:
			return nil, nil, fmt.Errorf("srnet: layer %d: invalid operation %s", i, l.Op)
		}
	}
	return cur, tape, nil
}

// Backward computes the gradient of a scalar loss with respect to the
// trainable parameters, given the Tape of the forward pass and the
// gradient of the loss with respect to the network output. p must be
// the parameters that were used for the forward pass.
func Backward(t *Tape, p *Params, dOut *Tensor) (*Params, error) {
	g, _, err := backward(t, p, dOut)
	return g, err
}

// backward additionally returns the gradient with respect to the
// network input.
func backward(t *Tape, p *Params, dOut *Tensor) (*Params, *Tensor, error) {
	if t == nil {
		return nil, nil, fmt.Errorf("srnet: backward pass requires a training-mode tape")
	}
	g := zeroGrads(p)
	skipGrad := make(map[int]*Tensor)
	grad := dOut
	for i := len(t.arch.Layers) - 1; i >= 0; i-- {
		l := t.arch.Layers[i]
		switch l.Op {
		case Conv:
			grad = convBackward(t.inputs[i], l, p.Layers[i], grad, &g.Layers[i])
		case BatchNorm:
			grad = batchNormBackward(t.bn[i], p.Layers[i], grad, &g.Layers[i])
		case ReLU:
			grad = reluBackward(t.inputs[i], grad)
		case PixelShuffle:
			grad = pixelUnshuffle(grad, l.Factor)
		case SkipAdd:
			// The shortcut receives the same gradient as the block body.
			skipGrad[t.skipOf[i]] = grad
		case SkipBegin:
			grad = add(grad, skipGrad[i])
			delete(skipGrad, i)
		}
	}
	return g, grad, nil
}
