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
	"io"
	"math"
)

// Batch is a group of low-resolution inputs and their high-resolution
// targets.
type Batch struct {
	Input, Target *Tensor
}

// EpochResult summarizes one pass over the training batches.
type EpochResult struct {
	// Epoch is the 1-based epoch index.
	Epoch int

	// AvgLoss is the mean of the batch losses.
	AvgLoss float64

	// Diverged is true if the loss is not finite.
	Diverged bool
}

// NextEpoch runs one training epoch each time it is called and returns
// its result. After the final epoch it returns io.EOF.
type NextEpoch func() (EpochResult, error)

// Train prepares to fit net to batches for the given number of epochs
// using the given loss function and optimizer. All batches are checked
// for shape and device compatibility before any computation is done.
// No training happens until the returned function is called; each
// call runs one full epoch and mutates the parameters of net.
func Train(net *Network, batches []Batch, loss Loss, opt Optimizer, epochs int) (NextEpoch, error) {
	if epochs < 1 {
		return nil, fmt.Errorf("srnet: number of epochs must be >= 1 but is %d", epochs)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("srnet: no training batches")
	}
	if loss == nil || opt == nil {
		return nil, fmt.Errorf("srnet: a loss function and an optimizer are required")
	}
	for i, b := range batches {
		if b.Input == nil || b.Target == nil {
			return nil, fmt.Errorf("srnet: batch %d is incomplete", i)
		}
		if err := net.checkDevice(b.Input, b.Target); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		if b.Input.Shape[1] != net.arch.Config.InChannels {
			return nil, fmt.Errorf("%w: batch %d input %v has %d channels, want %d", ErrShape, i, b.Input.Shape, b.Input.Shape[1], net.arch.Config.InChannels)
		}
		if want := net.arch.OutputShape(b.Input.Shape); b.Target.Shape != want {
			return nil, fmt.Errorf("%w: batch %d target %v, want %v", ErrShape, i, b.Target.Shape, want)
		}
	}

	epoch := 0
	return func() (EpochResult, error) {
		if epoch >= epochs {
			return EpochResult{}, io.EOF
		}
		epoch++
		net.mu.Lock()
		defer net.mu.Unlock()
		var sum float64
		for i, b := range batches {
			out, tape, err := Apply(net.arch, net.params, b.Input, TrainMode)
			if err != nil {
				return EpochResult{}, fmt.Errorf("srnet: epoch %d batch %d: %v", epoch, i, err)
			}
			l, grad := loss.Compute(out, b.Target)
			g, err := Backward(tape, net.params, grad)
			if err != nil {
				return EpochResult{}, fmt.Errorf("srnet: epoch %d batch %d: %v", epoch, i, err)
			}
			opt.Step(net.params, g)
			sum += l
		}
		net.state = Trained
		avg := sum / float64(len(batches))
		return EpochResult{
			Epoch:    epoch,
			AvgLoss:  avg,
			Diverged: math.IsNaN(avg) || math.IsInf(avg, 0),
		}, nil
	}, nil
}

// Predict runs net on input in inference mode. The parameters of net
// are not modified.
func Predict(net *Network, input *Tensor) (*Tensor, error) {
	if err := net.checkDevice(input); err != nil {
		return nil, err
	}
	net.mu.RLock()
	defer net.mu.RUnlock()
	if net.state == Uninitialized {
		return nil, ErrUntrained
	}
	out, _, err := Apply(net.arch, net.params, input, EvalMode)
	return out, err
}
