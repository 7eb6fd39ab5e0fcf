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

// Op is a kind of network layer.
type Op int

// These are the layer kinds that make up an Architecture.
const (
	// Conv is a 2-D convolution with stride 1 and "same" zero padding.
	Conv Op = iota
	// BatchNorm normalizes each channel by batch or running statistics.
	BatchNorm
	// ReLU is the rectified linear activation.
	ReLU
	// PixelShuffle rearranges channels into a Factor× larger grid.
	PixelShuffle
	// SkipBegin marks the input of a residual block.
	SkipBegin
	// SkipAdd adds the most recent unmatched SkipBegin input to the
	// current activation.
	SkipAdd
)

func (o Op) String() string {
	switch o {
	case Conv:
		return "Conv"
	case BatchNorm:
		return "BatchNorm"
	case ReLU:
		return "ReLU"
	case PixelShuffle:
		return "PixelShuffle"
	case SkipBegin:
		return "SkipBegin"
	case SkipAdd:
		return "SkipAdd"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Layer holds the configuration of a single layer. In and Out are
// channel counts, Kernel is the convolution window width, and Factor
// is the pixel shuffle upscaling factor.
type Layer struct {
	Op      Op
	In, Out int
	Kernel  int
	Factor  int
}

// Config holds the hyperparameters of the network.
type Config struct {
	// Scale is the spatial upscaling factor. It must be a power of two.
	Scale int

	// Features is the number of feature channels in the body of the network.
	Features int

	// ResBlocks is the number of residual blocks.
	ResBlocks int

	// Kernel is the width of all convolution windows. It must be odd.
	Kernel int

	// InChannels and OutChannels are the number of input and output
	// channels.
	InChannels, OutChannels int
}

// DefaultConfig returns a 4× network with 64 feature channels and 16
// residual blocks.
func DefaultConfig() Config {
	return Config{
		Scale:       4,
		Features:    64,
		ResBlocks:   16,
		Kernel:      3,
		InChannels:  1,
		OutChannels: 1,
	}
}

// upsampleStages returns the number of 2× pixel shuffle stages needed
// for the configured scale.
func (c Config) upsampleStages() (int, error) {
	if c.Scale < 2 {
		return 0, fmt.Errorf("srnet: scale must be >= 2 but is %d", c.Scale)
	}
	n := 0
	for s := c.Scale; s > 1; s /= 2 {
		if s%2 != 0 {
			return 0, fmt.Errorf("srnet: scale must be a power of 2 but is %d", c.Scale)
		}
		n++
	}
	return n, nil
}

// Validate checks whether c describes a buildable network.
func (c Config) Validate() error {
	if _, err := c.upsampleStages(); err != nil {
		return err
	}
	if c.Features < 1 {
		return fmt.Errorf("srnet: features must be >= 1 but is %d", c.Features)
	}
	if c.ResBlocks < 0 {
		return fmt.Errorf("srnet: number of residual blocks must be >= 0 but is %d", c.ResBlocks)
	}
	if c.Kernel < 1 || c.Kernel%2 == 0 {
		return fmt.Errorf("srnet: kernel width must be a positive odd number but is %d", c.Kernel)
	}
	if c.InChannels < 1 || c.OutChannels < 1 {
		return fmt.Errorf("srnet: channel counts must be >= 1 but are in=%d, out=%d", c.InChannels, c.OutChannels)
	}
	return nil
}

// Architecture is the ordered list of layers making up a network,
// together with the configuration it was built from.
type Architecture struct {
	Config Config
	Layers []Layer
}

// NewArchitecture builds the layer list for the given configuration:
// two feature extraction convolutions, cfg.ResBlocks residual blocks
// of conv-batchnorm-relu-conv-batchnorm with an identity shortcut,
// one conv(4×features)-shuffle(2)-relu stage per doubling of
// resolution, and a final output convolution.
func NewArchitecture(cfg Config) (Architecture, error) {
	if err := cfg.Validate(); err != nil {
		return Architecture{}, err
	}
	stages, _ := cfg.upsampleStages()
	f, k := cfg.Features, cfg.Kernel
	conv := func(in, out int) Layer { return Layer{Op: Conv, In: in, Out: out, Kernel: k} }
	relu := Layer{Op: ReLU, In: f, Out: f}
	bn := Layer{Op: BatchNorm, In: f, Out: f}

	a := Architecture{Config: cfg}
	a.Layers = append(a.Layers, conv(cfg.InChannels, f), relu, conv(f, f), relu)
	for i := 0; i < cfg.ResBlocks; i++ {
		a.Layers = append(a.Layers,
			Layer{Op: SkipBegin, In: f, Out: f},
			conv(f, f), bn, relu,
			conv(f, f), bn,
			Layer{Op: SkipAdd, In: f, Out: f},
			relu,
		)
	}
	for i := 0; i < stages; i++ {
		a.Layers = append(a.Layers,
			conv(f, 4*f),
			Layer{Op: PixelShuffle, In: 4 * f, Out: f, Factor: 2},
			relu,
		)
	}
	a.Layers = append(a.Layers, conv(f, cfg.OutChannels))
	return a, nil
}

// OutputShape returns the shape of the output produced for an input of
// the given shape.
func (a Architecture) OutputShape(in [4]int) [4]int {
	s := a.Config.Scale
	return [4]int{in[0], a.Config.OutChannels, in[2] * s, in[3] * s}
}

// NumParams returns the number of trainable parameters.
func (a Architecture) NumParams() int {
	n := 0
	for _, l := range a.Layers {
		switch l.Op {
		case Conv:
			n += l.Out*l.In*l.Kernel*l.Kernel + l.Out
		case BatchNorm:
			n += 2 * l.Out
		}
	}
	return n
}
