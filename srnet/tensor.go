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

// Package srnet implements a residual convolutional network that
// increases the spatial resolution of single-channel gridded fields
// by a fixed power-of-two factor.
package srnet

import (
	"errors"
	"fmt"
	"strings"
)

// Device identifies where tensor data and network parameters live.
type Device string

// CPU is the only compute backend currently available.
const CPU Device = "cpu"

var (
	// ErrDeviceMismatch is returned when a tensor is not on the same
	// device as the network it is passed to.
	ErrDeviceMismatch = errors.New("srnet: tensor and network are on different devices")

	// ErrShape is returned when tensor dimensions are not compatible
	// with an operation.
	ErrShape = errors.New("srnet: incompatible tensor shape")
)

// ParseDevice converts a device name into a Device. Only "cpu" is
// supported; requesting any other backend is a configuration error.
func ParseDevice(name string) (Device, error) {
	d := Device(strings.ToLower(strings.TrimSpace(name)))
	switch d {
	case CPU:
		return d, nil
	case "":
		return "", fmt.Errorf("srnet: no device specified")
	default:
		return "", fmt.Errorf("srnet: device %q is not available; valid options are [%s]", name, CPU)
	}
}

// Tensor is a dense 4-dimensional array in (batch, channel, row, column)
// order.
type Tensor struct {
	Shape  [4]int
	Data   []float64
	Device Device
}

// NewTensor returns a zero-valued tensor with the given dimensions.
func NewTensor(n, c, h, w int, device Device) *Tensor {
	return &Tensor{
		Shape:  [4]int{n, c, h, w},
		Data:   make([]float64, n*c*h*w),
		Device: device,
	}
}

// index returns the position of the given element in t.Data.
func (t *Tensor) index(n, c, h, w int) int {
	return ((n*t.Shape[1]+c)*t.Shape[2]+h)*t.Shape[3] + w
}

// At returns the value at the given position.
func (t *Tensor) At(n, c, h, w int) float64 {
	return t.Data[t.index(n, c, h, w)]
}

// Set sets the value at the given position.
func (t *Tensor) Set(v float64, n, c, h, w int) {
	t.Data[t.index(n, c, h, w)] = v
}

// Sample returns the data belonging to batch member n.
func (t *Tensor) Sample(n int) []float64 {
	size := t.Shape[1] * t.Shape[2] * t.Shape[3]
	return t.Data[n*size : (n+1)*size]
}

// Copy returns a deep copy of t.
func (t *Tensor) Copy() *Tensor {
	o := &Tensor{Shape: t.Shape, Device: t.Device, Data: make([]float64, len(t.Data))}
	copy(o.Data, t.Data)
	return o
}

// zerosLike returns a zero tensor with the shape and device of t.
func zerosLike(t *Tensor) *Tensor {
	return NewTensor(t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3], t.Device)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v(%s)", t.Shape, t.Device)
}
