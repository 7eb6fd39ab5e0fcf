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
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spatialmodel/aqsr/internal/hash"
)

// State is the lifecycle stage of a Network.
type State int

const (
	// Uninitialized networks have random parameters and cannot be
	// used for prediction.
	Uninitialized State = iota

	// Trained networks have completed at least one training epoch.
	Trained

	// InferenceReady networks were loaded from a checkpoint of a
	// trained network.
	InferenceReady
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Trained:
		return "trained"
	case InferenceReady:
		return "inference-ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrUntrained is returned when prediction is requested from a network
// that has never been trained.
var ErrUntrained = errors.New("srnet: network has not been trained")

// Network is a super-resolution network together with its parameters.
// Parameter updates are serialized; predictions may run concurrently
// with each other but not with training.
type Network struct {
	mu     sync.RWMutex
	arch   Architecture
	params *Params
	device Device
	state  State
}

// New creates a network with the given configuration on the given
// device, with parameters initialized from seed.
func New(cfg Config, device Device, seed int64) (*Network, error) {
	if _, err := ParseDevice(string(device)); err != nil {
		return nil, err
	}
	a, err := NewArchitecture(cfg)
	if err != nil {
		return nil, err
	}
	return &Network{
		arch:   a,
		params: NewParams(a, seed),
		device: device,
		state:  Uninitialized,
	}, nil
}

// Architecture returns the layer list of n.
func (n *Network) Architecture() Architecture { return n.arch }

// Config returns the configuration n was built from.
func (n *Network) Config() Config { return n.arch.Config }

// Device returns the device the parameters of n are on.
func (n *Network) Device() Device { return n.device }

// State returns the lifecycle stage of n.
func (n *Network) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Params returns a copy of the current parameters of n.
func (n *Network) Params() *Params {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.params.Copy()
}

// checkDevice makes sure all tensors are on the same device as n.
func (n *Network) checkDevice(ts ...*Tensor) error {
	for _, t := range ts {
		if t.Device != n.device {
			return fmt.Errorf("%w: network on %q, tensor %v on %q", ErrDeviceMismatch, n.device, t.Shape, t.Device)
		}
	}
	return nil
}

// checkpoint is the serialized form of a Network.
type checkpoint struct {
	Arch        Architecture
	Fingerprint string
	Params      *Params
	State       State
}

// Save writes the architecture and parameters of n to w. Parameter
// values are stored exactly.
func (n *Network) Save(w io.Writer) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c := checkpoint{
		Arch:        n.arch,
		Fingerprint: hash.Hash(n.arch),
		Params:      n.params,
		State:       n.state,
	}
	if err := gob.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("srnet: saving network: %v", err)
	}
	return nil
}

// Load reads a network previously written by Save and places it on
// device. A trained network is loaded in the InferenceReady state.
func Load(r io.Reader, device Device) (*Network, error) {
	if _, err := ParseDevice(string(device)); err != nil {
		return nil, err
	}
	var c checkpoint
	if err := gob.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("srnet: loading network: %v", err)
	}
	rebuilt, err := NewArchitecture(c.Arch.Config)
	if err != nil {
		return nil, fmt.Errorf("srnet: loading network: %v", err)
	}
	if h := hash.Hash(rebuilt); h != c.Fingerprint || hash.Hash(c.Arch) != c.Fingerprint {
		return nil, fmt.Errorf("srnet: loading network: architecture fingerprint %s does not match %s", h, c.Fingerprint)
	}
	if c.Params == nil {
		return nil, fmt.Errorf("srnet: loading network: checkpoint has no parameters")
	}
	if err := c.Params.check(rebuilt); err != nil {
		return nil, fmt.Errorf("srnet: loading network: %v", err)
	}
	state := c.State
	if state == Trained {
		state = InferenceReady
	}
	return &Network{
		arch:   rebuilt,
		params: c.Params,
		device: device,
		state:  state,
	}, nil
}
