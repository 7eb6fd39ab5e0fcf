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
	"bytes"
	"encoding/gob"
	"errors"
	"io"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/kr/pretty"
)

func smallConfig() Config {
	return Config{
		Scale:       2,
		Features:    4,
		ResBlocks:   1,
		Kernel:      3,
		InChannels:  1,
		OutChannels: 1,
	}
}

// smoothBatch returns a batch whose inputs are smooth fields and whose
// targets are the same fields sampled at scale× resolution.
func smoothBatch(n, h, w, scale int) Batch {
	f := func(s int, y, x float64) float64 {
		return 0.5 + 0.25*math.Sin(0.7*x+0.3*float64(s))*math.Cos(0.5*y)
	}
	in := NewTensor(n, 1, h, w, CPU)
	target := NewTensor(n, 1, h*scale, w*scale, CPU)
	for s := 0; s < n; s++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				in.Set(f(s, float64(y), float64(x)), s, 0, y, x)
			}
		}
		for y := 0; y < h*scale; y++ {
			for x := 0; x < w*scale; x++ {
				fy := (float64(y) + 0.5) / float64(scale)
				fx := (float64(x) + 0.5) / float64(scale)
				target.Set(f(s, fy-0.5, fx-0.5), s, 0, y, x)
			}
		}
	}
	return Batch{Input: in, Target: target}
}

func TestNewArchitecture(t *testing.T) {
	a, err := NewArchitecture(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	count := make(map[Op]int)
	for _, l := range a.Layers {
		count[l.Op]++
	}
	want := map[Op]int{
		Conv:         2 + 2*16 + 2 + 1,
		BatchNorm:    2 * 16,
		ReLU:         2 + 16 + 16 + 2,
		PixelShuffle: 2,
		SkipBegin:    16,
		SkipAdd:      16,
	}
	if !reflect.DeepEqual(count, want) {
		t.Errorf("layer counts: %v", pretty.Diff(count, want))
	}
	first, last := a.Layers[0], a.Layers[len(a.Layers)-1]
	if first.Op != Conv || first.In != 1 || first.Out != 64 {
		t.Errorf("first layer = %+v", first)
	}
	if last.Op != Conv || last.In != 64 || last.Out != 1 {
		t.Errorf("last layer = %+v", last)
	}
	for _, l := range a.Layers {
		if l.Op == PixelShuffle && (l.In != 256 || l.Out != 64 || l.Factor != 2) {
			t.Errorf("upsample layer = %+v", l)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	for _, test := range []struct {
		scale  int
		stages int
		err    bool
	}{
		{scale: 1, err: true},
		{scale: 2, stages: 1},
		{scale: 3, err: true},
		{scale: 4, stages: 2},
		{scale: 6, err: true},
		{scale: 8, stages: 3},
	} {
		cfg := DefaultConfig()
		cfg.Scale = test.scale
		a, err := NewArchitecture(cfg)
		if test.err {
			if err == nil {
				t.Errorf("scale %d: expected an error", test.scale)
			}
			continue
		}
		if err != nil {
			t.Errorf("scale %d: %v", test.scale, err)
			continue
		}
		stages := 0
		for _, l := range a.Layers {
			if l.Op == PixelShuffle {
				stages++
			}
		}
		if stages != test.stages {
			t.Errorf("scale %d: have %d stages, want %d", test.scale, stages, test.stages)
		}
	}
}

func TestOutputShape(t *testing.T) {
	a, err := NewArchitecture(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	p := NewParams(a, 1)
	for _, shape := range [][4]int{{1, 1, 1, 1}, {1, 1, 3, 5}, {2, 1, 2, 1}} {
		x := NewTensor(shape[0], shape[1], shape[2], shape[3], CPU)
		for i := range x.Data {
			x.Data[i] = float64(i)
		}
		out, tape, err := Apply(a, p, x, EvalMode)
		if err != nil {
			t.Fatal(err)
		}
		if tape != nil {
			t.Error("eval mode should not record a tape")
		}
		want := [4]int{shape[0], 1, 4 * shape[2], 4 * shape[3]}
		if out.Shape != want {
			t.Errorf("input %v: have output %v, want %v", shape, out.Shape, want)
		}
	}
}

func TestPixelShuffle(t *testing.T) {
	x := NewTensor(1, 4, 1, 2, CPU)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	// channel c holds values {2c, 2c+1} at columns 0 and 1.
	out := pixelShuffle(x, 2)
	want := []float64{
		0, 2, 1, 3,
		4, 6, 5, 7,
	}
	if out.Shape != [4]int{1, 1, 2, 4} {
		t.Fatalf("shape = %v", out.Shape)
	}
	if !reflect.DeepEqual(out.Data, want) {
		t.Errorf("have %v, want %v", out.Data, want)
	}
	back := pixelUnshuffle(out, 2)
	if !reflect.DeepEqual(back.Data, x.Data) || back.Shape != x.Shape {
		t.Errorf("unshuffle: have %v %v, want %v %v", back.Shape, back.Data, x.Shape, x.Data)
	}
}

func TestConvIdentity(t *testing.T) {
	l := Layer{Op: Conv, In: 1, Out: 1, Kernel: 3}
	p := LayerParams{W: make([]float64, 9), B: []float64{0.5}}
	p.W[4] = 1 // center tap
	x := NewTensor(1, 1, 3, 3, CPU)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	out := convForward(x, l, p)
	for i, v := range out.Data {
		if v != x.Data[i]+0.5 {
			t.Errorf("element %d: have %g, want %g", i, v, x.Data[i]+0.5)
		}
	}
	// A left shift kernel must see zero padding at the edge.
	p.W[4], p.W[5] = 0, 1
	out = convForward(x, l, p)
	want := []float64{1.5, 2.5, 0.5, 4.5, 5.5, 0.5, 7.5, 8.5, 0.5}
	if !reflect.DeepEqual(out.Data, want) {
		t.Errorf("have %v, want %v", out.Data, want)
	}
}

func lossAt(t *testing.T, a Architecture, p *Params, b Batch) float64 {
	out, _, err := Apply(a, p, b.Input, TrainMode)
	if err != nil {
		t.Fatal(err)
	}
	l, _ := MSE{}.Compute(out, b.Target)
	return l
}

func TestGradient(t *testing.T) {
	cfg := smallConfig()
	cfg.Features = 2
	a, err := NewArchitecture(cfg)
	if err != nil {
		t.Fatal(err)
	}
	p := NewParams(a, 3)
	rng := rand.New(rand.NewSource(7))
	b := Batch{Input: NewTensor(2, 1, 3, 3, CPU), Target: NewTensor(2, 1, 6, 6, CPU)}
	for i := range b.Input.Data {
		b.Input.Data[i] = rng.Float64()
	}
	for i := range b.Target.Data {
		b.Target.Data[i] = rng.Float64()
	}
	// Give the batch normalization layers non-trivial scale and shift.
	for i := range p.Layers {
		for j := range p.Layers[i].Gamma {
			p.Layers[i].Gamma[j] = 0.5 + rng.Float64()
			p.Layers[i].Beta[j] = rng.Float64() - 0.5
		}
	}

	out, tape, err := Apply(a, p, b.Input, TrainMode)
	if err != nil {
		t.Fatal(err)
	}
	_, dOut := MSE{}.Compute(out, b.Target)
	g, err := Backward(tape, p, dOut)
	if err != nil {
		t.Fatal(err)
	}

	const eps = 1e-6
	params, grads := p.trainable(), g.trainable()
	if len(params) != len(grads) {
		t.Fatalf("%d parameter groups but %d gradient groups", len(params), len(grads))
	}
	for i := range params {
		for _, j := range []int{0, len(params[i]) / 2, len(params[i]) - 1} {
			orig := params[i][j]
			params[i][j] = orig + eps
			lp := lossAt(t, a, p, b)
			params[i][j] = orig - eps
			lm := lossAt(t, a, p, b)
			params[i][j] = orig
			numeric := (lp - lm) / (2 * eps)
			analytic := grads[i][j]
			if math.Abs(numeric-analytic) > 1e-6+1e-4*math.Abs(numeric) {
				t.Errorf("group %d index %d: analytic %g, numeric %g", i, j, analytic, numeric)
			}
		}
	}
}

func TestTrainLossDecreases(t *testing.T) {
	net, err := New(smallConfig(), CPU, 1)
	if err != nil {
		t.Fatal(err)
	}
	if net.State() != Uninitialized {
		t.Errorf("state = %s", net.State())
	}
	batches := []Batch{smoothBatch(2, 4, 4, 2)}
	const epochs = 8
	next, err := Train(net, batches, MSE{}, &SGD{LR: 0.005}, epochs)
	if err != nil {
		t.Fatal(err)
	}
	var losses []float64
	for {
		r, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if r.Epoch != len(losses)+1 {
			t.Errorf("epoch = %d, want %d", r.Epoch, len(losses)+1)
		}
		if r.Diverged {
			t.Fatalf("epoch %d diverged", r.Epoch)
		}
		losses = append(losses, r.AvgLoss)
	}
	if len(losses) != epochs {
		t.Fatalf("ran %d epochs, want %d", len(losses), epochs)
	}
	for i := 1; i < len(losses); i++ {
		if !(losses[i] < losses[i-1]) {
			t.Errorf("loss did not decrease at epoch %d: %v", i+1, losses)
		}
	}
	if net.State() != Trained {
		t.Errorf("state = %s, want %s", net.State(), Trained)
	}
}

func TestTrainAdam(t *testing.T) {
	net, err := New(smallConfig(), CPU, 2)
	if err != nil {
		t.Fatal(err)
	}
	next, err := Train(net, []Batch{smoothBatch(2, 4, 4, 2), smoothBatch(1, 3, 5, 2)}, L1{}, NewAdam(1e-3), 3)
	if err != nil {
		t.Fatal(err)
	}
	var first, last EpochResult
	for {
		r, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if r.Epoch == 1 {
			first = r
		}
		last = r
	}
	if !(last.AvgLoss < first.AvgLoss) {
		t.Errorf("loss increased from %g to %g", first.AvgLoss, last.AvgLoss)
	}
}

func trainedNetwork(t *testing.T) *Network {
	net, err := New(smallConfig(), CPU, 5)
	if err != nil {
		t.Fatal(err)
	}
	next, err := Train(net, []Batch{smoothBatch(2, 4, 4, 2)}, MSE{}, &SGD{LR: 0.01, Momentum: 0.9}, 2)
	if err != nil {
		t.Fatal(err)
	}
	for {
		if _, err := next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
	}
	return net
}

func TestPredictDeterministic(t *testing.T) {
	net := trainedNetwork(t)
	before := net.Params()
	in := smoothBatch(1, 5, 3, 2).Input
	a, err := Predict(net, in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Predict(net, in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Data, b.Data) {
		t.Error("predictions are not identical")
	}
	if a.Shape != [4]int{1, 1, 10, 6} {
		t.Errorf("shape = %v", a.Shape)
	}
	if !reflect.DeepEqual(before, net.Params()) {
		t.Error("prediction modified the parameters")
	}
}

func TestPredictUntrained(t *testing.T) {
	net, err := New(smallConfig(), CPU, 1)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Predict(net, NewTensor(1, 1, 2, 2, CPU))
	if !errors.Is(err, ErrUntrained) {
		t.Errorf("have error %v, want %v", err, ErrUntrained)
	}
}

func TestDeviceMismatch(t *testing.T) {
	if _, err := ParseDevice("cuda"); err == nil {
		t.Error("cuda should not be available")
	}
	if d, err := ParseDevice(" CPU "); err != nil || d != CPU {
		t.Errorf("ParseDevice: %v, %v", d, err)
	}
	net := trainedNetwork(t)
	b := smoothBatch(1, 2, 2, 2)
	b.Target.Device = "gpu"
	if _, err := Train(net, []Batch{smoothBatch(1, 2, 2, 2), b}, MSE{}, &SGD{LR: 0.1}, 1); !errors.Is(err, ErrDeviceMismatch) {
		t.Errorf("train: have error %v, want %v", err, ErrDeviceMismatch)
	}
	in := NewTensor(1, 1, 2, 2, "gpu")
	if _, err := Predict(net, in); !errors.Is(err, ErrDeviceMismatch) {
		t.Errorf("predict: have error %v, want %v", err, ErrDeviceMismatch)
	}
}

func TestTrainShapeCheck(t *testing.T) {
	net, err := New(smallConfig(), CPU, 1)
	if err != nil {
		t.Fatal(err)
	}
	b := smoothBatch(1, 4, 4, 4) // target is 4× but the network is 2×
	if _, err := Train(net, []Batch{b}, MSE{}, &SGD{LR: 0.1}, 1); !errors.Is(err, ErrShape) {
		t.Errorf("have error %v, want %v", err, ErrShape)
	}
	if _, err := Train(net, nil, MSE{}, &SGD{LR: 0.1}, 1); err == nil {
		t.Error("expected an error for no batches")
	}
}

func TestCheckpoint(t *testing.T) {
	net := trainedNetwork(t)
	buf := new(bytes.Buffer)
	if err := net.Save(buf); err != nil {
		t.Fatal(err)
	}
	net2, err := Load(buf, CPU)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(net.Params(), net2.Params()) {
		t.Errorf("parameters changed: %v", pretty.Diff(net.Params(), net2.Params()))
	}
	if net2.State() != InferenceReady {
		t.Errorf("state = %s, want %s", net2.State(), InferenceReady)
	}
	if net2.Config() != net.Config() {
		t.Errorf("config: %v", pretty.Diff(net2.Config(), net.Config()))
	}
	in := smoothBatch(2, 3, 3, 2).Input
	a, err := Predict(net, in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Predict(net2, in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Data, b.Data) {
		t.Error("loaded network makes different predictions")
	}
}

func TestCheckpointFingerprint(t *testing.T) {
	a, err := NewArchitecture(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	buf := new(bytes.Buffer)
	c := checkpoint{Arch: a, Fingerprint: "0000", Params: NewParams(a, 1), State: Trained}
	if err := gob.NewEncoder(buf).Encode(c); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(buf, CPU); err == nil {
		t.Error("expected a fingerprint mismatch error")
	}
}

func TestLosses(t *testing.T) {
	out := &Tensor{Shape: [4]int{1, 1, 1, 2}, Data: []float64{1, 3}, Device: CPU}
	target := &Tensor{Shape: [4]int{1, 1, 1, 2}, Data: []float64{2, 1}, Device: CPU}
	l, g := MSE{}.Compute(out, target)
	if l != 2.5 {
		t.Errorf("mse: have %g, want 2.5", l)
	}
	if !reflect.DeepEqual(g.Data, []float64{-1, 2}) {
		t.Errorf("mse gradient: have %v", g.Data)
	}
	l, g = L1{}.Compute(out, target)
	if l != 1.5 {
		t.Errorf("l1: have %g, want 1.5", l)
	}
	if !reflect.DeepEqual(g.Data, []float64{-0.5, 0.5}) {
		t.Errorf("l1 gradient: have %v", g.Data)
	}
}

func TestAdamFirstStep(t *testing.T) {
	p := &Params{Layers: []LayerParams{{W: []float64{1, -1}, B: []float64{0}}}}
	g := &Params{Layers: []LayerParams{{W: []float64{0.3, -20}, B: []float64{0}}}}
	opt := NewAdam(0.1)
	opt.Step(p, g)
	want := []float64{0.9, -0.9}
	for i, v := range p.Layers[0].W {
		if math.Abs(v-want[i]) > 1e-6 {
			t.Errorf("weight %d: have %g, want %g", i, v, want[i])
		}
	}
	if p.Layers[0].B[0] != 0 {
		t.Errorf("zero gradient moved bias to %g", p.Layers[0].B[0])
	}
}
