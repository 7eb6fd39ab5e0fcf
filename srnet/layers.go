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
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	bnEpsilon  = 1e-5
	bnMomentum = 0.1

	// colBlock is the maximum number of output pixels unrolled at once
	// by the convolution, which bounds the size of the im2col buffer.
	colBlock = 4096
)

// parallel runs f(i) for i in [0, n) using one goroutine per processor.
// Each index is handled by exactly one goroutine.
func parallel(n int, f func(i int)) {
	nprocs := runtime.GOMAXPROCS(0)
	if nprocs > n {
		nprocs = n
	}
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for i := pp; i < n; i += nprocs {
				f(i)
			}
		}(pp)
	}
	wg.Wait()
}

// im2col unrolls the kernel windows for output pixels [p0, p1) of a
// single (channels, h, w) sample into a (channels·k·k)×(p1-p0) matrix.
func im2col(in []float64, channels, h, w, k, p0, p1 int) []float64 {
	pad := k / 2
	bw := p1 - p0
	col := make([]float64, channels*k*k*bw)
	for c := 0; c < channels; c++ {
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				row := col[((c*k+ki)*k+kj)*bw : ((c*k+ki)*k+kj+1)*bw]
				for p := p0; p < p1; p++ {
					y := p/w + ki - pad
					x := p%w + kj - pad
					if y < 0 || y >= h || x < 0 || x >= w {
						continue
					}
					row[p-p0] = in[(c*h+y)*w+x]
				}
			}
		}
	}
	return col
}

// col2im is the adjoint of im2col: it adds the unrolled gradients in
// col back onto the sample gradient dIn.
func col2im(col, dIn []float64, channels, h, w, k, p0, p1 int) {
	pad := k / 2
	bw := p1 - p0
	for c := 0; c < channels; c++ {
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				row := col[((c*k+ki)*k+kj)*bw : ((c*k+ki)*k+kj+1)*bw]
				for p := p0; p < p1; p++ {
					y := p/w + ki - pad
					x := p%w + kj - pad
					if y < 0 || y >= h || x < 0 || x >= w {
						continue
					}
					dIn[(c*h+y)*w+x] += row[p-p0]
				}
			}
		}
	}
}

// convForward applies a same-padded, stride-1 convolution.
func convForward(x *Tensor, l Layer, p LayerParams) *Tensor {
	n, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	hw := h * w
	inkk := l.In * l.Kernel * l.Kernel
	out := NewTensor(n, l.Out, h, w, x.Device)
	wM := mat.NewDense(l.Out, inkk, p.W)
	parallel(n, func(s int) {
		in := x.Sample(s)
		o := out.Sample(s)
		for p0 := 0; p0 < hw; p0 += colBlock {
			p1 := min(p0+colBlock, hw)
			bw := p1 - p0
			colM := mat.NewDense(inkk, bw, im2col(in, l.In, h, w, l.Kernel, p0, p1))
			var prod mat.Dense
			prod.Mul(wM, colM)
			for oc := 0; oc < l.Out; oc++ {
				dst := o[oc*hw+p0 : oc*hw+p1]
				copy(dst, prod.RawRowView(oc))
				floats.AddConst(p.B[oc], dst)
			}
		}
	})
	return out
}

// convBackward returns the gradient with respect to the convolution
// input and adds the weight and bias gradients to g. Per-sample
// weight gradients are summed in sample order so that the result does
// not depend on goroutine scheduling.
func convBackward(x *Tensor, l Layer, p LayerParams, dOut *Tensor, g *LayerParams) *Tensor {
	n, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	hw := h * w
	inkk := l.In * l.Kernel * l.Kernel
	dIn := zerosLike(x)
	wM := mat.NewDense(l.Out, inkk, p.W)
	dWs := make([]*mat.Dense, n)
	parallel(n, func(s int) {
		in := x.Sample(s)
		dO := dOut.Sample(s)
		di := dIn.Sample(s)
		dW := mat.NewDense(l.Out, inkk, nil)
		for p0 := 0; p0 < hw; p0 += colBlock {
			p1 := min(p0+colBlock, hw)
			bw := p1 - p0
			colM := mat.NewDense(inkk, bw, im2col(in, l.In, h, w, l.Kernel, p0, p1))
			dOBlock := make([]float64, l.Out*bw)
			for oc := 0; oc < l.Out; oc++ {
				copy(dOBlock[oc*bw:(oc+1)*bw], dO[oc*hw+p0:oc*hw+p1])
			}
			dOM := mat.NewDense(l.Out, bw, dOBlock)

			var gw mat.Dense
			gw.Mul(dOM, colM.T())
			dW.Add(dW, &gw)

			var dCol mat.Dense
			dCol.Mul(wM.T(), dOM)
			col2im(denseData(&dCol), di, l.In, h, w, l.Kernel, p0, p1)
		}
		dWs[s] = dW
	})
	for s := 0; s < n; s++ {
		floats.Add(g.W, denseData(dWs[s]))
		dO := dOut.Sample(s)
		for oc := 0; oc < l.Out; oc++ {
			g.B[oc] += floats.Sum(dO[oc*hw : (oc+1)*hw])
		}
	}
	return dIn
}

// denseData returns the backing data of a freshly allocated matrix,
// which is contiguous.
func denseData(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	r, c := m.Dims()
	if raw.Stride == c {
		return raw.Data[:r*c]
	}
	o := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		o = append(o, raw.Data[i*raw.Stride:i*raw.Stride+c]...)
	}
	return o
}

// bnCache holds the values from a training-mode batch normalization
// forward pass needed for backpropagation.
type bnCache struct {
	xhat   *Tensor
	invStd []float64
}

// batchNormForward normalizes each channel of x. In training mode the
// batch statistics are used and the running statistics in p are
// updated; otherwise the running statistics are used.
func batchNormForward(x *Tensor, p *LayerParams, mode Mode) (*Tensor, *bnCache) {
	n, c, hw := x.Shape[0], x.Shape[1], x.Shape[2]*x.Shape[3]
	out := zerosLike(x)
	m := float64(n * hw)
	var cache *bnCache
	if mode == TrainMode {
		cache = &bnCache{xhat: zerosLike(x), invStd: make([]float64, c)}
	}
	for ch := 0; ch < c; ch++ {
		var mean, variance float64
		if mode == TrainMode {
			for s := 0; s < n; s++ {
				mean += floats.Sum(channel(x, s, ch))
			}
			mean /= m
			for s := 0; s < n; s++ {
				for _, v := range channel(x, s, ch) {
					variance += (v - mean) * (v - mean)
				}
			}
			variance /= m
			unbiased := variance
			if m > 1 {
				unbiased = variance * m / (m - 1)
			}
			p.RunningMean[ch] = (1-bnMomentum)*p.RunningMean[ch] + bnMomentum*mean
			p.RunningVar[ch] = (1-bnMomentum)*p.RunningVar[ch] + bnMomentum*unbiased
		} else {
			mean, variance = p.RunningMean[ch], p.RunningVar[ch]
		}
		invStd := 1 / math.Sqrt(variance+bnEpsilon)
		gamma, beta := p.Gamma[ch], p.Beta[ch]
		for s := 0; s < n; s++ {
			in, o := channel(x, s, ch), channel(out, s, ch)
			for i, v := range in {
				xh := (v - mean) * invStd
				o[i] = gamma*xh + beta
			}
			if cache != nil {
				xh := channel(cache.xhat, s, ch)
				for i, v := range in {
					xh[i] = (v - mean) * invStd
				}
			}
		}
		if cache != nil {
			cache.invStd[ch] = invStd
		}
	}
	return out, cache
}

// batchNormBackward returns the gradient with respect to the batch
// normalization input and adds the scale and shift gradients to g.
func batchNormBackward(cache *bnCache, p LayerParams, dOut *Tensor, g *LayerParams) *Tensor {
	n, c, hw := dOut.Shape[0], dOut.Shape[1], dOut.Shape[2]*dOut.Shape[3]
	m := float64(n * hw)
	dIn := zerosLike(dOut)
	for ch := 0; ch < c; ch++ {
		var dGamma, dBeta float64
		for s := 0; s < n; s++ {
			dO, xh := channel(dOut, s, ch), channel(cache.xhat, s, ch)
			dBeta += floats.Sum(dO)
			dGamma += floats.Dot(dO, xh)
		}
		g.Gamma[ch] += dGamma
		g.Beta[ch] += dBeta
		k := p.Gamma[ch] * cache.invStd[ch] / m
		for s := 0; s < n; s++ {
			dO, xh, di := channel(dOut, s, ch), channel(cache.xhat, s, ch), channel(dIn, s, ch)
			for i := range di {
				di[i] = k * (m*dO[i] - dBeta - xh[i]*dGamma)
			}
		}
	}
	return dIn
}

// channel returns the data of channel ch of sample s.
func channel(t *Tensor, s, ch int) []float64 {
	hw := t.Shape[2] * t.Shape[3]
	start := (s*t.Shape[1] + ch) * hw
	return t.Data[start : start+hw]
}

func reluForward(x *Tensor) *Tensor {
	out := zerosLike(x)
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out
}

func reluBackward(x, dOut *Tensor) *Tensor {
	dIn := zerosLike(dOut)
	for i, v := range x.Data {
		if v > 0 {
			dIn.Data[i] = dOut.Data[i]
		}
	}
	return dIn
}

// pixelShuffle moves blocks of r·r channels into r×r spatial blocks:
// out[c][h·r+i][w·r+j] = in[c·r·r+i·r+j][h][w].
func pixelShuffle(x *Tensor, r int) *Tensor {
	n, cin, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	c := cin / (r * r)
	out := NewTensor(n, c, h*r, w*r, x.Device)
	for s := 0; s < n; s++ {
		for oc := 0; oc < c; oc++ {
			for i := 0; i < r; i++ {
				for j := 0; j < r; j++ {
					ic := oc*r*r + i*r + j
					for y := 0; y < h; y++ {
						for xx := 0; xx < w; xx++ {
							out.Set(x.At(s, ic, y, xx), s, oc, y*r+i, xx*r+j)
						}
					}
				}
			}
		}
	}
	return out
}

// pixelUnshuffle is the inverse of pixelShuffle.
func pixelUnshuffle(x *Tensor, r int) *Tensor {
	n, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2]/r, x.Shape[3]/r
	out := NewTensor(n, c*r*r, h, w, x.Device)
	for s := 0; s < n; s++ {
		for oc := 0; oc < c; oc++ {
			for i := 0; i < r; i++ {
				for j := 0; j < r; j++ {
					ic := oc*r*r + i*r + j
					for y := 0; y < h; y++ {
						for xx := 0; xx < w; xx++ {
							out.Set(x.At(s, oc, y*r+i, xx*r+j), s, ic, y, xx)
						}
					}
				}
			}
		}
	}
	return out
}

// add returns a + b.
func add(a, b *Tensor) *Tensor {
	out := a.Copy()
	floats.Add(out.Data, b.Data)
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
