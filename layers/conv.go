// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"encoding/gob"
	"fmt"
	"math"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
)

// Padding is the padding mode of convolutions and poolings.
type Padding string

const (
	// Same pads the input so that, with stride 1, the output keeps the input size.
	Same Padding = "same"
	// Valid applies no padding.
	Valid Padding = "valid"
)

// Activation is the non-linearity applied after a convolution.
type Activation string

const (
	Identity Activation = ""
	ReLU     Activation = "relu"
)

// ConvSpec describes a 2D convolution.
type ConvSpec struct {
	Filters      int
	KernelHeight int
	KernelWidth  int
	StrideY      int
	StrideX      int
	Padding      Padding
	Activation   Activation
}

var _ Layer = &Conv2D{}

// Conv2D is a 2D convolution. The kernel is stored as one
// filters × input-channels matrix per (dy, dx) offset.
type Conv2D struct {
	nn.Module
	Kernels    []*nn.Param
	Bias       *nn.Param
	Spec       ConvSpec
	InChannels int
}

func init() {
	gob.Register(&Conv2D{})
}

// NewConv2D returns a new Conv2D layer.
func NewConv2D(rng *rand.LockedRand, spec ConvSpec, inChannels int) (*Conv2D, error) {
	if spec.StrideY == 0 {
		spec.StrideY = 1
	}
	if spec.StrideX == 0 {
		spec.StrideX = 1
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	k := spec.KernelHeight * spec.KernelWidth
	// each offset sees 1/k of the receptive field
	gain := 1 / math.Sqrt(float64(k))
	m := &Conv2D{
		Kernels:    make([]*nn.Param, k),
		Bias:       vectorParam(spec.Filters, 0),
		Spec:       spec,
		InChannels: inChannels,
	}
	for i := range m.Kernels {
		m.Kernels[i] = xavierParam(spec.Filters, inChannels, gain, rng)
	}
	return m, nil
}

func (s ConvSpec) validate() error {
	if s.Filters <= 0 || s.KernelHeight <= 0 || s.KernelWidth <= 0 {
		return fmt.Errorf("%w: filters and kernel size must be positive (%+v)", ErrInvalidConvolution, s)
	}
	switch s.Padding {
	case Same:
	case Valid:
		if s.StrideY != 1 || s.StrideX != 1 {
			return fmt.Errorf("%w: valid convolutions must have stride 1, got (%d, %d)", ErrInvalidConvolution, s.StrideY, s.StrideX)
		}
	default:
		return fmt.Errorf("%w: unknown padding %q", ErrInvalidConvolution, s.Padding)
	}
	return nil
}

// OutputShape returns the shape of the output for an input of the given shape.
func (m *Conv2D) OutputShape(in Shape) (Shape, error) {
	if in.Channels != m.InChannels {
		return Shape{}, fmt.Errorf("%w: conv expects %d channels, got %d", ErrShapeMismatch, m.InChannels, in.Channels)
	}
	s := m.Spec
	out := Shape{Channels: s.Filters}
	if s.Padding == Same {
		out.Height, out.Width = ceilDiv(in.Height, s.StrideY), ceilDiv(in.Width, s.StrideX)
	} else {
		out.Height, out.Width = in.Height-s.KernelHeight+1, in.Width-s.KernelWidth+1
	}
	if out.Height < 1 || out.Width < 1 {
		return Shape{}, fmt.Errorf("%w: input %v too small for kernel %dx%d", ErrShapeMismatch, in, s.KernelHeight, s.KernelWidth)
	}
	return out, nil
}

// padding returns the number of rows and columns virtually added before the input.
func (m *Conv2D) padding(in, out Shape) (top, left int) {
	if m.Spec.Padding == Valid {
		return 0, 0
	}
	s := m.Spec
	padY := max(0, (out.Height-1)*s.StrideY+s.KernelHeight-in.Height)
	padX := max(0, (out.Width-1)*s.StrideX+s.KernelWidth-in.Width)
	return padY / 2, padX / 2
}

// Forward performs the convolution on each feature map of the batch.
func (m *Conv2D) Forward(xs []*FeatureMap, _ bool) ([]*FeatureMap, error) {
	if len(xs) == 0 {
		return nil, nil
	}
	in := xs[0].Shape()
	out, err := m.OutputShape(in)
	if err != nil {
		return nil, err
	}
	top, left := m.padding(in, out)
	s := m.Spec

	// one column-shift matrix per horizontal kernel offset, shared by the batch
	shifts := make([]mat.Tensor, s.KernelWidth)
	for dx := range shifts {
		dx := dx
		shifts[dx] = selection[Float](in.Width, out.Width, func(j int) int {
			return j*s.StrideX + dx - left
		})
	}
	ones := onesRow[Float](out.Width)
	bias := broadcast(m.Bias, ones)

	ys := make([]*FeatureMap, len(xs))
	for n, x := range xs {
		if x.Shape() != in {
			return nil, fmt.Errorf("%w: batch mixes shapes %v and %v", ErrShapeMismatch, in, x.Shape())
		}
		shifted := make([][]mat.Tensor, in.Height)
		shiftedRow := func(iy, dx int) mat.Tensor {
			if shifted[iy] == nil {
				shifted[iy] = make([]mat.Tensor, s.KernelWidth)
			}
			if shifted[iy][dx] == nil {
				shifted[iy][dx] = ag.Mul(x.Rows[iy], shifts[dx])
			}
			return shifted[iy][dx]
		}

		y := &FeatureMap{Rows: make([]mat.Tensor, out.Height), Width: out.Width, Channels: out.Channels}
		for oy := 0; oy < out.Height; oy++ {
			terms := []mat.Tensor{bias}
			for dy := 0; dy < s.KernelHeight; dy++ {
				iy := oy*s.StrideY + dy - top
				if iy < 0 || iy >= in.Height {
					continue
				}
				for dx := 0; dx < s.KernelWidth; dx++ {
					terms = append(terms, ag.Mul(m.Kernels[dy*s.KernelWidth+dx], shiftedRow(iy, dx)))
				}
			}
			y.Rows[oy] = activate(s.Activation, sum(terms))
		}
		ys[n] = y
	}
	return ys, nil
}

// Params returns the trainable parameters.
func (m *Conv2D) Params() []*nn.Param {
	return append([]*nn.Param{m.Bias}, m.Kernels...)
}

func activate(a Activation, x mat.Tensor) mat.Tensor {
	if a == ReLU {
		return ag.ReLU(x)
	}
	return x
}
