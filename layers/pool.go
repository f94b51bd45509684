// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"encoding/gob"
	"fmt"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/nn"
)

// PoolSpec describes a 2D max pooling.
type PoolSpec struct {
	PoolHeight int
	PoolWidth  int
	StrideY    int
	StrideX    int
	Padding    Padding
}

var _ Layer = &MaxPool2D{}

// MaxPool2D is a non-overlapping 2D max pooling.
type MaxPool2D struct {
	Spec PoolSpec
}

func init() {
	gob.Register(&MaxPool2D{})
}

// NewMaxPool2D returns a new MaxPool2D layer.
// Strides default to the pool size; they must always equal it.
func NewMaxPool2D(spec PoolSpec) (*MaxPool2D, error) {
	if spec.StrideY == 0 {
		spec.StrideY = spec.PoolHeight
	}
	if spec.StrideX == 0 {
		spec.StrideX = spec.PoolWidth
	}
	if spec.PoolHeight <= 0 || spec.PoolWidth <= 0 {
		return nil, fmt.Errorf("%w: pool size must be positive (%+v)", ErrInvalidPooling, spec)
	}
	if spec.StrideY != spec.PoolHeight || spec.StrideX != spec.PoolWidth {
		return nil, fmt.Errorf("%w: strides (%d, %d) differ from pool size (%d, %d)",
			ErrInvalidPooling, spec.StrideY, spec.StrideX, spec.PoolHeight, spec.PoolWidth)
	}
	if spec.Padding != Same && spec.Padding != Valid {
		return nil, fmt.Errorf("%w: unknown padding %q", ErrInvalidPooling, spec.Padding)
	}
	return &MaxPool2D{Spec: spec}, nil
}

// OutputShape returns the shape of the output for an input of the given shape.
// Valid pooling drops the incomplete windows (floor), same pooling keeps them (ceil).
func (m *MaxPool2D) OutputShape(in Shape) (Shape, error) {
	s := m.Spec
	out := Shape{Channels: in.Channels}
	if s.Padding == Same {
		out.Height, out.Width = ceilDiv(in.Height, s.PoolHeight), ceilDiv(in.Width, s.PoolWidth)
	} else {
		out.Height, out.Width = in.Height/s.PoolHeight, in.Width/s.PoolWidth
	}
	if out.Height < 1 || out.Width < 1 {
		return Shape{}, fmt.Errorf("%w: input %v too small for pool %dx%d", ErrShapeMismatch, in, s.PoolHeight, s.PoolWidth)
	}
	return out, nil
}

// Forward performs the max pooling on each feature map of the batch.
// Every output cell takes its value, and its gradient, from exactly one
// input cell: the first maximum of its window. Windows crossing the border
// only see real values.
func (m *MaxPool2D) Forward(xs []*FeatureMap, _ bool) ([]*FeatureMap, error) {
	if len(xs) == 0 {
		return nil, nil
	}
	in := xs[0].Shape()
	out, err := m.OutputShape(in)
	if err != nil {
		return nil, err
	}
	ph, pw := m.Spec.PoolHeight, m.Spec.PoolWidth
	if ph == 1 && pw == 1 {
		return xs, nil
	}

	// picks[k] selects the k-th column of every window
	picks := make([]mat.Tensor, pw)
	for k := range picks {
		k := k
		picks[k] = selection[Float](in.Width, out.Width, func(j int) int {
			if i := j*pw + k; i < in.Width {
				return i
			}
			return -1
		})
	}

	ys := make([]*FeatureMap, len(xs))
	for n, x := range xs {
		if x.Shape() != in {
			return nil, fmt.Errorf("%w: batch mixes shapes %v and %v", ErrShapeMismatch, in, x.Shape())
		}
		values := make([][]float64, in.Height)
		for i, row := range x.Rows {
			values[i] = row.Value().Data().F64()
		}

		y := &FeatureMap{Rows: make([]mat.Tensor, out.Height), Width: out.Width, Channels: out.Channels}
		for oy := range y.Rows {
			rows := make([]int, 0, ph)
			for iy := oy * ph; iy < (oy+1)*ph && iy < in.Height; iy++ {
				rows = append(rows, iy)
			}
			masks := argmaxMasks(values, rows, in.Width, out, pw)

			var terms []mat.Tensor
			for i, iy := range rows {
				for k := 0; k < pw; k++ {
					mask := masks[i*pw+k]
					if mask == nil {
						continue
					}
					candidates := ag.Mul(x.Rows[iy], picks[k])
					terms = append(terms, ag.Prod(candidates, constant[Float](out.Channels, out.Width, mask)))
				}
			}
			y.Rows[oy] = sum(terms)
		}
		ys[n] = y
	}
	return ys, nil
}

// argmaxMasks returns one channels × width 0/1 mask per window element
// (row index i, column offset k at position i*pw+k), marking the output
// cells where that element is the first maximum. Elements that never win
// get a nil mask.
func argmaxMasks(values [][]float64, rows []int, inWidth int, out Shape, pw int) [][]Float {
	masks := make([][]Float, len(rows)*pw)
	for c := 0; c < out.Channels; c++ {
		for j := 0; j < out.Width; j++ {
			best, bestValue := -1, 0.0
			for i, iy := range rows {
				for k := 0; k < pw && j*pw+k < inWidth; k++ {
					if v := values[iy][c*inWidth+j*pw+k]; best < 0 || v > bestValue {
						best, bestValue = i*pw+k, v
					}
				}
			}
			if masks[best] == nil {
				masks[best] = make([]Float, out.Channels*out.Width)
			}
			masks[best][c*out.Width+j] = 1
		}
	}
	return masks
}

// Params returns nil: pooling has no trainable parameters.
func (m *MaxPool2D) Params() []*nn.Param {
	return nil
}
