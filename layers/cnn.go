// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"encoding/gob"
	"fmt"

	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
)

// Layer is a step of the convolutional stack.
type Layer interface {
	// Forward processes the whole batch at once.
	Forward(xs []*FeatureMap, training bool) ([]*FeatureMap, error)
	// OutputShape returns the shape produced for an input of the given shape.
	OutputShape(in Shape) (Shape, error)
	// Params returns the trainable parameters.
	Params() []*nn.Param
}

// LayerKind identifies the type of a LayerSpec.
type LayerKind string

const (
	ConvLayer      LayerKind = "conv"
	BatchNormLayer LayerKind = "batchnorm"
	MaxPoolLayer   LayerKind = "maxpool"
	DropoutLayer   LayerKind = "dropout"
)

// LayerSpec describes one layer of a CNN.
type LayerSpec struct {
	Kind LayerKind
	Conv ConvSpec
	Pool PoolSpec
	Rate float64
}

// Conv returns the spec of a stride-1 convolution.
func Conv(filters, kh, kw int, padding Padding, activation Activation) LayerSpec {
	return LayerSpec{Kind: ConvLayer, Conv: ConvSpec{
		Filters:      filters,
		KernelHeight: kh,
		KernelWidth:  kw,
		StrideY:      1,
		StrideX:      1,
		Padding:      padding,
		Activation:   activation,
	}}
}

// MaxPool returns the spec of a non-overlapping valid max pooling.
func MaxPool(ph, pw int) LayerSpec {
	return LayerSpec{Kind: MaxPoolLayer, Pool: PoolSpec{PoolHeight: ph, PoolWidth: pw, StrideY: ph, StrideX: pw, Padding: Valid}}
}

// BatchNormalization returns the spec of a batch normalization.
func BatchNormalization() LayerSpec {
	return LayerSpec{Kind: BatchNormLayer}
}

// DropoutSpec returns the spec of a dropout.
func DropoutSpec(rate float64) LayerSpec {
	return LayerSpec{Kind: DropoutLayer, Rate: rate}
}

// DefaultLayers returns a fresh copy of the default OCR convolutional stack.
// With baseFilters = 64 the filters are 64, 128, 256, 256, 512, 512, 512.
// It reduces the height by 16 and then by one (2×2 valid convolution), so an
// input of height 32 collapses to 1.
func DefaultLayers(baseFilters int, dropout float64) []LayerSpec {
	b := baseFilters
	return []LayerSpec{
		Conv(b, 3, 3, Same, ReLU),
		BatchNormalization(),
		MaxPool(2, 2),

		Conv(2*b, 3, 3, Same, ReLU),
		MaxPool(2, 2),

		Conv(4*b, 3, 3, Same, ReLU),
		BatchNormalization(),
		Conv(4*b, 3, 3, Same, ReLU),
		MaxPool(2, 1),

		Conv(8*b, 3, 3, Same, ReLU),
		BatchNormalization(),
		Conv(8*b, 3, 3, Same, ReLU),
		MaxPool(2, 1),

		Conv(8*b, 2, 2, Valid, ReLU),
		BatchNormalization(),
		DropoutSpec(dropout),
	}
}

// CNN is a sequence of convolutional layers.
type CNN struct {
	nn.Module
	Layers     []Layer
	InChannels int
	lastShape  Shape
}

func init() {
	gob.Register(&CNN{})
}

// NewCNN builds the layers described by specs.
// It fails if any pooling or convolution breaks the stack's size arithmetic.
func NewCNN(rng *rand.LockedRand, inChannels int, specs []LayerSpec) (*CNN, error) {
	m := &CNN{InChannels: inChannels}
	channels := inChannels
	for i, s := range specs {
		var (
			l   Layer
			err error
		)
		switch s.Kind {
		case ConvLayer:
			var c *Conv2D
			c, err = NewConv2D(rng, s.Conv, channels)
			if err == nil {
				channels = c.Spec.Filters
			}
			l = c
		case MaxPoolLayer:
			l, err = NewMaxPool2D(s.Pool)
		case BatchNormLayer:
			l = NewBatchNorm(channels)
		case DropoutLayer:
			l, err = NewDropout(s.Rate, rng)
		default:
			err = fmt.Errorf("unknown layer kind %q", s.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		m.Layers = append(m.Layers, l)
	}
	return m, nil
}

// OutputShape replays the size arithmetic of every layer.
func (m *CNN) OutputShape(in Shape) (Shape, error) {
	if in.Channels != m.InChannels {
		return Shape{}, fmt.Errorf("%w: expected %d input channels, got %d", ErrShapeMismatch, m.InChannels, in.Channels)
	}
	s := in
	for i, l := range m.Layers {
		var err error
		if s, err = l.OutputShape(s); err != nil {
			return Shape{}, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return s, nil
}

// OutputWidth returns the horizontal length of the output for an input of
// the given height and width.
func (m *CNN) OutputWidth(height, width int) (int, error) {
	s, err := m.OutputShape(Shape{Height: height, Width: width, Channels: m.InChannels})
	if err != nil {
		return 0, err
	}
	return s.Width, nil
}

// Forward runs the batch through all the layers.
func (m *CNN) Forward(xs []*FeatureMap, training bool) ([]*FeatureMap, error) {
	if len(xs) == 0 {
		return nil, nil
	}
	expected, err := m.OutputShape(xs[0].Shape())
	if err != nil {
		return nil, err
	}
	for i, l := range m.Layers {
		if xs, err = l.Forward(xs, training); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	m.lastShape = xs[0].Shape()
	if m.lastShape != expected {
		return nil, fmt.Errorf("%w: forward produced %v, expected %v", ErrShapeMismatch, m.lastShape, expected)
	}
	return xs, nil
}

// LastShape returns the shape of the last output produced by Forward.
func (m *CNN) LastShape() Shape {
	return m.lastShape
}

// Params returns the trainable parameters of all the layers.
func (m *CNN) Params() []*nn.Param {
	var ps []*nn.Param
	for _, l := range m.Layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}
