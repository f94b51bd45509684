// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"fmt"

	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/float"
)

// Float is the numeric type of the parameters and activations built by this package.
type Float = float32

// Shape is the shape of a feature map.
type Shape struct {
	Height   int
	Width    int
	Channels int
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Height, s.Width, s.Channels)
}

// FeatureMap is a height × width × channels activation.
// Each row is a channels × width matrix.
type FeatureMap struct {
	Rows     []mat.Tensor
	Width    int
	Channels int
}

// Height returns the number of rows.
func (f *FeatureMap) Height() int {
	return len(f.Rows)
}

// Shape returns the shape of the feature map.
func (f *FeatureMap) Shape() Shape {
	return Shape{Height: f.Height(), Width: f.Width, Channels: f.Channels}
}

// NewFeatureMap builds a constant feature map from rows in channels × width
// row-major order.
func NewFeatureMap[T float.DType](rows [][]T, width, channels int) *FeatureMap {
	out := &FeatureMap{
		Rows:     make([]mat.Tensor, len(rows)),
		Width:    width,
		Channels: channels,
	}
	for y, row := range rows {
		out.Rows[y] = mat.NewDense[T](mat.WithShape(channels, width), mat.WithBacking(row))
	}
	return out
}

// Columns splits a feature map of height 1 into its column vectors,
// one per horizontal position.
func (f *FeatureMap) Columns() ([]mat.Tensor, error) {
	if f.Height() != 1 {
		return nil, fmt.Errorf("%w: expected height 1, got %d", ErrShapeMismatch, f.Height())
	}
	return columns[Float](f.Rows[0], f.Width), nil
}
