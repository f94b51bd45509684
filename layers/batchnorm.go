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

const (
	DefaultBatchNormMomentum = 0.99
	DefaultBatchNormEpsilon  = 1e-3
)

var _ Layer = &BatchNorm{}

// BatchNorm normalizes each channel over the batch and the spatial positions.
// During training it uses the batch statistics and updates the moving ones,
// which are used at inference time.
type BatchNorm struct {
	nn.Module
	Gamma       *nn.Param
	Beta        *nn.Param
	MovingMean  []float64
	MovingVar   []float64
	Momentum    float64
	Epsilon     float64
	NumChannels int
}

func init() {
	gob.Register(&BatchNorm{})
}

// NewBatchNorm returns a new BatchNorm layer.
func NewBatchNorm(channels int) *BatchNorm {
	return &BatchNorm{
		Gamma:       vectorParam(channels, 1),
		Beta:        vectorParam(channels, 0),
		MovingMean:  make([]float64, channels),
		MovingVar:   toFloat64(filled[Float](channels, 1)),
		Momentum:    DefaultBatchNormMomentum,
		Epsilon:     DefaultBatchNormEpsilon,
		NumChannels: channels,
	}
}

// OutputShape returns the input shape.
func (m *BatchNorm) OutputShape(in Shape) (Shape, error) {
	if in.Channels != m.NumChannels {
		return Shape{}, fmt.Errorf("%w: batch norm expects %d channels, got %d", ErrShapeMismatch, m.NumChannels, in.Channels)
	}
	return in, nil
}

// Forward normalizes the batch.
func (m *BatchNorm) Forward(xs []*FeatureMap, training bool) ([]*FeatureMap, error) {
	if len(xs) == 0 {
		return nil, nil
	}
	in := xs[0].Shape()
	if _, err := m.OutputShape(in); err != nil {
		return nil, err
	}
	onesW := onesRow[Float](in.Width)

	var mean, variance mat.Tensor
	if training {
		mean, variance = m.batchStatistics(xs, in)
		m.updateMovingStatistics(mean, variance)
	} else {
		mean = constant[Float](in.Channels, 1, toFloat(m.MovingMean))
		variance = constant[Float](in.Channels, 1, toFloat(m.MovingVar))
	}

	eps := constant[Float](in.Channels, 1, filled[Float](in.Channels, Float(m.Epsilon)))
	invStd := ag.Div(onesCol[Float](in.Channels), ag.Sqrt(ag.Add(variance, eps)))
	scale := broadcast(ag.Prod(m.Gamma, invStd), onesW)
	shift := broadcast(m.Beta, onesW)
	center := broadcast(mean, onesW)

	ys := make([]*FeatureMap, len(xs))
	for n, x := range xs {
		y := &FeatureMap{Rows: make([]mat.Tensor, x.Height()), Width: x.Width, Channels: x.Channels}
		for i, row := range x.Rows {
			y.Rows[i] = ag.Add(ag.Prod(ag.Sub(row, center), scale), shift)
		}
		ys[n] = y
	}
	return ys, nil
}

// batchStatistics returns the per-channel mean and (biased) variance.
func (m *BatchNorm) batchStatistics(xs []*FeatureMap, in Shape) (mean, variance mat.Tensor) {
	onesW := onesRow[Float](in.Width)
	sumW := onesCol[Float](in.Width)
	count := mat.Scalar(Float(1 / float64(len(xs)*in.Height*in.Width)))

	sums := make([]mat.Tensor, 0, len(xs)*in.Height)
	for _, x := range xs {
		for _, row := range x.Rows {
			sums = append(sums, ag.Mul(row, sumW))
		}
	}
	mean = ag.ProdScalar(sum(sums), count)

	center := broadcast(mean, onesW)
	sqSums := make([]mat.Tensor, 0, len(sums))
	for _, x := range xs {
		for _, row := range x.Rows {
			sqSums = append(sqSums, ag.Mul(ag.Square(ag.Sub(row, center)), sumW))
		}
	}
	variance = ag.ProdScalar(sum(sqSums), count)
	return mean, variance
}

func (m *BatchNorm) updateMovingStatistics(mean, variance mat.Tensor) {
	mu := mean.Value().Data().F64()
	v := variance.Value().Data().F64()
	for i := range m.MovingMean {
		m.MovingMean[i] = m.Momentum*m.MovingMean[i] + (1-m.Momentum)*mu[i]
		m.MovingVar[i] = m.Momentum*m.MovingVar[i] + (1-m.Momentum)*v[i]
	}
}

// Params returns the trainable parameters.
func (m *BatchNorm) Params() []*nn.Param {
	return []*nn.Param{m.Gamma, m.Beta}
}

func toFloat(xs []float64) []Float {
	out := make([]Float, len(xs))
	for i, x := range xs {
		out[i] = Float(x)
	}
	return out
}

func toFloat64(xs []Float) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}
