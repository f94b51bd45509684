// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"math"
	"testing"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vector(values ...Float) mat.Tensor {
	return mat.NewDense[Float](mat.WithShape(len(values)), mat.WithBacking(values))
}

func TestLSTMForward(t *testing.T) {
	m := NewLSTM(NewRand(1), LSTMConfig{InputSize: 3, OutputSize: 4})
	xs := []mat.Tensor{vector(1, 0, 0), vector(0, 1, 0), vector(0, 0, 1)}

	ys, s := m.Forward(xs, nil)
	require.Len(t, ys, 3)
	for _, y := range ys {
		assert.Equal(t, 4, y.Value().Size())
		for _, v := range y.Value().Data().F64() {
			assert.Less(t, math.Abs(v), 1.0)
		}
	}
	assert.Equal(t, ys[2].Value().Data().F64(), s.H.Value().Data().F64())
	assert.Equal(t, 4, s.C.Value().Size())
	assert.Len(t, m.Params(), 12)
}

func TestLSTMStepUsesState(t *testing.T) {
	m := NewLSTM(NewRand(1), LSTMConfig{InputSize: 2, OutputSize: 2})
	x := vector(1, 1)

	first := m.Step(x, nil)
	second := m.Step(x, first)
	assert.NotEqual(t, first.H.Value().Data().F64(), second.H.Value().Data().F64())
}

func TestBiLSTMForward(t *testing.T) {
	m := NewBiLSTM(NewRand(1), 3, 6)
	xs := []mat.Tensor{vector(1, 0, 0), vector(0, 1, 0), vector(0, 0, 1), vector(1, 1, 1)}

	ys, s := m.Forward(xs)
	require.Len(t, ys, 4)
	for _, y := range ys {
		assert.Equal(t, 6, y.Value().Size())
	}
	assert.Equal(t, 6, s.H.Value().Size())
	assert.Equal(t, 6, s.C.Value().Size())

	// the first half of the last output is the forward final state,
	// the second half of the first output is the backward final state
	h := s.H.Value().Data().F64()
	assert.InDeltaSlice(t, ys[3].Value().Data().F64()[:3], h[:3], 1e-6)
	assert.InDeltaSlice(t, ys[0].Value().Data().F64()[3:], h[3:], 1e-6)
	assert.Len(t, m.Params(), 24)
}

func TestBiLSTMBackward(t *testing.T) {
	m := NewBiLSTM(NewRand(1), 3, 6)
	xs := []mat.Tensor{vector(1, 0, 0), vector(0, 1, 0), vector(0, 0, 1)}
	for _, x := range xs {
		x.(mat.Matrix).SetRequiresGrad(true)
	}

	ys, _ := m.Forward(xs)
	ones := onesRow[Float](6)
	terms := make([]mat.Tensor, len(ys))
	for i, y := range ys {
		terms[i] = ag.Mul(ones, y)
	}
	require.NoError(t, ag.Backward(sum(terms)))

	requireGrads(t, m.Params())
	for _, x := range xs {
		require.True(t, x.HasGrad())
		assert.Equal(t, []int{3, 1}, x.Grad().Shape())
	}
}

func TestLinearForward(t *testing.T) {
	m := NewLinear(NewRand(1), 3, 5)
	ys := m.Forward(vector(1, 2, 3), vector(0, 0, 0))
	require.Len(t, ys, 2)
	assert.Equal(t, 5, ys[0].Value().Size())
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0, 0}, ys[1].Value().Data().F64(), 1e-6)
}
