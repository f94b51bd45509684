// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXavierParam(t *testing.T) {
	p := xavierParam(4, 6, 1, NewRand(7))
	assert.Equal(t, []int{4, 6}, p.Shape())
	assert.True(t, p.RequiresGrad())

	bound := math.Sqrt(6.0 / 10)
	values := p.Value().Data().F64()
	for _, v := range values {
		assert.LessOrEqual(t, math.Abs(v), bound)
	}

	assert.Equal(t, values, xavierParam(4, 6, 1, NewRand(7)).Value().Data().F64())
	assert.NotEqual(t, values, xavierParam(4, 6, 1, NewRand(8)).Value().Data().F64())

	half := xavierParam(4, 6, 0.5, NewRand(7)).Value().Data().F64()
	assert.InDeltaSlice(t, values, scaled(half, 2), 1e-6)
}

func TestVectorParam(t *testing.T) {
	p := vectorParam(3, 1)
	assert.Equal(t, []int{3, 1}, p.Shape())
	assert.Equal(t, []float64{1, 1, 1}, p.Value().Data().F64())
}

func scaled(xs []float64, k float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x * k
	}
	return out
}
