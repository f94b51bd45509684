// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"github.com/nlpodyssey/spago/initializers"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
)

// xavierParam returns a rows × cols parameter initialized with
// initializers.XavierUniform.
func xavierParam(rows, cols int, gain float64, rng *rand.LockedRand) *nn.Param {
	m := mat.NewDense[Float](mat.WithShape(rows, cols))
	return nn.NewParam(initializers.XavierUniform(m, gain, rng))
}

// vectorParam returns a parameter vector filled with v.
func vectorParam(size int, v float64) *nn.Param {
	m := mat.NewDense[Float](mat.WithShape(size))
	return nn.NewParam(initializers.Constant(m, v))
}

// NewRand returns a deterministic random source for parameter initialization.
func NewRand(seed uint64) *rand.LockedRand {
	return rand.NewLockedRand(seed)
}
