// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"encoding/gob"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
)

var _ nn.Model = &Linear{}

// Linear is a fully connected layer: y = W·x + b.
type Linear struct {
	nn.Module
	W *nn.Param
	B *nn.Param
}

func init() {
	gob.Register(&Linear{})
}

// NewLinear returns a new Linear layer.
func NewLinear(rng *rand.LockedRand, in, out int) *Linear {
	return &Linear{
		W: xavierParam(out, in, 1, rng),
		B: vectorParam(out, 0),
	}
}

// Forward performs the forward step for each input and returns the result.
func (m *Linear) Forward(xs ...mat.Tensor) []mat.Tensor {
	out := make([]mat.Tensor, len(xs))
	for i, x := range xs {
		out[i] = ag.Add(ag.Mul(m.W, x), m.B)
	}
	return out
}

// Params returns the trainable parameters.
func (m *Linear) Params() []*nn.Param {
	return []*nn.Param{m.W, m.B}
}
