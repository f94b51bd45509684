// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocrmodel

import (
	"encoding/gob"

	"github.com/nlpodyssey/attentionocr/layers"
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
)

var _ nn.Model = &Attention{}

// Attention is a dot-product attention over the encoder positions, with a
// learned projection of the query.
type Attention struct {
	nn.Module
	Query *layers.Linear
}

func init() {
	gob.Register(&Attention{})
}

// NewAttention returns a new Attention projecting queries of size queryUnits
// to the size of the encoder features.
func NewAttention(rng *rand.LockedRand, queryUnits, keyUnits int) *Attention {
	return &Attention{
		Query: layers.NewLinear(rng, queryUnits, keyUnits),
	}
}

// Forward returns, for each query, the context vector and the attention
// weights over the positions of keys (a positions × units matrix).
func (m *Attention) Forward(keys mat.Tensor, queries ...mat.Tensor) (contexts, weights []mat.Tensor) {
	contexts = make([]mat.Tensor, len(queries))
	weights = make([]mat.Tensor, len(queries))
	values := ag.T(keys)
	for i, q := range m.Query.Forward(queries...) {
		weights[i] = ag.Softmax(ag.Mul(keys, q))
		contexts[i] = ag.Mul(values, weights[i])
	}
	return contexts, weights
}

// Params returns the trainable parameters.
func (m *Attention) Params() []*nn.Param {
	return m.Query.Params()
}
