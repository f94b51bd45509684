// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"encoding/gob"
	"fmt"
	"time"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
)

var _ Layer = &Dropout{}

// Dropout zeroes activations with probability Rate during training and
// scales the kept ones by 1 / (1 - Rate). It is the identity at inference time.
type Dropout struct {
	Rate float64
	rng  *rand.LockedRand
}

func init() {
	gob.Register(&Dropout{})
}

// NewDropout returns a new Dropout layer.
func NewDropout(rate float64, rng *rand.LockedRand) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("invalid dropout rate %f: must be in [0, 1)", rate)
	}
	return &Dropout{Rate: rate, rng: rng}, nil
}

// OutputShape returns the input shape.
func (m *Dropout) OutputShape(in Shape) (Shape, error) {
	return in, nil
}

// Forward applies the dropout mask when training.
func (m *Dropout) Forward(xs []*FeatureMap, training bool) ([]*FeatureMap, error) {
	if !training || m.Rate == 0 {
		return xs, nil
	}
	if m.rng == nil {
		m.rng = rand.NewLockedRand(uint64(time.Now().UnixNano()))
	}
	keep := Float(1 / (1 - m.Rate))
	ys := make([]*FeatureMap, len(xs))
	for n, x := range xs {
		y := &FeatureMap{Rows: make([]mat.Tensor, x.Height()), Width: x.Width, Channels: x.Channels}
		for i, row := range x.Rows {
			mask := make([]Float, x.Channels*x.Width)
			for j := range mask {
				if m.rng.Float64() >= m.Rate {
					mask[j] = keep
				}
			}
			y.Rows[i] = ag.Prod(row, constant[Float](x.Channels, x.Width, mask))
		}
		ys[n] = y
	}
	return ys, nil
}

// Params returns nil: dropout has no trainable parameters.
func (m *Dropout) Params() []*nn.Param {
	return nil
}
