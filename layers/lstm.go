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

var _ nn.Model = &LSTM{}

// LSTM is a long short-term memory recurrent layer.
type LSTM struct {
	nn.Module
	WIn      *nn.Param
	WInRec   *nn.Param
	BIn      *nn.Param
	WFor     *nn.Param
	WForRec  *nn.Param
	BFor     *nn.Param
	WOut     *nn.Param
	WOutRec  *nn.Param
	BOut     *nn.Param
	WCand    *nn.Param
	WCandRec *nn.Param
	BCand    *nn.Param
	Config   LSTMConfig
}

// LSTMConfig is the configuration of an LSTM.
type LSTMConfig struct {
	InputSize  int
	OutputSize int
}

// LSTMState is the (hidden, cell) pair carried across steps.
type LSTMState struct {
	H mat.Tensor
	C mat.Tensor
}

func init() {
	gob.Register(&LSTM{})
}

// NewLSTM returns a new LSTM. The forget gate bias starts at 1.
func NewLSTM(rng *rand.LockedRand, c LSTMConfig) *LSTM {
	in, out := c.InputSize, c.OutputSize
	return &LSTM{
		WIn:      xavierParam(out, in, 1, rng),
		WInRec:   xavierParam(out, out, 1, rng),
		BIn:      vectorParam(out, 0),
		WFor:     xavierParam(out, in, 1, rng),
		WForRec:  xavierParam(out, out, 1, rng),
		BFor:     vectorParam(out, 1),
		WOut:     xavierParam(out, in, 1, rng),
		WOutRec:  xavierParam(out, out, 1, rng),
		BOut:     vectorParam(out, 0),
		WCand:    xavierParam(out, in, 1, rng),
		WCandRec: xavierParam(out, out, 1, rng),
		BCand:    vectorParam(out, 0),
		Config:   c,
	}
}

// Step performs a single step. A nil state is the zero state.
func (m *LSTM) Step(x mat.Tensor, s *LSTMState) *LSTMState {
	gate := func(w, wRec, b *nn.Param) mat.Tensor {
		y := ag.Add(ag.Mul(w, x), b)
		if s != nil {
			y = ag.Add(y, ag.Mul(wRec, s.H))
		}
		return y
	}
	inGate := ag.Sigmoid(gate(m.WIn, m.WInRec, m.BIn))
	outGate := ag.Sigmoid(gate(m.WOut, m.WOutRec, m.BOut))
	cand := ag.Tanh(gate(m.WCand, m.WCandRec, m.BCand))

	cell := ag.Prod(inGate, cand)
	if s != nil {
		forGate := ag.Sigmoid(gate(m.WFor, m.WForRec, m.BFor))
		cell = ag.Add(cell, ag.Prod(forGate, s.C))
	}
	return &LSTMState{
		H: ag.Prod(outGate, ag.Tanh(cell)),
		C: cell,
	}
}

// Forward processes the sequence starting from the given state and returns
// the output of every step and the last state.
func (m *LSTM) Forward(xs []mat.Tensor, s *LSTMState) ([]mat.Tensor, *LSTMState) {
	ys := make([]mat.Tensor, len(xs))
	for i, x := range xs {
		s = m.Step(x, s)
		ys[i] = s.H
	}
	return ys, s
}

// Params returns the trainable parameters.
func (m *LSTM) Params() []*nn.Param {
	return []*nn.Param{
		m.WIn, m.WInRec, m.BIn,
		m.WFor, m.WForRec, m.BFor,
		m.WOut, m.WOutRec, m.BOut,
		m.WCand, m.WCandRec, m.BCand,
	}
}

var _ nn.Model = &BiLSTM{}

// BiLSTM runs two independent LSTMs, left-to-right and right-to-left, each
// with half of the units.
type BiLSTM struct {
	nn.Module
	Positive *LSTM
	Negative *LSTM
}

func init() {
	gob.Register(&BiLSTM{})
}

// NewBiLSTM returns a new BiLSTM whose outputs have size units.
// units must be even.
func NewBiLSTM(rng *rand.LockedRand, inputSize, units int) *BiLSTM {
	c := LSTMConfig{InputSize: inputSize, OutputSize: units / 2}
	return &BiLSTM{
		Positive: NewLSTM(rng, c),
		Negative: NewLSTM(rng, c),
	}
}

// Forward returns, per position, the concatenation of both directions'
// outputs, and the concatenation of both final states.
func (m *BiLSTM) Forward(xs []mat.Tensor) ([]mat.Tensor, *LSTMState) {
	pos, ps := m.Positive.Forward(xs, nil)
	neg, ns := m.Negative.Forward(reverse(xs), nil)
	return concat2(pos, reverse(neg)), &LSTMState{
		H: ag.Concat(ps.H, ns.H),
		C: ag.Concat(ps.C, ns.C),
	}
}

// Params returns the trainable parameters.
func (m *BiLSTM) Params() []*nn.Param {
	return append(m.Positive.Params(), m.Negative.Params()...)
}
