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

var _ nn.Model = &Decoder{}

// Decoder is the recurrent layer of the decoding loop.
// It holds no state between calls.
type Decoder struct {
	nn.Module
	LSTM *layers.LSTM
}

func init() {
	gob.Register(&Decoder{})
	gob.Register(&DecoderOutput{})
}

// NewDecoder returns a new Decoder.
func NewDecoder(rng *rand.LockedRand, inputSize, units int) *Decoder {
	return &Decoder{
		LSTM: layers.NewLSTM(rng, layers.LSTMConfig{InputSize: inputSize, OutputSize: units}),
	}
}

// Step advances the decoder by one step.
func (m *Decoder) Step(x mat.Tensor, s *layers.LSTMState) *layers.LSTMState {
	return m.LSTM.Step(x, s)
}

// Params returns the trainable parameters.
func (m *Decoder) Params() []*nn.Param {
	return m.LSTM.Params()
}

var _ nn.Model = &DecoderOutput{}

// DecoderOutput projects the decoder output to the vocabulary.
type DecoderOutput struct {
	nn.Module
	Linear *layers.Linear
}

// NewDecoderOutput returns a new DecoderOutput.
func NewDecoderOutput(rng *rand.LockedRand, units, vocabSize int) *DecoderOutput {
	return &DecoderOutput{
		Linear: layers.NewLinear(rng, units, vocabSize),
	}
}

// Forward returns the unnormalized scores of the vocabulary and their
// probability distribution.
func (m *DecoderOutput) Forward(h mat.Tensor) (logits, probs mat.Tensor) {
	logits = m.Linear.Forward(h)[0]
	return logits, ag.Softmax(logits)
}

// Params returns the trainable parameters.
func (m *DecoderOutput) Params() []*nn.Param {
	return m.Linear.Params()
}
