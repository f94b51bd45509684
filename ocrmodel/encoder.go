// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocrmodel

import (
	"encoding/gob"
	"fmt"

	"github.com/nlpodyssey/attentionocr/layers"
	"github.com/nlpodyssey/attentionocr/vectorizer"
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
)

var _ nn.Model = &Encoder{}

// Encoder turns images into sequences of feature vectors, one per horizontal
// position, plus a summary state.
type Encoder struct {
	nn.Module
	CNN    *layers.CNN
	BiLSTM *layers.BiLSTM
	Config EncoderConfig
}

// EncoderConfig is the configuration of the Encoder.
type EncoderConfig struct {
	Units         int
	ImageHeight   int
	ImageChannels int
}

// EncoderOutput is the result of the encoding of a single image.
type EncoderOutput struct {
	// Sequence holds one vector per horizontal position.
	Sequence []mat.Tensor
	// Keys stacks Sequence in a positions × units matrix.
	Keys mat.Tensor
	// State is the concatenation of the final states of both directions.
	State *layers.LSTMState
}

func init() {
	gob.Register(&Encoder{})
}

// NewEncoder returns a new Encoder built on the given convolutional stack.
func NewEncoder(rng *rand.LockedRand, c EncoderConfig, specs []layers.LayerSpec) (*Encoder, error) {
	if c.Units <= 0 || c.Units%2 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrOddUnits, c.Units)
	}
	cnn, err := layers.NewCNN(rng, c.ImageChannels, specs)
	if err != nil {
		return nil, err
	}
	features, err := featureSize(cnn, c)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		CNN:    cnn,
		BiLSTM: layers.NewBiLSTM(rng, features, c.Units),
		Config: c,
	}, nil
}

// featureSize returns the number of channels the CNN hands to the BiLSTM.
// The CNN must collapse the image height to exactly 1.
func featureSize(cnn *layers.CNN, c EncoderConfig) (int, error) {
	// the width is irrelevant for height and channels; use a generous one
	s, err := cnn.OutputShape(layers.Shape{Height: c.ImageHeight, Width: 1 << 12, Channels: c.ImageChannels})
	if err != nil {
		return 0, err
	}
	if s.Height != 1 {
		return 0, fmt.Errorf("%w: the convolutional stack reduces height %d to %d, expected 1",
			layers.ErrShapeMismatch, c.ImageHeight, s.Height)
	}
	return s.Channels, nil
}

// SequenceLength returns the number of encoder positions for images of the given width.
func (e *Encoder) SequenceLength(width int) (int, error) {
	return e.CNN.OutputWidth(e.Config.ImageHeight, width)
}

// CNNShape returns the shape of the last convolutional output.
func (e *Encoder) CNNShape() layers.Shape {
	return e.CNN.LastShape()
}

// Forward encodes a batch of images of the same size.
func (e *Encoder) Forward(images []vectorizer.Image, training bool) ([]EncoderOutput, error) {
	if len(images) == 0 {
		return nil, nil
	}
	maps := make([]*layers.FeatureMap, len(images))
	for i, img := range images {
		if img.Height != e.Config.ImageHeight || img.Channels != e.Config.ImageChannels || img.Width != images[0].Width {
			return nil, fmt.Errorf("%w: image %d is %dx%dx%d", layers.ErrShapeMismatch, i, img.Height, img.Width, img.Channels)
		}
		rows := make([][]layers.Float, img.Height)
		for y := range rows {
			rows[y] = img.Row(y)
		}
		maps[i] = layers.NewFeatureMap(rows, img.Width, img.Channels)
	}

	features, err := e.CNN.Forward(maps, training)
	if err != nil {
		return nil, err
	}

	out := make([]EncoderOutput, len(features))
	for i, f := range features {
		cols, err := f.Columns()
		if err != nil {
			return nil, err
		}
		seq, state := e.BiLSTM.Forward(cols)
		out[i] = EncoderOutput{
			Sequence: seq,
			Keys:     ag.Stack(seq...),
			State:    state,
		}
	}
	return out, nil
}

// Params returns the trainable parameters.
func (e *Encoder) Params() []*nn.Param {
	return append(e.CNN.Params(), e.BiLSTM.Params()...)
}
