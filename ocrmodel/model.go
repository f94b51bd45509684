// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocrmodel

import (
	"encoding/gob"
	"fmt"

	"github.com/nlpodyssey/attentionocr/layers"
	"github.com/nlpodyssey/attentionocr/tokenizer"
	"github.com/nlpodyssey/attentionocr/vectorizer"
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/initializers"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
)

var _ nn.Model = &Model{}

// Model is the attention OCR network: the Encoder feeds a decoding loop made
// of Attention, Decoder and DecoderOutput.
type Model struct {
	nn.Module
	Encoder   *Encoder
	Embedding *nn.Param
	Attention *Attention
	Decoder   *Decoder
	Output    *DecoderOutput
	Config    Config
	// SequenceLength is the number of encoder positions for ImageWidth.
	SequenceLength int
}

// StepOutput is the result of a single decoding step.
type StepOutput struct {
	Logits mat.Tensor
	Probs  mat.Tensor
	// Weights is the attention distribution over the encoder positions.
	Weights mat.Tensor
	State   *layers.LSTMState
}

func init() {
	gob.Register(&Model{})
}

// New returns a new randomly initialized Model.
// Configuration errors are reported here, before any training.
func New(c Config) (*Model, error) {
	return NewWithLayers(c, layers.DefaultLayers(c.BaseFilters, c.Dropout))
}

// NewWithLayers returns a new Model using a custom convolutional stack.
func NewWithLayers(c Config, specs []layers.LayerSpec) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	tk, err := tokenizer.NewCharTokenizer([]rune(c.Vocabulary))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	rng := rand.NewLockedRand(c.Seed)

	encoder, err := NewEncoder(rng, EncoderConfig{
		Units:         c.Units,
		ImageHeight:   c.ImageHeight,
		ImageChannels: c.ImageChannels,
	}, specs)
	if err != nil {
		return nil, err
	}
	seqLen, err := encoder.SequenceLength(c.ImageWidth)
	if err != nil {
		return nil, fmt.Errorf("image width %d does not fit the convolutional stack: %w", c.ImageWidth, err)
	}

	vocabSize := tk.Size()
	return &Model{
		Encoder:        encoder,
		Embedding:      nn.NewParam(embeddingMatrix(rng, c.EmbeddingSize, vocabSize)),
		Attention:      NewAttention(rng, c.Units, c.Units),
		Decoder:        NewDecoder(rng, c.EmbeddingSize+c.Units, c.Units),
		Output:         NewDecoderOutput(rng, c.Units, vocabSize),
		Config:         c,
		SequenceLength: seqLen,
	}, nil
}

func embeddingMatrix(rng *rand.LockedRand, size, vocabSize int) mat.Matrix {
	m := mat.NewDense[layers.Float](mat.WithShape(size, vocabSize))
	return initializers.Uniform(m, -0.05, 0.05, rng)
}

// Tokenizer returns the tokenizer of the model vocabulary.
func (m *Model) Tokenizer() *tokenizer.CharTokenizer {
	tk, err := tokenizer.NewCharTokenizer([]rune(m.Config.Vocabulary))
	if err != nil {
		panic(err) // the vocabulary was validated by New
	}
	return tk
}

// Vectorizer returns a vectorizer consistent with the model configuration.
func (m *Model) Vectorizer() *vectorizer.Vectorizer {
	return vectorizer.New(m.Tokenizer(), vectorizer.Config{
		ImageWidth:    m.Config.ImageWidth,
		ImageHeight:   m.Config.ImageHeight,
		ImageChannels: m.Config.ImageChannels,
		MaxTextLength: m.Config.MaxTextLength,
	})
}

// VocabularySize returns the size of the output distribution.
func (m *Model) VocabularySize() int {
	return len([]rune(m.Config.Vocabulary)) + 3
}

// Encode runs the encoder on a batch of images.
func (m *Model) Encode(images []vectorizer.Image, training bool) ([]EncoderOutput, error) {
	out, err := m.Encoder.Forward(images, training)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 && len(out[0].Sequence) != m.SequenceLength && images[0].Width == m.Config.ImageWidth {
		return nil, fmt.Errorf("%w: encoder produced %d positions, expected %d",
			layers.ErrShapeMismatch, len(out[0].Sequence), m.SequenceLength)
	}
	return out, nil
}

// Embed returns the embedding of a token.
func (m *Model) Embed(tokenID int) mat.Tensor {
	oneHot := make([]layers.Float, m.VocabularySize())
	oneHot[tokenID] = 1
	return ag.Mul(m.Embedding, mat.NewDense[layers.Float](mat.WithShape(len(oneHot)), mat.WithBacking(oneHot)))
}

// Step performs one decoding step: it attends the encoder output with the
// current decoder state, feeds the embedding of the previous token together
// with the context to the decoder, and projects the new state to the vocabulary.
func (m *Model) Step(enc EncoderOutput, prevTokenID int, s *layers.LSTMState) StepOutput {
	contexts, weights := m.Attention.Forward(enc.Keys, s.H)
	x := ag.Concat(m.Embed(prevTokenID), contexts[0])
	next := m.Decoder.Step(x, s)
	logits, probs := m.Output.Forward(next.H)
	return StepOutput{
		Logits:  logits,
		Probs:   probs,
		Weights: weights[0],
		State:   next,
	}
}

// Params returns all the trainable parameters.
func (m *Model) Params() []*nn.Param {
	ps := m.Encoder.Params()
	ps = append(ps, m.Embedding)
	ps = append(ps, m.Attention.Params()...)
	ps = append(ps, m.Decoder.Params()...)
	return append(ps, m.Output.Params()...)
}

// NumParams returns the number of scalar parameters.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.Params() {
		n += p.Value().Size()
	}
	return n
}
