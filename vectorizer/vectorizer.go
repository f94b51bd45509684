// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vectorizer

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nlpodyssey/attentionocr/tokenizer"
)

var (
	// ErrTextTooLong is returned when a transcription exceeds the maximum text length.
	ErrTextTooLong = errors.New("text too long")
	// ErrInvalidImage is returned when an image cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")
)

// Config is the configuration of a Vectorizer.
type Config struct {
	ImageWidth    int
	ImageHeight   int
	ImageChannels int
	MaxTextLength int
}

// Vectorizer maps images and transcriptions to model inputs and back.
type Vectorizer struct {
	Tokenizer *tokenizer.CharTokenizer
	Config
}

// New returns a new Vectorizer.
func New(tk *tokenizer.CharTokenizer, c Config) *Vectorizer {
	return &Vectorizer{
		Tokenizer: tk,
		Config:    c,
	}
}

// SequenceLength is the length of every decoder input and target sequence:
// the maximum text length plus one control token.
func (v *Vectorizer) SequenceLength() int {
	return v.MaxTextLength + 1
}

// VocabularySize returns the size of the output distribution.
func (v *Vectorizer) VocabularySize() int {
	return v.Tokenizer.Size()
}

// VectorizeText returns the decoder input sequence, which starts with the start
// token, and the target sequence, which ends with the end token. Both are padded
// to SequenceLength.
func (v *Vectorizer) VectorizeText(text string) (inputs, targets []int, err error) {
	if n := utf8.RuneCountInString(text); n > v.MaxTextLength {
		return nil, nil, fmt.Errorf("%w: %q has %d characters, max %d", ErrTextTooLong, text, n, v.MaxTextLength)
	}
	ids, err := v.Tokenizer.Tokenize(text)
	if err != nil {
		return nil, nil, err
	}
	c := v.Tokenizer.ControlTokenIDs
	inputs = v.padded(append([]int{c.StartTokenID}, ids...))
	targets = v.padded(append(ids, c.EndTokenID))
	return inputs, targets, nil
}

func (v *Vectorizer) padded(ids []int) []int {
	out := make([]int, v.SequenceLength())
	pad := v.Tokenizer.ControlTokenIDs.PadTokenID
	for i := range out {
		out[i] = pad
	}
	copy(out, ids)
	return out
}

// DecodeTokens converts predicted token IDs back to text.
func (v *Vectorizer) DecodeTokens(ids []int) (string, error) {
	return v.Tokenizer.ReconstructText(ids)
}
