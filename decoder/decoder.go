// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"fmt"
	"math"

	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/tokenizer"
	"github.com/rs/zerolog/log"
)

// Decoder transcribes encoded images with the configured decoding strategy.
type Decoder struct {
	model *ocrmodel.Model
	opts  DecodingOptions
}

// DecodingOptions contains the options for the transcription of an image.
type DecodingOptions struct {
	// MaxLen is the maximum number of tokens to generate, the end token included.
	MaxLen int `yaml:"max_len"`
	// MinLen is the minimum number of tokens to generate.
	MinLen int `yaml:"min_len"`
	// Temperature is the temperature used to control the randomness of the generated text.
	Temp float64 `yaml:"temperature"`
	// TopK is the number of tokens to consider when sampling the next token.
	TopK int `yaml:"top_k"`
	// TopP is the cumulative probability of the tokens to consider when sampling the next token.
	TopP float64 `yaml:"top_p"`
	// UseSampling uses sampling to generate the next token.
	UseSampling bool `yaml:"use_sampling"`
	// BeamSize enables beam search when greater than 1.
	BeamSize int `yaml:"beam_size"`
}

// DefaultDecodingOptions returns greedy decoding options for the given model.
func DefaultDecodingOptions(m *ocrmodel.Model) DecodingOptions {
	return DecodingOptions{
		MaxLen:   m.Config.MaxTextLength + 1,
		Temp:     1,
		TopP:     1,
		BeamSize: 1,
	}
}

func (o DecodingOptions) validate() error {
	if o.MaxLen <= 0 {
		return fmt.Errorf("invalid max length %d: must be positive", o.MaxLen)
	}
	if o.MinLen < 0 || o.MinLen > o.MaxLen {
		return fmt.Errorf("invalid min length %d: must be between 0 and %d", o.MinLen, o.MaxLen)
	}
	if o.BeamSize < 0 {
		return fmt.Errorf("invalid beam size %d: must be >= 0", o.BeamSize)
	}
	if o.BeamSize > 1 && o.UseSampling {
		return fmt.Errorf("beam search and sampling cannot be used together")
	}
	return nil
}

// New returns a new Decoder. Invalid options are reported here.
func New(m *ocrmodel.Model, opts DecodingOptions) (*Decoder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if _, err := OutputDiversityControl(opts.Temp, opts.TopK, opts.TopP); err != nil {
		return nil, err
	}
	return &Decoder{
		model: m,
		opts:  opts,
	}, nil
}

// Result is the transcription of a single image.
type Result struct {
	// Sequence is a list of generated tokens ids, without the end token.
	Sequence []int
	// Score is the sum of the negative log probabilities of the generated tokens.
	Score float64
}

// Decode transcribes a single encoded image.
func (d *Decoder) Decode(ctx context.Context, input ocrmodel.EncoderOutput) (*Result, error) {
	if input.Keys == nil || input.State == nil {
		return nil, fmt.Errorf("invalid input: encoder keys and state are required")
	}
	if d.opts.BeamSize > 1 {
		return d.beamSearch(ctx, input)
	}

	source, err := Sampling(d.opts)
	if err != nil {
		return nil, err
	}
	trace, err := Run(ctx, d.model, input, source, d.opts.MaxLen)
	if err != nil {
		return nil, err
	}

	var sumNegLogProbs float64
	for _, c := range trace.Choices {
		sumNegLogProbs += -math.Log(c.Prob)
	}
	return &Result{
		Sequence: d.removeEndTokenID(trace.Tokens()),
		Score:    sumNegLogProbs,
	}, nil
}

// removeEndTokenID removes the end token ID from the sequence if present.
func (d *Decoder) removeEndTokenID(sequence []int) []int {
	if len(sequence) == 0 {
		return sequence
	}
	if sequence[len(sequence)-1] == tokenizer.DefaultControlTokensIDs.EndTokenID {
		return sequence[:len(sequence)-1]
	}
	log.Trace().Msgf("Reached max length (%d)", d.opts.MaxLen)
	return sequence
}
