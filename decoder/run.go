// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/attentionocr/layers"
	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/tokenizer"
	"github.com/rs/zerolog/log"
)

// Phase is the state of a decoding run.
type Phase int

const (
	// AwaitingFirstToken is the phase before the first step: the decoder
	// state is the encoder summary and the input is the start token.
	AwaitingFirstToken Phase = iota
	// Decoding is the phase in which every step feeds the token chosen
	// after the previous one.
	Decoding
	// Done is terminal.
	Done
)

func (p Phase) String() string {
	switch p {
	case AwaitingFirstToken:
		return "awaiting-first-token"
	case Decoding:
		return "decoding"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Choice is the decision of a TokenSource after a step.
type Choice struct {
	// TokenID is the token fed to the next step.
	TokenID int
	// Prob is the probability the model assigned to TokenID.
	Prob float64
	// Stop ends the decoding after this step.
	Stop bool
}

// TokenSource decides which token the decoder consumes next.
// It is selected once per run.
type TokenSource interface {
	Next(step int, out ocrmodel.StepOutput) (Choice, error)
}

// Trace records a decoding run.
type Trace struct {
	// Outputs holds the output of every step.
	Outputs []ocrmodel.StepOutput
	// Choices holds the decision taken after every step.
	Choices []Choice
}

// Tokens returns the chosen tokens.
func (t *Trace) Tokens() []int {
	ids := make([]int, len(t.Choices))
	for i, c := range t.Choices {
		ids[i] = c.TokenID
	}
	return ids
}

// run holds the mutable part of a decoding: the phase, the decoder state
// and the next input token.
type run struct {
	phase   Phase
	state   *layers.LSTMState
	tokenID int
}

// Run is the decode loop shared by training and inference: the source
// alone distinguishes teacher forcing from free running. It performs at
// most maxSteps steps.
func Run(ctx context.Context, m *ocrmodel.Model, enc ocrmodel.EncoderOutput, source TokenSource, maxSteps int) (*Trace, error) {
	if maxSteps <= 0 {
		return nil, fmt.Errorf("invalid max steps %d: must be positive", maxSteps)
	}
	r := &run{
		phase:   AwaitingFirstToken,
		state:   enc.State,
		tokenID: tokenizer.DefaultControlTokensIDs.StartTokenID,
	}
	trace := &Trace{}
	for r.phase != Done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := m.Step(enc, r.tokenID, r.state)
		choice, err := source.Next(len(trace.Outputs), out)
		if err != nil {
			return nil, err
		}
		trace.Outputs = append(trace.Outputs, out)
		trace.Choices = append(trace.Choices, choice)
		r.advance(out.State, choice, len(trace.Outputs) >= maxSteps)
	}
	log.Trace().Msgf("decoding done after %d steps", len(trace.Outputs))
	return trace, nil
}

func (r *run) advance(state *layers.LSTMState, c Choice, exhausted bool) {
	if r.phase == Done {
		return
	}
	r.state = state
	r.tokenID = c.TokenID
	if c.Stop || exhausted {
		r.phase = Done
		return
	}
	r.phase = Decoding
}
