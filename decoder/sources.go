// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"math"

	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/tokenizer"
	"github.com/nlpodyssey/spago/mat"
)

type teacherForcing struct {
	inputs []int
}

// TeacherForcing feeds the ground truth decoder inputs (starting with the
// start token) and stops after the last one.
func TeacherForcing(inputs []int) TokenSource {
	return &teacherForcing{inputs: inputs}
}

func (s *teacherForcing) Next(step int, _ ocrmodel.StepOutput) (Choice, error) {
	next := step + 1
	if next >= len(s.inputs) {
		return Choice{TokenID: tokenizer.DefaultControlTokensIDs.EndTokenID, Stop: true}, nil
	}
	return Choice{TokenID: s.inputs[next]}, nil
}

// selecting chooses the next token from the model output.
type selecting struct {
	control    OutputDiversityControlFunc
	selection  OutputSelectionFunc
	minLen     int
	endTokenID int
}

// Greedy feeds back the most probable token and stops at the end token.
func Greedy() TokenSource {
	return &selecting{
		selection:  GreedyDecoding(),
		endTokenID: tokenizer.DefaultControlTokensIDs.EndTokenID,
	}
}

// Sampling feeds back a token drawn according to opts and stops at the end token.
func Sampling(opts DecodingOptions) (TokenSource, error) {
	control, err := OutputDiversityControl(opts.Temp, opts.TopK, opts.TopP)
	if err != nil {
		return nil, err
	}
	return &selecting{
		control:    control,
		selection:  OutputSelection(opts.UseSampling),
		minLen:     opts.MinLen,
		endTokenID: tokenizer.DefaultControlTokensIDs.EndTokenID,
	}, nil
}

func (s *selecting) Next(step int, out ocrmodel.StepOutput) (Choice, error) {
	logits := s.adjustLogits(out.Logits.Value().(mat.Matrix), step)
	if s.control != nil {
		var err error
		if logits, err = s.control(logits); err != nil {
			return Choice{}, err
		}
	}
	id, prob, err := s.selection(logits)
	if err != nil {
		return Choice{}, err
	}
	return Choice{TokenID: id, Prob: prob, Stop: id == s.endTokenID}, nil
}

// adjustLogits prevents the end token while the sequence is shorter than minLen.
// The pad and start tokens are never valid outputs.
func (s *selecting) adjustLogits(logits mat.Matrix, sequenceLength int) mat.Matrix {
	ids := tokenizer.DefaultControlTokensIDs
	cols := logits.Shape()[1]
	return logits.Apply(func(r, c int, v float64) float64 {
		switch r*cols + c {
		case ids.PadTokenID, ids.StartTokenID:
			return math.Inf(-1)
		case s.endTokenID:
			if sequenceLength < s.minLen {
				return math.Inf(-1)
			}
		}
		return v
	})
}
