// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"math"
	"sort"

	"github.com/nlpodyssey/attentionocr/layers"
	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/tokenizer"
	"github.com/rs/zerolog/log"
)

// hypothesis is a partial transcription kept by the beam search.
type hypothesis struct {
	sequence []int
	score    float64 // sum of the negative log probabilities
	state    *layers.LSTMState
	phase    Phase
}

func (h hypothesis) lastTokenID() int {
	if len(h.sequence) == 0 {
		return tokenizer.DefaultControlTokensIDs.StartTokenID
	}
	return h.sequence[len(h.sequence)-1]
}

type candidate struct {
	parent  int
	tokenID int
	score   float64
	state   *layers.LSTMState
}

// beamSearch keeps the BeamSize best hypotheses at every step and returns
// the best completed one, ranked by mean negative log probability.
func (d *Decoder) beamSearch(ctx context.Context, input ocrmodel.EncoderOutput) (*Result, error) {
	ids := tokenizer.DefaultControlTokensIDs
	beams := []hypothesis{{state: input.State, phase: AwaitingFirstToken}}
	var finished []hypothesis

	for step := 0; step < d.opts.MaxLen && len(beams) > 0; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var candidates []candidate
		for i, h := range beams {
			out := d.model.Step(input, h.lastTokenID(), h.state)
			probs := out.Probs.Value().Data().F64()
			for _, id := range topIndices(probs, d.opts.BeamSize, ids.PadTokenID, ids.StartTokenID) {
				if id == ids.EndTokenID && step < d.opts.MinLen {
					continue
				}
				candidates = append(candidates, candidate{
					parent:  i,
					tokenID: id,
					score:   h.score - math.Log(probs[id]),
					state:   out.State,
				})
			}
		}
		sort.SliceStable(candidates, func(a, b int) bool {
			return candidates[a].score < candidates[b].score
		})

		next := make([]hypothesis, 0, d.opts.BeamSize)
		for _, c := range candidates {
			if len(next)+len(finished) >= d.opts.BeamSize && len(next) > 0 {
				break
			}
			parent := beams[c.parent]
			seq := make([]int, len(parent.sequence), len(parent.sequence)+1)
			copy(seq, parent.sequence)
			h := hypothesis{
				sequence: append(seq, c.tokenID),
				score:    c.score,
				state:    c.state,
				phase:    Decoding,
			}
			if c.tokenID == ids.EndTokenID || len(h.sequence) >= d.opts.MaxLen {
				h.phase = Done
				finished = append(finished, h)
				continue
			}
			next = append(next, h)
		}
		if len(finished) >= d.opts.BeamSize {
			break
		}
		beams = next
	}
	finished = append(finished, beams...)

	best := finished[0]
	for _, h := range finished[1:] {
		if meanScore(h) < meanScore(best) {
			best = h
		}
	}
	log.Trace().Msgf("beam search: %d hypotheses, best score %f", len(finished), best.score)
	return &Result{
		Sequence: d.removeEndTokenID(best.sequence),
		Score:    best.score,
	}, nil
}

func meanScore(h hypothesis) float64 {
	if len(h.sequence) == 0 {
		return math.Inf(1)
	}
	return h.score / float64(len(h.sequence))
}

// topIndices returns the indices of the k highest values, skipping the excluded ones.
func topIndices(values []float64, k int, excluded ...int) []int {
	skip := make(map[int]struct{}, len(excluded))
	for _, e := range excluded {
		skip[e] = struct{}{}
	}
	indices := make([]int, 0, len(values))
	for i := range values {
		if _, ok := skip[i]; !ok {
			indices = append(indices, i)
		}
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return values[indices[a]] > values[indices[b]]
	})
	if len(indices) > k {
		indices = indices[:k]
	}
	return indices
}
