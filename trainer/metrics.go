// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trainer

import (
	"context"
	"fmt"

	"github.com/agnivade/levenshtein"
	"github.com/nlpodyssey/attentionocr/decoder"
)

// Metrics summarizes the evaluation of a model.
type Metrics struct {
	// Loss is the mean teacher-forced cross-entropy per batch.
	Loss float64
	// CER is the character error rate of the greedy transcriptions: the
	// edit distance divided by the length of the expected texts.
	CER float64
	// Accuracy is the fraction of exactly matching transcriptions.
	Accuracy float64
	Samples  int
}

func (m Metrics) String() string {
	return fmt.Sprintf("loss %.4f, cer %.4f, accuracy %.4f (%d samples)", m.Loss, m.CER, m.Accuracy, m.Samples)
}

// Evaluate computes the metrics over steps batches, without updating the parameters.
func (t *Trainer) Evaluate(ctx context.Context, batches Batches, steps int) (Metrics, error) {
	if steps <= 0 {
		return Metrics{}, fmt.Errorf("invalid evaluation steps %d: must be positive", steps)
	}
	dec, err := decoder.New(t.Model, decoder.DefaultDecodingOptions(t.Model))
	if err != nil {
		return Metrics{}, err
	}
	tk := t.Model.Tokenizer()

	var lossSum float64
	var edits, chars, exact, samples int
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return Metrics{}, err
		}
		batch, err := batches.Next()
		if err != nil {
			return Metrics{}, err
		}
		encoded, err := t.Model.Encode(batch.Images, false)
		if err != nil {
			return Metrics{}, err
		}
		loss, err := t.loss(ctx, batch, encoded)
		if err != nil {
			return Metrics{}, err
		}
		lossSum += scalar(loss)

		for i, enc := range encoded {
			res, err := dec.Decode(ctx, enc)
			if err != nil {
				return Metrics{}, err
			}
			predicted, err := tk.ReconstructText(res.Sequence)
			if err != nil {
				return Metrics{}, err
			}
			expected := batch.Texts[i]
			edits += levenshtein.ComputeDistance(predicted, expected)
			chars += len([]rune(expected))
			if predicted == expected {
				exact++
			}
			samples++
		}
	}

	m := Metrics{
		Loss:     lossSum / float64(steps),
		Accuracy: float64(exact) / float64(samples),
		Samples:  samples,
	}
	if chars > 0 {
		m.CER = float64(edits) / float64(chars)
	}
	return m, nil
}
