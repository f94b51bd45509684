// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/nlpodyssey/attentionocr/dataset"
	"github.com/nlpodyssey/attentionocr/decoder"
	"github.com/nlpodyssey/attentionocr/layers"
	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/tokenizer"
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/losses"
	"github.com/nlpodyssey/spago/mat"
	"github.com/rs/zerolog/log"
)

// ErrNonFiniteLoss is returned by Step when the loss is NaN or infinite.
// The parameters are left untouched.
var ErrNonFiniteLoss = errors.New("non-finite loss")

// Batches is a source of batches.
type Batches interface {
	Next() (*dataset.Batch, error)
}

// Trainer trains a Model with teacher forcing.
type Trainer struct {
	Model     *ocrmodel.Model
	Optimizer *Optimizer
	Options   Options
}

// New returns a new Trainer.
func New(m *ocrmodel.Model, opts Options) (*Trainer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{
		Model:     m,
		Optimizer: NewOptimizer(opts),
		Options:   opts,
	}, nil
}

// Step performs a training step on the batch: forward pass, backward pass
// and parameters update. It returns the mean loss over the non-pad targets.
func (t *Trainer) Step(ctx context.Context, batch *dataset.Batch) (float64, error) {
	encoded, err := t.Model.Encode(batch.Images, true)
	if err != nil {
		return 0, err
	}
	loss, err := t.loss(ctx, batch, encoded)
	if err != nil {
		return 0, err
	}
	value := scalar(loss)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value, fmt.Errorf("%w: %f", ErrNonFiniteLoss, value)
	}
	if err := ag.Backward(loss); err != nil {
		return 0, fmt.Errorf("backward pass failed: %w", err)
	}
	norm, err := t.Optimizer.Step(t.Model.Params())
	if err != nil {
		return 0, fmt.Errorf("parameters update failed: %w", err)
	}
	log.Trace().Msgf("step loss %.5f, gradient norm %.5f", value, norm)
	return value, nil
}

// loss returns the cross-entropy of the teacher-forced decoding, averaged
// over the non-pad targets of the batch.
func (t *Trainer) loss(ctx context.Context, batch *dataset.Batch, encoded []ocrmodel.EncoderOutput) (mat.Tensor, error) {
	if batch.Len() == 0 || len(encoded) != batch.Len() {
		return nil, fmt.Errorf("empty batch")
	}

	pad := tokenizer.DefaultControlTokensIDs.PadTokenID
	var terms []mat.Tensor
	for i, enc := range encoded {
		inputs, targets := batch.DecoderInputs[i], batch.Targets[i]
		if len(inputs) != len(targets) {
			return nil, fmt.Errorf("%w: %d decoder inputs, %d targets", layers.ErrShapeMismatch, len(inputs), len(targets))
		}
		trace, err := decoder.Run(ctx, t.Model, enc, decoder.TeacherForcing(inputs), len(inputs))
		if err != nil {
			return nil, err
		}
		for step, target := range targets {
			if target == pad {
				continue
			}
			terms = append(terms, losses.CrossEntropy(trace.Outputs[step].Logits, target))
		}
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("batch has no targets")
	}
	total := terms[0]
	for _, term := range terms[1:] {
		total = ag.Add(total, term)
	}
	return ag.ProdScalar(total, mat.Scalar(layers.Float(1/float64(len(terms))))), nil
}

func scalar(x mat.Tensor) float64 {
	return x.Value().Data().F64()[0]
}
