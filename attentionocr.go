// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attentionocr

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/nlpodyssey/attentionocr/dataset"
	"github.com/nlpodyssey/attentionocr/decoder"
	"github.com/nlpodyssey/attentionocr/history"
	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/trainer"
	"github.com/nlpodyssey/attentionocr/vectorizer"
	"github.com/rs/zerolog/log"
)

// AttentionOCR is the core struct of the library.
type AttentionOCR struct {
	Model      *ocrmodel.Model
	Vectorizer *vectorizer.Vectorizer
}

// New returns a new randomly initialized model.
func New(c ocrmodel.Config) (*AttentionOCR, error) {
	m, err := ocrmodel.New(c)
	if err != nil {
		return nil, err
	}
	log.Debug().Msgf("model created: %s parameters, %d encoder positions", humanize.Comma(int64(m.NumParams())), m.SequenceLength)
	return &AttentionOCR{
		Model:      m,
		Vectorizer: m.Vectorizer(),
	}, nil
}

// Load loads a trained model from the given directory.
func Load(modelDir string) (*AttentionOCR, error) {
	m, err := ocrmodel.Load(modelDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("error: unable to find the model file or directory '%s'. Please ensure that the model has been trained or downloaded before trying again", modelDir)
		}
		return nil, err
	}
	log.Debug().Msgf("model loaded: %s parameters", humanize.Comma(int64(m.NumParams())))
	return &AttentionOCR{
		Model:      m,
		Vectorizer: m.Vectorizer(),
	}, nil
}

// Save writes the model to the given directory.
func (a *AttentionOCR) Save(modelDir string) error {
	return ocrmodel.Save(a.Model, modelDir)
}

// FitOptions configures the training.
type FitOptions struct {
	Training trainer.Options
	// ModelDir, when set, receives a checkpoint at the end of every epoch.
	ModelDir string
	// History, when set, records the run and its epochs.
	History *history.Store
}

// Fit trains the model on the batches of train. The validation generator may be nil.
func (a *AttentionOCR) Fit(ctx context.Context, train, validation *dataset.Generator, opts FitOptions) ([]trainer.EpochStats, error) {
	tr, err := trainer.New(a.Model, opts.Training)
	if err != nil {
		return nil, err
	}

	var runID uint
	if opts.History != nil {
		run, err := opts.History.StartRun(opts.ModelDir, a.Model, opts.Training)
		if err != nil {
			return nil, err
		}
		runID = run.ID
	}

	onEpochEnd := func(stats trainer.EpochStats) error {
		if opts.History != nil {
			if err := opts.History.RecordEpoch(runID, stats); err != nil {
				return err
			}
		}
		if opts.ModelDir != "" {
			if err := a.Save(opts.ModelDir); err != nil {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}
			log.Debug().Str("dir", opts.ModelDir).Int("epoch", stats.Epoch).Msg("checkpoint saved")
		}
		return nil
	}

	var val trainer.Batches
	if validation != nil {
		val = validation
	}
	stats, err := tr.Fit(ctx, train, val, onEpochEnd)
	if err != nil {
		return stats, err
	}
	if opts.History != nil {
		if err := opts.History.FinishRun(runID); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// FitSamples trains the model on in-memory lists of samples.
// The validation samples may be empty.
func (a *AttentionOCR) FitSamples(ctx context.Context, train, validation dataset.Source, opts FitOptions) ([]trainer.EpochStats, error) {
	trainGen, err := dataset.NewGenerator(a.Vectorizer, train, dataset.GeneratorOptions{
		BatchSize: opts.Training.BatchSize,
		Shuffle:   opts.Training.Shuffle,
		Seed:      opts.Training.Seed,
	})
	if err != nil {
		return nil, err
	}
	var valGen *dataset.Generator
	if len(validation) > 0 {
		valGen, err = dataset.NewGenerator(a.Vectorizer, validation, dataset.GeneratorOptions{
			BatchSize: opts.Training.BatchSize,
		})
		if err != nil {
			return nil, err
		}
	}
	return a.Fit(ctx, trainGen, valGen, opts)
}

// Predict transcribes the images.
func (a *AttentionOCR) Predict(ctx context.Context, images []vectorizer.Image, opts decoder.DecodingOptions) ([]Prediction, error) {
	dec, err := decoder.New(a.Model, opts)
	if err != nil {
		return nil, err
	}
	encoded, err := a.Model.Encode(images, false)
	if err != nil {
		return nil, err
	}
	predictions := make([]Prediction, len(encoded))
	for i, enc := range encoded {
		res, err := dec.Decode(ctx, enc)
		if err != nil {
			return nil, err
		}
		text, err := a.Vectorizer.DecodeTokens(res.Sequence)
		if err != nil {
			return nil, err
		}
		predictions[i] = Prediction{Text: text, Score: res.Score}
	}
	return predictions, nil
}

// PredictFiles loads and transcribes the image files.
func (a *AttentionOCR) PredictFiles(ctx context.Context, paths []string, opts decoder.DecodingOptions) ([]Prediction, error) {
	images := make([]vectorizer.Image, len(paths))
	for i, p := range paths {
		img, err := a.Vectorizer.LoadImage(p)
		if err != nil {
			return nil, err
		}
		images[i] = img
	}
	predictions, err := a.Predict(ctx, images, opts)
	if err != nil {
		return nil, err
	}
	for i := range predictions {
		predictions[i].Path = paths[i]
	}
	return predictions, nil
}
