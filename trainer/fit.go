// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trainer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// EpochStats is the outcome of a training epoch.
type EpochStats struct {
	Epoch    int
	Loss     float64
	Steps    int
	Duration time.Duration
	// Validation is nil when no validation data is given.
	Validation *Metrics
}

// EpochCallback is called at the end of every epoch. A non-nil error stops the training.
type EpochCallback func(EpochStats) error

// Fit trains the model for the configured number of epochs, pulling
// StepsPerEpoch batches from train for each of them. When validation is not
// nil, it is evaluated at the end of every epoch.
func (t *Trainer) Fit(ctx context.Context, train, validation Batches, onEpochEnd EpochCallback) ([]EpochStats, error) {
	var history []EpochStats
	for epoch := 1; epoch <= t.Options.Epochs; epoch++ {
		start := time.Now()
		var lossSum float64
		for step := 0; step < t.Options.StepsPerEpoch; step++ {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			batch, err := train.Next()
			if err != nil {
				return history, err
			}
			loss, err := t.Step(ctx, batch)
			if err != nil {
				return history, err
			}
			lossSum += loss
			log.Debug().Msgf("epoch %d step %d/%d: loss %.5f", epoch, step+1, t.Options.StepsPerEpoch, loss)
		}

		stats := EpochStats{
			Epoch:    epoch,
			Loss:     lossSum / float64(t.Options.StepsPerEpoch),
			Steps:    t.Options.StepsPerEpoch,
			Duration: time.Since(start),
		}
		if validation != nil && t.Options.ValidationSteps > 0 {
			m, err := t.Evaluate(ctx, validation, t.Options.ValidationSteps)
			if err != nil {
				return history, err
			}
			stats.Validation = &m
		}

		event := log.Info().Int("epoch", epoch).Float64("loss", stats.Loss).Dur("duration", stats.Duration)
		if stats.Validation != nil {
			event = event.Float64("val_loss", stats.Validation.Loss).
				Float64("val_cer", stats.Validation.CER).
				Float64("val_accuracy", stats.Validation.Accuracy)
		}
		event.Msg("epoch completed")

		history = append(history, stats)
		if onEpochEnd != nil {
			if err := onEpochEnd(stats); err != nil {
				return history, err
			}
		}
	}
	return history, nil
}
