// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trainer

import "fmt"

// Options configures the training.
type Options struct {
	LearningRate float64 `yaml:"learning_rate"`
	Beta1        float64 `yaml:"beta1"`
	Beta2        float64 `yaml:"beta2"`
	Epsilon      float64 `yaml:"epsilon"`
	// ClipNorm rescales the gradients whose global norm exceeds it. Zero disables clipping.
	ClipNorm  float64 `yaml:"clip_norm"`
	BatchSize int     `yaml:"batch_size"`
	Epochs    int     `yaml:"epochs"`
	// StepsPerEpoch is the number of batches of an epoch.
	StepsPerEpoch int `yaml:"steps_per_epoch"`
	// ValidationSteps is the number of validation batches evaluated at the
	// end of every epoch.
	ValidationSteps int    `yaml:"validation_steps"`
	Shuffle         bool   `yaml:"shuffle"`
	Seed            uint64 `yaml:"seed"`
}

// DefaultOptions returns the default training options.
func DefaultOptions() Options {
	return Options{
		LearningRate:    0.001,
		Beta1:           0.9,
		Beta2:           0.999,
		Epsilon:         1e-7,
		ClipNorm:        5,
		BatchSize:       64,
		Epochs:          20,
		StepsPerEpoch:   100,
		ValidationSteps: 10,
		Shuffle:         true,
		Seed:            42,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.LearningRate <= 0 {
		return fmt.Errorf("invalid learning rate %f: must be positive", o.LearningRate)
	}
	if o.Beta1 < 0 || o.Beta1 >= 1 || o.Beta2 < 0 || o.Beta2 >= 1 {
		return fmt.Errorf("invalid betas (%f, %f): must be in [0, 1)", o.Beta1, o.Beta2)
	}
	if o.Epsilon <= 0 {
		return fmt.Errorf("invalid epsilon %g: must be positive", o.Epsilon)
	}
	if o.ClipNorm < 0 {
		return fmt.Errorf("invalid clip norm %f: must be >= 0", o.ClipNorm)
	}
	if o.BatchSize <= 0 || o.Epochs <= 0 || o.StepsPerEpoch <= 0 {
		return fmt.Errorf("batch size, epochs and steps per epoch must be positive")
	}
	if o.ValidationSteps < 0 {
		return fmt.Errorf("invalid validation steps %d: must be >= 0", o.ValidationSteps)
	}
	return nil
}
