// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocrmodel

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	// ErrOddUnits is returned when the encoder units cannot be split between
	// the two directions of the bidirectional LSTM.
	ErrOddUnits = errors.New("encoder units must be even")
	// ErrInvalidConfig is returned for any other configuration error.
	ErrInvalidConfig = errors.New("invalid configuration")
)

const DefaultVocabulary = "abcdefghijklmnopqrstuvwxyz0123456789"

// Config is the configuration of the model. It is fixed at construction time:
// changing it invalidates the trained parameters.
type Config struct {
	// Vocabulary is the ordered set of characters the model can read.
	Vocabulary string `yaml:"vocabulary"`
	// ImageWidth and ImageHeight are the canonical input size, in pixels.
	ImageWidth  int `yaml:"image_width"`
	ImageHeight int `yaml:"image_height"`
	// ImageChannels is 1 for grayscale or 3 for RGB inputs.
	ImageChannels int `yaml:"image_channels"`
	// MaxTextLength is the maximum number of characters of a transcription.
	MaxTextLength int `yaml:"max_text_length"`
	// Units is the size of the encoder output (split between the two
	// directions, so it must be even) and of the decoder state.
	Units int `yaml:"units"`
	// EmbeddingSize is the size of the decoder token embeddings.
	EmbeddingSize int `yaml:"embedding_size"`
	// BaseFilters scales the filters of the convolutional stack.
	BaseFilters int     `yaml:"base_filters"`
	Dropout     float64 `yaml:"dropout"`
	// Seed drives the parameter initialization.
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Vocabulary:    DefaultVocabulary,
		ImageWidth:    320,
		ImageHeight:   32,
		ImageChannels: 1,
		MaxTextLength: 20,
		Units:         256,
		EmbeddingSize: 32,
		BaseFilters:   64,
		Dropout:       0.5,
		Seed:          42,
	}
}

// Validate checks the configuration values that do not depend on the
// network layout. New also checks that the convolutional stack fits the
// image size.
func (c Config) Validate() error {
	if c.Units <= 0 {
		return fmt.Errorf("%w: units must be positive, got %d", ErrInvalidConfig, c.Units)
	}
	if c.Units%2 != 0 {
		return fmt.Errorf("%w: got %d", ErrOddUnits, c.Units)
	}
	if c.Vocabulary == "" {
		return fmt.Errorf("%w: empty vocabulary", ErrInvalidConfig)
	}
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("%w: image size must be positive, got %dx%d", ErrInvalidConfig, c.ImageWidth, c.ImageHeight)
	}
	if c.ImageChannels != 1 && c.ImageChannels != 3 {
		return fmt.Errorf("%w: image channels must be 1 or 3, got %d", ErrInvalidConfig, c.ImageChannels)
	}
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("%w: max text length must be positive, got %d", ErrInvalidConfig, c.MaxTextLength)
	}
	if c.EmbeddingSize <= 0 || c.BaseFilters <= 0 {
		return fmt.Errorf("%w: embedding size and base filters must be positive", ErrInvalidConfig)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout must be in [0, 1), got %f", ErrInvalidConfig, c.Dropout)
	}
	return nil
}

// LoadConfig reads a YAML configuration file. Missing values take the defaults.
func LoadConfig(filePath string) (Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse configuration file %q: %w", filePath, err)
	}
	return config, nil
}

// SaveConfig writes the configuration as YAML.
func SaveConfig(c Config, filePath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
