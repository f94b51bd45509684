// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attentionocr

import (
	"fmt"
	"os"

	"github.com/nlpodyssey/attentionocr/decoder"
	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/trainer"
	"gopkg.in/yaml.v3"
)

// Settings groups the configuration of the model, of the training and of
// the decoding, as read from a single YAML file.
type Settings struct {
	Model    ocrmodel.Config         `yaml:"model"`
	Training trainer.Options         `yaml:"training"`
	Decoding decoder.DecodingOptions `yaml:"decoding"`
}

// DefaultSettings returns the default settings.
func DefaultSettings() Settings {
	c := ocrmodel.DefaultConfig()
	return Settings{
		Model:    c,
		Training: trainer.DefaultOptions(),
		Decoding: decoder.DecodingOptions{
			MaxLen:   c.MaxTextLength + 1,
			Temp:     1,
			TopP:     1,
			BeamSize: 1,
		},
	}
}

// LoadSettings reads the settings from a YAML file. Missing values take the
// defaults. A zero decoding max length follows the model max text length.
func LoadSettings(filename string) (Settings, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Settings{}, err
	}
	s := DefaultSettings()
	s.Decoding.MaxLen = 0
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file %q: %w", filename, err)
	}
	if s.Decoding.MaxLen == 0 {
		s.Decoding.MaxLen = s.Model.MaxTextLength + 1
	}
	if err := s.Model.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.Training.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
