// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ocrmodel

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// DefaultOutputFilename is the name of the parameters file inside a model directory.
	DefaultOutputFilename = "spago_model.bin"
	// DefaultConfigFilename is the name of the configuration file inside a model directory.
	DefaultConfigFilename = "config.yaml"
)

// Save writes the configuration and the parameters of the model to dir.
func Save(m *Model, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := SaveConfig(m.Config, filepath.Join(dir, DefaultConfigFilename)); err != nil {
		return fmt.Errorf("failed to save model configuration: %w", err)
	}
	return Dump(m, filepath.Join(dir, DefaultOutputFilename))
}

// Load loads a trained model from the given directory.
func Load(dir string) (*Model, error) {
	m, err := loadFromFile(filepath.Join(dir, DefaultOutputFilename))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Dump saves the Model to a file.
// See gobEncode for further details.
func Dump(obj *Model, filename string) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to open model dump file %q for writing: %w", filename, err)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = fmt.Errorf("failed to close model dump file %q: %w", filename, e)
		}
	}()
	if err = gobEncode(obj, f); err != nil {
		return fmt.Errorf("failed to encode model dump: %w", err)
	}
	return nil
}

// gobEncode writes the model in independent chunks, so a large convolutional
// stack does not end up in a single gob value.
func gobEncode(obj *Model, w io.Writer) error {
	bw := bufio.NewWriter(w)
	encoder := gob.NewEncoder(bw)

	for _, chunk := range getChunksForGobEncoding(obj) {
		if err := encoder.Encode(chunk); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func getChunksForGobEncoding(obj *Model) []any {
	return []any{
		obj.Config,
		obj.SequenceLength,
		obj.Encoder,
		obj.Embedding,
		obj.Attention,
		obj.Decoder,
		obj.Output,
	}
}

func loadFromFile(filename string) (_ *Model, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return gobDecoding(f)
}

func gobDecoding(r io.Reader) (*Model, error) {
	obj := &Model{}
	decoder := gob.NewDecoder(bufio.NewReader(r))

	targets := []any{
		&obj.Config,
		&obj.SequenceLength,
		&obj.Encoder,
		&obj.Embedding,
		&obj.Attention,
		&obj.Decoder,
		&obj.Output,
	}
	for _, t := range targets {
		if err := decoder.Decode(t); err != nil {
			return nil, fmt.Errorf("failed to decode model dump: %w", err)
		}
	}
	if err := obj.Config.Validate(); err != nil {
		return nil, err
	}
	return obj, nil
}
