// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dataset

import (
	"errors"
	"fmt"

	"github.com/nlpodyssey/attentionocr/vectorizer"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/rs/zerolog/log"
)

// ErrNoValidSamples is returned when a whole pass over the samples does not
// produce any valid example.
var ErrNoValidSamples = errors.New("no valid samples")

// Batch is a set of vectorized examples.
type Batch struct {
	Images []vectorizer.Image
	// DecoderInputs are [<sos>, chars..., <pad>...].
	DecoderInputs [][]int
	// Targets are [chars..., <eos>, <pad>...].
	Targets [][]int
	Texts   []string
	Paths   []string
}

// Len returns the number of examples.
func (b *Batch) Len() int {
	return len(b.Images)
}

func (b *Batch) add(img vectorizer.Image, inputs, targets []int, s Sample) {
	b.Images = append(b.Images, img)
	b.DecoderInputs = append(b.DecoderInputs, inputs)
	b.Targets = append(b.Targets, targets)
	b.Texts = append(b.Texts, s.Text)
	b.Paths = append(b.Paths, s.Path)
}

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	BatchSize int
	// Shuffle reorders the samples at the beginning of every epoch.
	Shuffle bool
	Seed    uint64
}

// Generator yields batches of vectorized samples, wrapping around the source
// indefinitely. It is not safe for concurrent use.
type Generator struct {
	vectorizer *vectorizer.Vectorizer
	samples    Source
	order      []int
	opts       GeneratorOptions
	rng        *rand.LockedRand
	pos        int
	epoch      int
}

// NewGenerator returns a new Generator over the given samples.
func NewGenerator(v *vectorizer.Vectorizer, samples Source, opts GeneratorOptions) (*Generator, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty source", ErrNoValidSamples)
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d: must be positive", opts.BatchSize)
	}
	g := &Generator{
		vectorizer: v,
		samples:    samples,
		opts:       opts,
	}
	g.Reset()
	return g, nil
}

// Reset restarts the generator from the first sample of the first epoch.
func (g *Generator) Reset() {
	g.rng = rand.NewLockedRand(g.opts.Seed)
	g.order = make([]int, len(g.samples))
	for i := range g.order {
		g.order[i] = i
	}
	g.pos = 0
	g.epoch = 0
	g.shuffle()
}

func (g *Generator) shuffle() {
	if !g.opts.Shuffle {
		return
	}
	g.rng.Shuffle(len(g.order), func(i, j int) {
		g.order[i], g.order[j] = g.order[j], g.order[i]
	})
}

// Epoch returns the number of complete passes over the samples.
func (g *Generator) Epoch() int {
	return g.epoch
}

// Len returns the number of samples.
func (g *Generator) Len() int {
	return len(g.samples)
}

// BatchSize returns the number of examples of every batch.
func (g *Generator) BatchSize() int {
	return g.opts.BatchSize
}

// Next returns the next batch. Invalid samples are logged and skipped.
func (g *Generator) Next() (*Batch, error) {
	batch := &Batch{}
	failures := 0
	for batch.Len() < g.opts.BatchSize {
		s := g.samples[g.order[g.pos]]
		g.advance()

		img, inputs, targets, err := g.vectorize(s)
		if err != nil {
			log.Warn().Err(err).Str("path", s.Path).Msg("skipping sample")
			failures++
			if failures >= len(g.samples) {
				return nil, ErrNoValidSamples
			}
			continue
		}
		failures = 0
		batch.add(img, inputs, targets, s)
	}
	return batch, nil
}

func (g *Generator) advance() {
	g.pos++
	if g.pos < len(g.order) {
		return
	}
	g.pos = 0
	g.epoch++
	g.shuffle()
	log.Trace().Msgf("generator wrapped around, epoch %d", g.epoch)
}

func (g *Generator) vectorize(s Sample) (vectorizer.Image, []int, []int, error) {
	inputs, targets, err := g.vectorizer.VectorizeText(s.Text)
	if err != nil {
		return vectorizer.Image{}, nil, nil, err
	}
	var img vectorizer.Image
	if s.Image != nil {
		img, err = g.vectorizer.VectorizeImage(s.Image)
	} else {
		img, err = g.vectorizer.LoadImage(s.Path)
	}
	if err != nil {
		return vectorizer.Image{}, nil, nil, err
	}
	return img, inputs, targets, nil
}
