// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"math"
	"testing"

	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/vectorizer"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) (*ocrmodel.Model, ocrmodel.EncoderOutput) {
	t.Helper()
	c := ocrmodel.DefaultConfig()
	c.Vocabulary = "abc"
	c.ImageWidth = 32
	c.MaxTextLength = 5
	c.Units = 4
	c.EmbeddingSize = 3
	c.BaseFilters = 1
	m, err := ocrmodel.New(c)
	require.NoError(t, err)

	rng := rand.NewLockedRand(1)
	img := vectorizer.NewImage(c.ImageHeight, c.ImageWidth, 1)
	for i := range img.Pix {
		img.Pix[i] = rng.Float32()
	}
	enc, err := m.Encode([]vectorizer.Image{img}, false)
	require.NoError(t, err)
	return m, enc[0]
}

func TestRunTeacherForcing(t *testing.T) {
	m, enc := newTestModel(t)
	inputs := []int{1, 3, 4, 5, 0, 0}

	trace, err := Run(context.Background(), m, enc, TeacherForcing(inputs), 100)
	require.NoError(t, err)
	assert.Len(t, trace.Outputs, len(inputs))
	assert.Equal(t, []int{3, 4, 5, 0, 0, 2}, trace.Tokens())
	assert.True(t, trace.Choices[len(inputs)-1].Stop)
}

func TestRunStopsAtMaxSteps(t *testing.T) {
	m, enc := newTestModel(t)
	for _, maxSteps := range []int{1, 2, 4} {
		trace, err := Run(context.Background(), m, enc, TeacherForcing(make([]int, 10)), maxSteps)
		require.NoError(t, err)
		assert.Len(t, trace.Outputs, maxSteps)
	}

	_, err := Run(context.Background(), m, enc, Greedy(), 0)
	assert.Error(t, err)
}

func TestRunCanceled(t *testing.T) {
	m, enc := newTestModel(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, m, enc, Greedy(), 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAdvance(t *testing.T) {
	r := &run{phase: AwaitingFirstToken}
	r.advance(nil, Choice{TokenID: 3}, false)
	assert.Equal(t, Decoding, r.phase)
	assert.Equal(t, 3, r.tokenID)

	r.advance(nil, Choice{TokenID: 2, Stop: true}, false)
	assert.Equal(t, Done, r.phase)

	r.advance(nil, Choice{TokenID: 4}, false)
	assert.Equal(t, Done, r.phase, "done is terminal")
	assert.Equal(t, 2, r.tokenID)
}

func TestDecodeTerminatesWithinMaxLen(t *testing.T) {
	m, enc := newTestModel(t)
	cases := []DecodingOptions{
		{MaxLen: 6, Temp: 1, TopP: 1},
		{MaxLen: 3, MinLen: 3, Temp: 1, TopP: 1},
		{MaxLen: 6, Temp: 0.7, TopK: 2, TopP: 0.9, UseSampling: true},
		{MaxLen: 4, Temp: 1, TopP: 1, BeamSize: 3},
		{MaxLen: 4, MinLen: 4, Temp: 1, TopP: 1, BeamSize: 2},
	}
	for _, opts := range cases {
		d, err := New(m, opts)
		require.NoError(t, err)
		res, err := d.Decode(context.Background(), enc)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Sequence), opts.MaxLen, "%+v", opts)
		assert.False(t, math.IsNaN(res.Score))
		for _, id := range res.Sequence {
			assert.GreaterOrEqual(t, id, 2, "control tokens other than the end token are never produced")
			assert.Less(t, id, m.VocabularySize())
		}
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	m, _ := newTestModel(t)
	for _, opts := range []DecodingOptions{
		{MaxLen: 0, Temp: 1, TopP: 1},
		{MaxLen: 3, MinLen: 4, Temp: 1, TopP: 1},
		{MaxLen: 3, Temp: 2, TopP: 1},
		{MaxLen: 3, Temp: 1, TopP: 1, BeamSize: 2, UseSampling: true},
	} {
		_, err := New(m, opts)
		assert.Error(t, err, "%+v", opts)
	}
}

func TestDefaultDecodingOptions(t *testing.T) {
	m, _ := newTestModel(t)
	opts := DefaultDecodingOptions(m)
	assert.Equal(t, 6, opts.MaxLen)
	_, err := New(m, opts)
	assert.NoError(t, err)
}
