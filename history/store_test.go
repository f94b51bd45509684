// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/nlpodyssey/attentionocr/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) *ocrmodel.Model {
	t.Helper()
	c := ocrmodel.DefaultConfig()
	c.ImageWidth = 32
	c.Units = 4
	c.EmbeddingSize = 2
	c.BaseFilters = 1
	m, err := ocrmodel.New(c)
	require.NoError(t, err)
	return m
}

func TestStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), DefaultFilename))
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	m := newTestModel(t)
	run, err := s.StartRun("models/test", m, trainer.DefaultOptions())
	require.NoError(t, err)
	assert.NotZero(t, run.ID)

	require.NoError(t, s.RecordEpoch(run.ID, trainer.EpochStats{Epoch: 2, Loss: 1.5, Steps: 10, Duration: time.Second}))
	require.NoError(t, s.RecordEpoch(run.ID, trainer.EpochStats{
		Epoch: 1, Loss: 2.5, Steps: 10, Duration: time.Second,
		Validation: &trainer.Metrics{Loss: 3, CER: 0.5, Accuracy: 0.25, Samples: 4},
	}))
	assert.Error(t, s.RecordEpoch(run.ID, trainer.EpochStats{Epoch: 1}), "duplicated epoch")
	require.NoError(t, s.FinishRun(run.ID))
	assert.Error(t, s.FinishRun(run.ID+100))

	epochs, err := s.Epochs(run.ID)
	require.NoError(t, err)
	require.Len(t, epochs, 2)
	assert.Equal(t, 1, epochs[0].Epoch)
	require.NotNil(t, epochs[0].ValidationCER)
	assert.Equal(t, 0.5, *epochs[0].ValidationCER)
	assert.Nil(t, epochs[1].ValidationLoss)

	second, err := s.StartRun("models/other", m, trainer.DefaultOptions())
	require.NoError(t, err)

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Nil(t, runs[0].FinishedAt)
	assert.NotNil(t, runs[1].FinishedAt)
	assert.Len(t, runs[1].Epochs, 2)
	assert.Equal(t, m.NumParams(), runs[1].NumParams)
	assert.Contains(t, runs[1].Config, "image_width: 32")
}
