// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryName(t *testing.T) {
	name, err := repositoryName("models/org/ocr/")
	require.NoError(t, err)
	assert.Equal(t, "org/ocr", name)

	_, err = repositoryName("org/ocr")
	assert.Error(t, err)
}
