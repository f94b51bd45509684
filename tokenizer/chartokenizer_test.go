// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVocabulary = "abcdefghijklmnopqrstuvwxyz0123456789"

func TestSize(t *testing.T) {
	tk, err := NewCharTokenizer([]rune(testVocabulary))
	require.NoError(t, err)
	assert.Equal(t, 39, tk.Size())
}

func TestNewCharTokenizerRejectsDuplicates(t *testing.T) {
	_, err := NewCharTokenizer([]rune("abca"))
	assert.Error(t, err)

	_, err = NewCharTokenizer(nil)
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	tk, err := NewCharTokenizer([]rune(testVocabulary))
	require.NoError(t, err)

	ids, err := tk.Tokenize("ab9")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 38}, ids)

	_, err = tk.Tokenize("aB")
	assert.ErrorIs(t, err, ErrUnknownChar)
}

func TestRoundTrip(t *testing.T) {
	tk, err := NewCharTokenizer([]rune(testVocabulary))
	require.NoError(t, err)

	for _, text := range []string{"", "a", "hello", "x0y1z2", "0123456789"} {
		ids, err := tk.Tokenize(text)
		require.NoError(t, err)
		got, err := tk.ReconstructText(ids)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestReconstructTextControlTokens(t *testing.T) {
	tk, err := NewCharTokenizer([]rune("abc"))
	require.NoError(t, err)
	c := tk.ControlTokenIDs

	got, err := tk.ReconstructText([]int{c.StartTokenID, 3, 4, c.EndTokenID, 5, c.PadTokenID})
	require.NoError(t, err)
	assert.Equal(t, "ab", got)

	_, err = tk.ReconstructText([]int{42})
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestTokenByID(t *testing.T) {
	tk, err := NewCharTokenizer([]rune("abc"))
	require.NoError(t, err)

	for id, want := range map[int]string{0: PadToken, 1: StartToken, 2: EndToken, 3: "a", 5: "c"} {
		got, err := tk.TokenByID(id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
