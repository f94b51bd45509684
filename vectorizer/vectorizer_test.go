// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vectorizer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/attentionocr/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorizer(t *testing.T, channels int) *Vectorizer {
	t.Helper()
	tk, err := tokenizer.NewCharTokenizer([]rune("abcdefghijklmnopqrstuvwxyz0123456789"))
	require.NoError(t, err)
	return New(tk, Config{
		ImageWidth:    40,
		ImageHeight:   8,
		ImageChannels: channels,
		MaxTextLength: 6,
	})
}

func TestVectorizeText(t *testing.T) {
	v := newTestVectorizer(t, 1)

	inputs, targets, err := v.VectorizeText("ab")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4, 0, 0, 0, 0}, inputs)
	assert.Equal(t, []int{3, 4, 2, 0, 0, 0, 0}, targets)
}

func TestVectorizeTextTooLong(t *testing.T) {
	v := newTestVectorizer(t, 1)

	_, _, err := v.VectorizeText("abcdefg")
	assert.ErrorIs(t, err, ErrTextTooLong)

	_, _, err = v.VectorizeText("abcdef")
	assert.NoError(t, err)
}

func TestVectorizeTextUnknownChar(t *testing.T) {
	v := newTestVectorizer(t, 1)

	_, _, err := v.VectorizeText("a-b")
	assert.ErrorIs(t, err, tokenizer.ErrUnknownChar)
}

func TestTextRoundTrip(t *testing.T) {
	v := newTestVectorizer(t, 1)

	for _, text := range []string{"", "z", "abc123", "zzzzzz"} {
		_, targets, err := v.VectorizeText(text)
		require.NoError(t, err)
		got, err := v.DecodeTokens(targets)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestVectorizeImageGray(t *testing.T) {
	v := newTestVectorizer(t, 1)

	src := image.NewGray(image.Rect(0, 0, 100, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 100; x++ {
			src.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	img, err := v.VectorizeImage(src)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Height)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 1, img.Channels)
	for _, p := range img.Pix {
		assert.InDelta(t, 1.0, p, 1e-6)
	}
}

func TestVectorizeImageRGB(t *testing.T) {
	v := newTestVectorizer(t, 3)

	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			src.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	img, err := v.VectorizeImage(src)
	require.NoError(t, err)
	assert.Len(t, img.Pix, 8*40*3)
	assert.InDelta(t, 1.0, img.At(3, 7, 0), 1e-6)
	assert.InDelta(t, 0.0, img.At(3, 7, 1), 1e-6)

	row := img.Row(2)
	assert.Len(t, row, 3*40)
	assert.InDelta(t, 1.0, row[5], 1e-6)
	assert.InDelta(t, 0.0, row[40+5], 1e-6)
}

func TestLoadImage(t *testing.T) {
	v := newTestVectorizer(t, 1)
	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 64, 16))))
	path := filepath.Join(dir, "ok.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	img, err := v.LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Width)

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0644))
	_, err = v.LoadImage(bad)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = v.LoadImage(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}
