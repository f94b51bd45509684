// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vectorizer

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"

	_ "golang.org/x/image/bmp" // register decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// Image is a normalized image tensor, with values in [0, 1].
// Pixels are stored in height × width × channels order.
type Image struct {
	Height   int
	Width    int
	Channels int
	Pix      []float32
}

// NewImage returns a black image of the given shape.
func NewImage(height, width, channels int) Image {
	return Image{
		Height:   height,
		Width:    width,
		Channels: channels,
		Pix:      make([]float32, height*width*channels),
	}
}

// At returns the value at row y, column x, channel c.
func (im Image) At(y, x, c int) float32 {
	return im.Pix[(y*im.Width+x)*im.Channels+c]
}

// Set sets the value at row y, column x, channel c.
func (im Image) Set(y, x, c int, v float32) {
	im.Pix[(y*im.Width+x)*im.Channels+c] = v
}

// Row returns the y-th row as a channels × width row-major slice.
func (im Image) Row(y int) []float32 {
	out := make([]float32, im.Channels*im.Width)
	for x := 0; x < im.Width; x++ {
		for c := 0; c < im.Channels; c++ {
			out[c*im.Width+x] = im.At(y, x, c)
		}
	}
	return out
}

// LoadImage reads, decodes and vectorizes the image file at the given path.
func (v *Vectorizer) LoadImage(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to open image %q: %w", path, err)
	}
	defer f.Close()

	img, err := v.ReadImage(f)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read image %q: %w", path, err)
	}
	return img, nil
}

// ReadImage decodes and vectorizes an image from r.
func (v *Vectorizer) ReadImage(r io.Reader) (Image, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return v.VectorizeImage(src)
}

// VectorizeImage resizes the image to the canonical size and normalizes its pixels.
func (v *Vectorizer) VectorizeImage(src image.Image) (Image, error) {
	if src.Bounds().Empty() {
		return Image{}, fmt.Errorf("%w: empty bounds", ErrInvalidImage)
	}
	dr := image.Rect(0, 0, v.ImageWidth, v.ImageHeight)
	out := NewImage(v.ImageHeight, v.ImageWidth, v.ImageChannels)

	switch v.ImageChannels {
	case 1:
		dst := image.NewGray(dr)
		draw.BiLinear.Scale(dst, dr, src, src.Bounds(), draw.Src, nil)
		for y := 0; y < v.ImageHeight; y++ {
			for x := 0; x < v.ImageWidth; x++ {
				out.Set(y, x, 0, float32(dst.GrayAt(x, y).Y)/255)
			}
		}
	case 3:
		dst := image.NewRGBA(dr)
		draw.BiLinear.Scale(dst, dr, src, src.Bounds(), draw.Src, nil)
		for y := 0; y < v.ImageHeight; y++ {
			for x := 0; x < v.ImageWidth; x++ {
				px := color.RGBAModel.Convert(dst.At(x, y)).(color.RGBA)
				out.Set(y, x, 0, float32(px.R)/255)
				out.Set(y, x, 1, float32(px.G)/255)
				out.Set(y, x, 2, float32(px.B)/255)
			}
		}
	default:
		return Image{}, fmt.Errorf("unsupported number of channels: %d", v.ImageChannels)
	}
	return out, nil
}
