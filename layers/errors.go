// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import "errors"

var (
	// ErrInvalidPooling is returned when a pooling stride differs from its window.
	ErrInvalidPooling = errors.New("invalid pooling")
	// ErrInvalidConvolution is returned for malformed convolutions, such as
	// valid convolutions with stride other than 1.
	ErrInvalidConvolution = errors.New("invalid convolution")
	// ErrShapeMismatch is returned when an input does not fit a layer.
	ErrShapeMismatch = errors.New("shape mismatch")
)
