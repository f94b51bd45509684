// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/float"
)

// The feature maps are kept as lists of 2D matrices, so broadcasting and
// column selection are expressed as products with constant matrices.

// constant returns a matrix without gradient.
func constant[T float.DType](rows, cols int, data []T) mat.Tensor {
	return mat.NewDense[T](mat.WithShape(rows, cols), mat.WithBacking(data))
}

func filled[T float.DType](size int, v T) []T {
	out := make([]T, size)
	for i := range out {
		out[i] = v
	}
	return out
}

// onesRow returns a 1 × n matrix of ones.
func onesRow[T float.DType](n int) mat.Tensor {
	return constant[T](1, n, filled[T](n, 1))
}

// onesCol returns an n × 1 matrix of ones.
func onesCol[T float.DType](n int) mat.Tensor {
	return constant[T](n, 1, filled[T](n, 1))
}

// broadcast repeats a column vector over n columns.
func broadcast(v, onesRow mat.Tensor) mat.Tensor {
	return ag.Mul(v, onesRow)
}

// selection returns the in × out matrix S such that x·S picks, for every
// output column j, the input column index(j). Negative indices leave the
// column empty.
func selection[T float.DType](in, out int, index func(j int) int) mat.Tensor {
	data := make([]T, in*out)
	for j := 0; j < out; j++ {
		if i := index(j); i >= 0 && i < in {
			data[i*out+j] = 1
		}
	}
	return constant[T](in, out, data)
}

// columns splits a rows × cols matrix in its column vectors.
func columns[T float.DType](x mat.Tensor, cols int) []mat.Tensor {
	out := make([]mat.Tensor, cols)
	for j := range out {
		e := make([]T, cols)
		e[j] = 1
		out[j] = ag.Mul(x, constant[T](cols, 1, e))
	}
	return out
}

func sum(xs []mat.Tensor) mat.Tensor {
	y := xs[0]
	for _, x := range xs[1:] {
		y = ag.Add(y, x)
	}
	return y
}

func reverse(xs []mat.Tensor) []mat.Tensor {
	out := make([]mat.Tensor, len(xs))
	for i, x := range xs {
		out[len(xs)-1-i] = x
	}
	return out
}

func concat2(a, b []mat.Tensor) []mat.Tensor {
	out := make([]mat.Tensor, len(a))
	for i := range a {
		out[i] = ag.Concat(a[i], b[i])
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
