// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"testing"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/rand"
	"github.com/nlpodyssey/spago/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomMaps(rng *rand.LockedRand, n, height, width, channels int) []*FeatureMap {
	maps := make([]*FeatureMap, n)
	for i := range maps {
		rows := make([][]Float, height)
		for y := range rows {
			rows[y] = make([]Float, channels*width)
			for j := range rows[y] {
				rows[y][j] = Float(rng.Float64())
			}
		}
		maps[i] = NewFeatureMap(rows, width, channels)
	}
	return maps
}

// trainable marks the rows of the feature maps as requiring gradients.
func trainable(maps ...*FeatureMap) []*FeatureMap {
	for _, f := range maps {
		for _, row := range f.Rows {
			row.(mat.Matrix).SetRequiresGrad(true)
		}
	}
	return maps
}

// total sums every element of the feature maps as ones(1×C)·Y·ones(W×1),
// so that each gradient keeps the shape of its operand.
func total(maps []*FeatureMap) mat.Tensor {
	var terms []mat.Tensor
	for _, f := range maps {
		left, right := onesRow[Float](f.Channels), onesCol[Float](f.Width)
		for _, row := range f.Rows {
			terms = append(terms, ag.Mul(ag.Mul(left, row), right))
		}
	}
	return sum(terms)
}

func requireGrads(t *testing.T, params []*nn.Param) {
	t.Helper()
	for i, p := range params {
		require.True(t, p.HasGrad(), "param %d", i)
		assert.Equal(t, p.Shape(), p.Grad().Shape(), "param %d", i)
	}
}

func grad(x mat.Tensor) []float64 {
	return x.Grad().Data().F64()
}

func TestOutputWidthMatchesForward(t *testing.T) {
	rng := NewRand(1)
	cnn, err := NewCNN(rng, 1, DefaultLayers(2, 0.5))
	require.NoError(t, err)

	for _, width := range []int{8, 17, 33, 50} {
		expected, err := cnn.OutputWidth(32, width)
		require.NoError(t, err)

		for _, training := range []bool{false, true} {
			out, err := cnn.Forward(randomMaps(rng, 2, 32, width, 1), training)
			require.NoError(t, err)
			require.Len(t, out, 2)
			assert.Equal(t, 1, out[0].Height())
			assert.Equal(t, expected, out[0].Width, "width %d", width)
			assert.Equal(t, Shape{Height: 1, Width: expected, Channels: 16}, cnn.LastShape())

			cols, err := out[1].Columns()
			require.NoError(t, err)
			assert.Len(t, cols, expected)
			assert.Equal(t, 16, cols[0].Value().Size())
		}
	}
}

func TestDefaultOutputWidth(t *testing.T) {
	cnn, err := NewCNN(NewRand(1), 1, DefaultLayers(1, 0.5))
	require.NoError(t, err)

	w, err := cnn.OutputWidth(32, 320)
	require.NoError(t, err)
	assert.Equal(t, 79, w)

	s, err := cnn.OutputShape(Shape{Height: 32, Width: 320, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Height)
	assert.Equal(t, 8, s.Channels)

	s, err = cnn.OutputShape(Shape{Height: 64, Width: 320, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Height)

	_, err = cnn.OutputWidth(32, 1)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = cnn.OutputShape(Shape{Height: 32, Width: 320, Channels: 3})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDefaultLayersAreFresh(t *testing.T) {
	a := DefaultLayers(64, 0.5)
	b := DefaultLayers(64, 0.5)
	a[0].Conv.Filters = 1
	assert.Equal(t, 64, b[0].Conv.Filters)

	cnn1, err := NewCNN(NewRand(1), 1, a)
	require.NoError(t, err)
	cnn2, err := NewCNN(NewRand(1), 1, b)
	require.NoError(t, err)
	assert.NotSame(t, cnn1.Layers[0], cnn2.Layers[0])
}

func TestNewCNNRejectsOverlappingPooling(t *testing.T) {
	specs := []LayerSpec{
		Conv(2, 3, 3, Same, ReLU),
		{Kind: MaxPoolLayer, Pool: PoolSpec{PoolHeight: 2, PoolWidth: 2, StrideY: 1, StrideX: 1, Padding: Valid}},
	}
	_, err := NewCNN(NewRand(1), 1, specs)
	assert.ErrorIs(t, err, ErrInvalidPooling)
}

func TestNewCNNRejectsStridedValidConvolution(t *testing.T) {
	spec := Conv(2, 2, 2, Valid, ReLU)
	spec.Conv.StrideX = 2
	_, err := NewCNN(NewRand(1), 1, []LayerSpec{spec})
	assert.ErrorIs(t, err, ErrInvalidConvolution)
}

func TestConv2DValues(t *testing.T) {
	conv, err := NewConv2D(NewRand(1), ConvSpec{Filters: 1, KernelHeight: 2, KernelWidth: 2, Padding: Valid}, 1)
	require.NoError(t, err)
	for i := range conv.Kernels {
		conv.Kernels[i] = nn.NewParam(mat.NewDense[Float](mat.WithShape(1, 1), mat.WithBacking([]Float{1})))
	}
	conv.Bias = nn.NewParam(mat.NewDense[Float](mat.WithShape(1), mat.WithBacking([]Float{0.5})))

	in := NewFeatureMap([][]Float{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, 3, 1)
	out, err := conv.Forward([]*FeatureMap{in}, false)
	require.NoError(t, err)
	require.Equal(t, Shape{Height: 2, Width: 2, Channels: 1}, out[0].Shape())
	assert.InDeltaSlice(t, []float64{12.5, 16.5}, out[0].Rows[0].Value().Data().F64(), 1e-5)
	assert.InDeltaSlice(t, []float64{24.5, 28.5}, out[0].Rows[1].Value().Data().F64(), 1e-5)
}

func TestConv2DSamePadding(t *testing.T) {
	conv, err := NewConv2D(NewRand(1), ConvSpec{Filters: 1, KernelHeight: 3, KernelWidth: 3, Padding: Same}, 1)
	require.NoError(t, err)
	for i := range conv.Kernels {
		conv.Kernels[i] = nn.NewParam(mat.NewDense[Float](mat.WithShape(1, 1), mat.WithBacking([]Float{1})))
	}

	in := NewFeatureMap([][]Float{{1, 1, 1}, {1, 1, 1}}, 3, 1)
	out, err := conv.Forward([]*FeatureMap{in}, false)
	require.NoError(t, err)
	require.Equal(t, Shape{Height: 2, Width: 3, Channels: 1}, out[0].Shape())
	assert.InDeltaSlice(t, []float64{4, 6, 4}, out[0].Rows[0].Value().Data().F64(), 1e-5)
}

func TestMaxPool2D(t *testing.T) {
	pool, err := NewMaxPool2D(PoolSpec{PoolHeight: 2, PoolWidth: 2, Padding: Valid})
	require.NoError(t, err)

	in := NewFeatureMap([][]Float{{1, 5, 2, 0, 9}, {3, 4, 8, 1, 9}, {7, 7, 7, 7, 7}}, 5, 1)
	out, err := pool.Forward([]*FeatureMap{in}, false)
	require.NoError(t, err)
	require.Equal(t, Shape{Height: 1, Width: 2, Channels: 1}, out[0].Shape())
	assert.InDeltaSlice(t, []float64{5, 8}, out[0].Rows[0].Value().Data().F64(), 1e-6)

	same, err := NewMaxPool2D(PoolSpec{PoolHeight: 2, PoolWidth: 2, Padding: Same})
	require.NoError(t, err)
	out, err = same.Forward([]*FeatureMap{in}, false)
	require.NoError(t, err)
	require.Equal(t, Shape{Height: 2, Width: 3, Channels: 1}, out[0].Shape())
	assert.InDeltaSlice(t, []float64{5, 8, 9}, out[0].Rows[0].Value().Data().F64(), 1e-6)
	assert.InDeltaSlice(t, []float64{7, 7, 7}, out[0].Rows[1].Value().Data().F64(), 1e-6)
}

func TestBatchNormTraining(t *testing.T) {
	bn := NewBatchNorm(2)
	rng := NewRand(3)
	maps := randomMaps(rng, 3, 2, 4, 2)

	out, err := bn.Forward(maps, true)
	require.NoError(t, err)

	for c := 0; c < 2; c++ {
		var sum float64
		for _, m := range out {
			for _, row := range m.Rows {
				data := row.Value().Data().F64()
				for x := 0; x < 4; x++ {
					sum += data[c*4+x]
				}
			}
		}
		assert.InDelta(t, 0, sum/24, 1e-4)
	}
	assert.NotEqual(t, 0.0, bn.MovingMean[0])

	_, err = bn.Forward(randomMaps(rng, 1, 2, 4, 3), false)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDropout(t *testing.T) {
	d, err := NewDropout(0.5, NewRand(1))
	require.NoError(t, err)
	maps := randomMaps(NewRand(2), 1, 1, 8, 1)

	out, err := d.Forward(maps, false)
	require.NoError(t, err)
	assert.Equal(t, maps, out)

	out, err = d.Forward(maps, true)
	require.NoError(t, err)
	in := maps[0].Rows[0].Value().Data().F64()
	for i, v := range out[0].Rows[0].Value().Data().F64() {
		if v != 0 {
			assert.InDelta(t, 2*in[i], v, 1e-5)
		}
	}

	_, err = NewDropout(1, nil)
	assert.Error(t, err)
}

func TestConv2DBackward(t *testing.T) {
	conv, err := NewConv2D(NewRand(1), ConvSpec{Filters: 1, KernelHeight: 2, KernelWidth: 2, Padding: Valid}, 1)
	require.NoError(t, err)

	in := trainable(NewFeatureMap([][]Float{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, 3, 1))
	out, err := conv.Forward(in, true)
	require.NoError(t, err)
	require.NoError(t, ag.Backward(total(out)))

	requireGrads(t, conv.Params())
	assert.InDeltaSlice(t, []float64{4}, grad(conv.Bias), 1e-5)
	for i, expected := range []float64{12, 16, 24, 28} {
		assert.InDeltaSlice(t, []float64{expected}, grad(conv.Kernels[i]), 1e-5, "kernel %d", i)
	}
	for _, row := range in[0].Rows {
		assert.True(t, row.HasGrad())
	}
}

func TestConv2DSamePaddingBackward(t *testing.T) {
	conv, err := NewConv2D(NewRand(1), ConvSpec{Filters: 2, KernelHeight: 3, KernelWidth: 3, Padding: Same, Activation: ReLU}, 3)
	require.NoError(t, err)

	in := trainable(randomMaps(NewRand(2), 2, 3, 4, 3)...)
	out, err := conv.Forward(in, true)
	require.NoError(t, err)
	require.NoError(t, ag.Backward(total(out)))

	requireGrads(t, conv.Params())
	for _, f := range in {
		for _, row := range f.Rows {
			require.True(t, row.HasGrad())
			assert.Equal(t, []int{3, 4}, row.Grad().Shape())
		}
	}
}

func TestMaxPool2DBackward(t *testing.T) {
	t.Run("same padding routes the gradient to the first maximum", func(t *testing.T) {
		pool, err := NewMaxPool2D(PoolSpec{PoolHeight: 2, PoolWidth: 2, Padding: Same})
		require.NoError(t, err)

		in := trainable(NewFeatureMap([][]Float{{5, 5, 2, 0, 9}, {3, 4, 8, 1, 2}}, 5, 1))
		out, err := pool.Forward(in, true)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{5, 8, 9}, out[0].Rows[0].Value().Data().F64(), 1e-6)

		require.NoError(t, ag.Backward(total(out)))
		assert.InDeltaSlice(t, []float64{1, 0, 0, 0, 1}, grad(in[0].Rows[0]), 1e-6)
		assert.InDeltaSlice(t, []float64{0, 0, 1, 0, 0}, grad(in[0].Rows[1]), 1e-6)
	})

	t.Run("valid padding leaves dropped rows without gradient", func(t *testing.T) {
		pool, err := NewMaxPool2D(PoolSpec{PoolHeight: 2, PoolWidth: 2, Padding: Valid})
		require.NoError(t, err)

		in := trainable(NewFeatureMap([][]Float{{1, 5, 2, 0}, {3, 4, 8, 1}, {7, 7, 7, 7}}, 4, 1))
		out, err := pool.Forward(in, true)
		require.NoError(t, err)
		require.NoError(t, ag.Backward(total(out)))

		assert.InDeltaSlice(t, []float64{0, 1, 0, 0}, grad(in[0].Rows[0]), 1e-6)
		assert.InDeltaSlice(t, []float64{0, 0, 1, 0}, grad(in[0].Rows[1]), 1e-6)
		assert.False(t, in[0].Rows[2].HasGrad())
	})

	t.Run("channels are pooled independently", func(t *testing.T) {
		pool, err := NewMaxPool2D(PoolSpec{PoolHeight: 1, PoolWidth: 2, Padding: Valid})
		require.NoError(t, err)

		in := trainable(NewFeatureMap([][]Float{{1, 3, 4, 2}}, 2, 2))
		out, err := pool.Forward(in, true)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{3, 4}, out[0].Rows[0].Value().Data().F64(), 1e-6)

		require.NoError(t, ag.Backward(total(out)))
		assert.InDeltaSlice(t, []float64{0, 1, 1, 0}, grad(in[0].Rows[0]), 1e-6)
	})
}

func TestBatchNormBackward(t *testing.T) {
	bn := NewBatchNorm(2)
	in := trainable(randomMaps(NewRand(3), 3, 2, 4, 2)...)

	out, err := bn.Forward(in, true)
	require.NoError(t, err)
	require.NoError(t, ag.Backward(total(out)))

	requireGrads(t, bn.Params())
	assert.InDeltaSlice(t, []float64{24, 24}, grad(bn.Beta), 1e-4)
	assert.InDeltaSlice(t, []float64{0, 0}, grad(bn.Gamma), 1e-3)

	// the sum of a normalized batch does not depend on its inputs
	for _, f := range in {
		for _, row := range f.Rows {
			assert.InDeltaSlice(t, make([]float64, 8), grad(row), 1e-3)
		}
	}
}

func TestCNNBackward(t *testing.T) {
	cnn, err := NewCNN(NewRand(1), 1, DefaultLayers(1, 0.5))
	require.NoError(t, err)

	in := trainable(randomMaps(NewRand(2), 2, 32, 20, 1)...)
	out, err := cnn.Forward(in, true)
	require.NoError(t, err)
	require.NoError(t, ag.Backward(total(out)))

	requireGrads(t, cnn.Params())
	assert.True(t, in[0].Rows[0].HasGrad())
}
