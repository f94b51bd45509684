// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trainer

import (
	"math"

	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/nn"
	"github.com/nlpodyssey/spago/optimizers"
	"github.com/nlpodyssey/spago/optimizers/adam"
	"github.com/nlpodyssey/spago/optimizers/gradclipper"
)

// Optimizer updates the parameters with Adam. The gradients whose global
// L2 norm exceeds the clip norm are rescaled first.
type Optimizer struct {
	strategy *adam.Adam
	clipper  *gradclipper.NormClipper
}

// NewOptimizer returns a new Optimizer. The options must be valid.
func NewOptimizer(o Options) *Optimizer {
	opt := &Optimizer{
		strategy: adam.New(adam.NewConfig(o.LearningRate, o.Beta1, o.Beta2, o.Epsilon)),
	}
	if o.ClipNorm > 0 {
		opt.clipper = &gradclipper.NormClipper{MaxNorm: o.ClipNorm, NormType: 2}
	}
	return opt
}

// Step applies the accumulated gradients to the parameters, then zeroes
// them. Parameters without gradients are left untouched. It returns the
// global gradient norm before clipping.
func (o *Optimizer) Step(params []*nn.Param) (float64, error) {
	var (
		active []*nn.Param
		sq     float64
	)
	for _, p := range params {
		if !p.HasGrad() {
			continue
		}
		g := p.Grad().(mat.Matrix)
		sq += g.Prod(g).Sum().Item().F64()
		active = append(active, p)
	}
	if len(active) == 0 {
		return 0, nil
	}
	if o.clipper != nil {
		o.clipper.ClipGradients(nn.StreamParams(active))
	}
	if err := optimizers.New(nn.StreamParams(active), o.strategy).Optimize(); err != nil {
		return 0, err
	}
	o.strategy.IncExample()
	return math.Sqrt(sq), nil
}
