package problem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/integrate/quad"
)

func TestSolutionVanishesOnDirichletBoundary(t *testing.T) {
	samples := []float64{0, 0.13, 0.5, 0.71, 1}
	for _, s := range samples {
		for _, r := range samples {
			assert.Zero(t, EvaluateU(0, s, r, false).U)
			assert.Zero(t, EvaluateU(1, s, r, false).U)
			assert.Zero(t, EvaluateU(s, 0, r, false).U)
			assert.Zero(t, EvaluateU(s, 1, r, false).U)
			assert.Zero(t, EvaluateU(s, r, 0, false).U)
			assert.Zero(t, EvaluateU(s, r, 1, false).U)
		}
	}
	assert.InDelta(t, math.Pow(1.0/16, 3), EvaluateU(0.5, 0.5, 0.5, false).U, 1e-15)
}

func TestPeriodicShapeIntegratesToZero(t *testing.T) {
	w := func(t float64) float64 {
		v, _, _ := Shape(t, true)
		return v
	}
	// Five point Gauss-Legendre is exact for the quartic
	assert.InDelta(t, 0, quad.Fixed(w, 0, 1, 5, nil, 0), 1e-15)

	dirichlet := func(t float64) float64 {
		v, _, _ := Shape(t, false)
		return v
	}
	assert.InDelta(t, 1.0/30, quad.Fixed(dirichlet, 0, 1, 5, nil, 0), 1e-15)
}

func TestShapeDerivatives(t *testing.T) {
	settings := &fd.Settings{Formula: fd.Central}
	for _, periodic := range []bool{false, true} {
		for _, x := range []float64{0, 0.2, 0.5, 0.8, 1} {
			_, dw, d2w := Shape(x, periodic)
			w := func(t float64) float64 {
				v, _, _ := Shape(t, periodic)
				return v
			}
			dwdt := func(t float64) float64 {
				_, d, _ := Shape(t, periodic)
				return d
			}
			assert.InDelta(t, fd.Derivative(w, x, settings), dw, 1e-8)
			assert.InDelta(t, fd.Derivative(dwdt, x, settings), d2w, 1e-8)
		}
	}
}

func TestSolutionDerivativesMatchFiniteDifference(t *testing.T) {
	points := [][3]float64{
		{0.125, 0.375, 0.625},
		{0.5, 0.5, 0.5},
		{0.9, 0.05, 0.33},
	}
	settings := &fd.Settings{Formula: fd.Central}
	for _, periodic := range []bool{false, true} {
		for _, p := range points {
			u := EvaluateU(p[0], p[1], p[2], periodic)

			grad := fd.Gradient(nil, func(v []float64) float64 {
				return EvaluateU(v[0], v[1], v[2], periodic).U
			}, p[:], settings)
			assert.InDelta(t, grad[0], u.Ux, 1e-8)
			assert.InDelta(t, grad[1], u.Uy, 1e-8)
			assert.InDelta(t, grad[2], u.Uz, 1e-8)

			// Pure second partials from the analytic first partials
			uxx := fd.Derivative(func(x float64) float64 {
				return EvaluateU(x, p[1], p[2], periodic).Ux
			}, p[0], settings)
			uyy := fd.Derivative(func(y float64) float64 {
				return EvaluateU(p[0], y, p[2], periodic).Uy
			}, p[1], settings)
			uzz := fd.Derivative(func(z float64) float64 {
				return EvaluateU(p[0], p[1], z, periodic).Uz
			}, p[2], settings)
			assert.InDelta(t, uxx, u.Uxx, 1e-8)
			assert.InDelta(t, uyy, u.Uyy, 1e-8)
			assert.InDelta(t, uzz, u.Uzz, 1e-8)
			assert.InDelta(t, uxx+uyy+uzz, u.Laplacian(), 1e-7)
		}
	}
}
