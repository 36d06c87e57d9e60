package problem

import "math"

// Diffusion coefficient inclusion: Bmin inside a sphere of radius 0.25 about
// the domain center, Bmax outside, joined by a tanh transition
const (
	BetaMin = 1.0
	BetaMax = 10.0

	BetaRadius    = 0.25
	BetaSharpness = 10.0
	BetaCenter    = 0.5 // Same on every axis
)

// Beta is the diffusion coefficient B and its gradient at a point
type Beta struct {
	B          float64
	Bx, By, Bz float64
}

// EvaluateBeta returns B(x,y,z) = c1 + c2*tanh(c3*(r-0.25)) and its analytic
// gradient, where r is the distance from the domain center.
// The gradient is zero at r == 0, where the radial direction is undefined.
func EvaluateBeta(x, y, z float64) Beta {
	const (
		c1 = (BetaMax + BetaMin) / 2
		c2 = (BetaMax - BetaMin) / 2
		c3 = BetaSharpness
	)
	dx, dy, dz := x-BetaCenter, y-BetaCenter, z-BetaCenter
	r2 := dx*dx + dy*dy + dz*dz
	r := math.Sqrt(r2)

	th := math.Tanh(c3 * (r - BetaRadius))
	beta := Beta{B: c1 + c2*th}
	if r == 0 {
		return beta
	}

	// dB/dr, then dr/dx = (x-xc)/r
	dBdr := c2 * c3 * (1 - th*th)
	beta.Bx = dBdr * dx / r
	beta.By = dBdr * dy / r
	beta.Bz = dBdr * dz / r
	return beta
}
