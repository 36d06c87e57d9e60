package problem

// PeriodicShift makes the integral of the shape function over [0,1] vanish:
// ∫(t⁴ - 2t³ + t²) dt = 1/5 - 1/2 + 1/3 = 1/30
const PeriodicShift = -1.0 / 30.0

// Solution is the manufactured solution U with its first and pure second partials
type Solution struct {
	U             float64
	Ux, Uy, Uz    float64
	Uxx, Uyy, Uzz float64
}

// Laplacian returns Uxx + Uyy + Uzz
func (s Solution) Laplacian() float64 {
	return s.Uxx + s.Uyy + s.Uzz
}

// Shape evaluates w(t) = t⁴ - 2t³ + t² + shift and its first two derivatives.
// The shift is zero for Dirichlet domains (w(0) = w(1) = 0) and PeriodicShift
// for periodic ones.
func Shape(t float64, periodic bool) (w, dw, d2w float64) {
	shift := 0.0
	if periodic {
		shift = PeriodicShift
	}
	t2 := t * t
	w = t2*t2 - 2*t2*t + t2 + shift
	dw = 4*t2*t - 6*t2 + 2*t
	d2w = 12*t2 - 12*t + 2
	return
}

// EvaluateU returns U(x,y,z) = w(x)w(y)w(z) and its partials. U is C² and,
// for non periodic domains, vanishes on every face of the unit cube.
func EvaluateU(x, y, z float64, periodic bool) Solution {
	X, Xx, Xxx := Shape(x, periodic)
	Y, Yy, Yyy := Shape(y, periodic)
	Z, Zz, Zzz := Shape(z, periodic)
	return Solution{
		U:   X * Y * Z,
		Ux:  Xx * Y * Z,
		Uy:  X * Yy * Z,
		Uz:  X * Y * Zz,
		Uxx: Xxx * Y * Z,
		Uyy: X * Yyy * Z,
		Uzz: X * Y * Zzz,
	}
}
