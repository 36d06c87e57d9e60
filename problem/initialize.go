package problem

import (
	"errors"
	"fmt"

	"github.com/notargets/FVProblem/level"
	"golang.org/x/sync/errgroup"
)

// ErrPopulateFailedElsewhere is returned on ranks whose own populate step
// succeeded while another rank's failed
var ErrPopulateFailedElsewhere = errors.New("populate failed on another rank")

// Populator writes alpha, beta_i/j/k, u_exact and f for every cell of every
// local box, zero filling ghost cells
type Populator interface {
	Populate(lvl *level.Level, h, a, b float64, cfg Config) error
}

// Initializer sets up the manufactured problem a·A·U - b·∇·(B∇U) = F on a level
type Initializer struct {
	Config    Config
	Reporter  Reporter
	Populator Populator // nil selects HostPopulator
}

// NewInitializer creates an Initializer running on the host
func NewInitializer(cfg Config, reporter Reporter) *Initializer {
	return &Initializer{
		Config:    cfg,
		Reporter:  reporter,
		Populator: HostPopulator{},
	}
}

// InitializeProblem fills the problem fields of lvl for mesh spacing h,
// reaction coefficient a and diffusion coefficient b, then enforces the
// solvability condition of periodic domains. It is collective: every rank
// must call it. The only error source is the populator; inconsistent
// periodic data is reported, never returned.
func (in *Initializer) InitializeProblem(lvl *level.Level, h, a, b float64) error {
	lvl.H = h

	populator := in.Populator
	if populator == nil {
		populator = HostPopulator{}
	}
	// Every rank learns the outcome before the next collective, so a failure
	// on one rank cannot leave the others waiting in a reduction
	err := populator.Populate(lvl, h, a, b, in.Config)
	if lvl.AnyRank(err != nil) {
		if err == nil {
			err = ErrPopulateFailedElsewhere
		}
		return fmt.Errorf("failed to populate problem fields: %w", err)
	}

	alpha := lvl.ResolveAlpha(func() bool {
		return lvl.Dot(level.Alpha, level.Alpha) == 0
	})

	if !lvl.IsPeriodic() {
		return nil
	}

	reporter := in.reporter()
	meanF := lvl.Mean(level.F)
	if meanF != 0 {
		reporter.Warnf("periodic boundary conditions, but f does not sum to zero: mean(f)=%e", meanF)
	}

	// Poisson: u is only determined up to a constant, by convention it sums to zero
	if a == 0 || alpha == level.AlphaZero {
		meanU := lvl.Mean(level.UExact)
		reporter.Infof("average value of u = %20.12e, shifting u to ensure it sums to zero", meanU)
		lvl.Shift(level.UExact, -meanU)
		lvl.Shift(level.F, -meanF)
	}
	return nil
}

func (in *Initializer) reporter() Reporter {
	if in.Reporter == nil {
		return RankReporter(nil, 0)
	}
	return in.Reporter
}

// HostPopulator evaluates the problem on the CPU. Boxes run in sequence and
// the k planes of a box run as a bounded parallel batch.
type HostPopulator struct{}

func (HostPopulator) Populate(lvl *level.Level, h, a, b float64, cfg Config) error {
	periodic := lvl.IsPeriodic()
	for _, box := range lvl.Boxes {
		for _, f := range level.Fields() {
			box.Zero(f)
		}

		var g errgroup.Group
		g.SetLimit(cfg.workers())
		for k := 0; k < box.Dim; k++ {
			g.Go(func() error {
				populatePlane(box, k, h, a, b, cfg.Coefficients, periodic)
				return nil
			})
		}
		// Plane tasks never fail
		_ = g.Wait()
	}
	return nil
}

// populatePlane fills the interior cells of plane k. Cells are independent;
// each writes only its own slot.
func populatePlane(box *level.Box, k int, h, a, b float64, mode CoefficientMode, periodic bool) {
	alpha := box.Field(level.Alpha)
	betaI := box.Field(level.BetaI)
	betaJ := box.Field(level.BetaJ)
	betaK := box.Field(level.BetaK)
	uExact := box.Field(level.UExact)
	f := box.Field(level.F)

	// TODO: integrate over the cell with quadrature; the cell center value only
	// approximates the finite volume cell average
	z := h * (float64(k+box.Low.K) + 0.5)
	for j := 0; j < box.Dim; j++ {
		y := h * (float64(j+box.Low.J) + 0.5)
		for i := 0; i < box.Dim; i++ {
			x := h * (float64(i+box.Low.I) + 0.5)
			c := evaluateCell(x, y, z, h, a, b, mode, periodic)

			ijk := box.Index(i, j, k)
			alpha[ijk] = c.A
			betaI[ijk] = c.Bi
			betaJ[ijk] = c.Bj
			betaK[ijk] = c.Bk
			uExact[ijk] = c.U
			f[ijk] = c.F
		}
	}
}

// cell holds the values written to one cell
type cell struct {
	A, Bi, Bj, Bk, U, F float64
}

// evaluateCell computes the coefficients, exact solution and forcing at the
// cell centered at (x,y,z)
func evaluateCell(x, y, z, h, a, b float64, mode CoefficientMode, periodic bool) cell {
	c := cell{A: 1, Bi: 1, Bj: 1, Bk: 1}
	beta := Beta{B: 1}

	if mode == VariableCoefficient {
		c.Bi = EvaluateBeta(x-h*0.5, y, z).B
		c.Bj = EvaluateBeta(x, y-h*0.5, z).B
		c.Bk = EvaluateBeta(x, y, z-h*0.5).B
		beta = EvaluateBeta(x, y, z)
	}

	u := EvaluateU(x, y, z, periodic)
	c.U = u.U
	c.F = a*c.A*u.U - b*((beta.Bx*u.Ux+beta.By*u.Uy+beta.Bz*u.Uz)+beta.B*(u.Uxx+u.Uyy+u.Uzz))
	return c
}
