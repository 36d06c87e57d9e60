package kernels

import (
	"fmt"
	"sync"

	"github.com/notargets/FVProblem/builder"
	"github.com/notargets/FVProblem/level"
	"github.com/notargets/FVProblem/problem"
	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"
)

const problemKernelName = "initializeProblem"

// DevicePopulator runs the per-cell problem setup on an OCCA device. Every
// box of the level becomes one kernel partition. Ranks sharing a device
// populate one at a time.
type DevicePopulator struct {
	Device *gocca.OCCADevice

	mu sync.Mutex
}

// NewDevicePopulator creates a populator bound to device
func NewDevicePopulator(device *gocca.OCCADevice) *DevicePopulator {
	return &DevicePopulator{Device: device}
}

func (dp *DevicePopulator) Populate(lvl *level.Level, h, a, b float64, cfg problem.Config) error {
	if len(lvl.Boxes) == 0 {
		return nil
	}
	dp.mu.Lock()
	defer dp.mu.Unlock()

	first := lvl.Boxes[0]
	for _, box := range lvl.Boxes {
		if box.Dim != first.Dim || box.Ghosts != first.Ghosts {
			return fmt.Errorf("box %d is %d³ with %d ghosts, device kernels need uniform boxes (%d³, %d ghosts)",
				box.ID, box.Dim, box.Ghosts, first.Dim, first.Ghosts)
		}
	}

	kb, err := dp.prepare(lvl, cfg)
	if err != nil {
		return err
	}
	defer kb.Free()

	if _, err := kb.BuildKernel(ProblemKernel, problemKernelName); err != nil {
		return err
	}

	args := make([]interface{}, 0, level.NumFields+3)
	for _, f := range level.Fields() {
		args = append(args, f.String())
	}
	args = append(args, h, a, b)
	if err := kb.RunKernel(problemKernelName, args...); err != nil {
		return err
	}

	for p, box := range lvl.Boxes {
		for _, f := range level.Fields() {
			data, err := builder.CopyPartitionToHost[float64](kb, f.String(), p)
			if err != nil {
				return fmt.Errorf("box %d field %s: %w", box.ID, f, err)
			}
			copy(box.Field(f), data)
		}
	}
	return nil
}

// prepare allocates one device array per field, uploads the zeroed host
// buffers so ghost cells start at zero, and records the box geometry in the
// kernel preamble
func (dp *DevicePopulator) prepare(lvl *level.Level, cfg problem.Config) (*builder.Builder, error) {
	first := lvl.Boxes[0]
	k := make([]int, len(lvl.Boxes))
	total := 0
	for p, box := range lvl.Boxes {
		k[p] = box.Volume
		total += box.Volume
	}

	kb, err := builder.NewBuilder(dp.Device, builder.Config{
		K:        k,
		InnerMax: first.Dim * first.Dim,
	})
	if err != nil {
		return nil, err
	}

	specs := make([]builder.ArraySpec, 0, level.NumFields)
	for _, f := range level.Fields() {
		specs = append(specs, builder.ArraySpec{
			Name:      f.String(),
			Size:      int64(total * 8),
			Alignment: builder.NoAlignment,
			DataType:  builder.Float64,
		})
	}
	if err := kb.AllocateArrays(specs); err != nil {
		kb.Free()
		return nil, err
	}

	for p, box := range lvl.Boxes {
		for _, f := range level.Fields() {
			box.Zero(f)
			if err := builder.CopyPartitionFromHost(kb, f.String(), p, box.Field(f)); err != nil {
				kb.Free()
				return nil, fmt.Errorf("box %d field %s: %w", box.ID, f, err)
			}
		}
	}

	lows := mat.NewDense(len(lvl.Boxes), 3, nil)
	for p, box := range lvl.Boxes {
		lows.Set(p, 0, float64(box.Low.I))
		lows.Set(p, 1, float64(box.Low.J))
		lows.Set(p, 2, float64(box.Low.K))
	}
	kb.AddStaticMatrix("boxLow", lows)

	shift := 0.0
	if lvl.IsPeriodic() {
		shift = problem.PeriodicShift
	}
	kb.AddDefine("DIM", first.Dim)
	kb.AddDefine("GHOSTS", first.Ghosts)
	kb.AddDefine("JSTRIDE", first.JStride)
	kb.AddDefine("KSTRIDE", first.KStride)
	kb.AddDefine("VARIABLE_COEFFICIENT", cfg.Coefficients == problem.VariableCoefficient)
	kb.AddDefine("SHAPE_SHIFT", shift)
	kb.AddDefine("BETA_C1", (problem.BetaMax+problem.BetaMin)/2)
	kb.AddDefine("BETA_C2", (problem.BetaMax-problem.BetaMin)/2)
	kb.AddDefine("BETA_C3", float64(problem.BetaSharpness))
	kb.AddDefine("BETA_RADIUS", float64(problem.BetaRadius))
	kb.AddDefine("BETA_CENTER", float64(problem.BetaCenter))

	return kb, nil
}
