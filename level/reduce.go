package level

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Reductions cover interior cells only; ghost cells never contribute.

// Dot returns the global sum of a[c]*b[c] over every interior cell of the domain.
// Collective: every rank must call it.
func (l *Level) Dot(a, b FieldID) float64 {
	var bufA, bufB []float64
	local := 0.0
	for _, box := range l.Boxes {
		bufA = box.Interior(a, bufA)
		bufB = box.Interior(b, bufB)
		local += floats.Dot(bufA, bufB)
	}
	return l.comm().AllreduceSum(local)
}

// Sum returns the global sum of field f over interior cells. Collective.
func (l *Level) Sum(f FieldID) float64 {
	var buf []float64
	local := 0.0
	for _, box := range l.Boxes {
		buf = box.Interior(f, buf)
		local += floats.Sum(buf)
	}
	return l.comm().AllreduceSum(local)
}

// Mean returns the volume weighted domain mean of field f. All cells on a
// level share one volume, so this is Sum / NumCells. Collective.
func (l *Level) Mean(f FieldID) float64 {
	return l.Sum(f) / float64(l.NumCells())
}

// AnyRank reports whether local is true on at least one rank. Collective.
func (l *Level) AnyRank(local bool) bool {
	flag := 0.0
	if local {
		flag = 1
	}
	return l.comm().AllreduceSum(flag) > 0
}

// Shift adds c to every interior cell of field f on the local boxes
func (l *Level) Shift(f FieldID, c float64) {
	for _, box := range l.Boxes {
		data := box.Fields[f]
		for k := 0; k < box.Dim; k++ {
			for j := 0; j < box.Dim; j++ {
				row := box.Index(0, j, k)
				floats.AddConst(c, data[row:row+box.Dim])
			}
		}
	}
}

// FieldStats summarizes a field over the global interior
type FieldStats struct {
	Min  float64
	Max  float64
	Mean float64
	L2   float64 // sqrt(h³ Σ v²), the discrete L2 norm over [0,1]³
}

// Statistics computes FieldStats for field f. Collective. The communicator
// only carries sums, so Min and Max cover the local boxes.
func (l *Level) Statistics(f FieldID) FieldStats {
	stats := FieldStats{
		Min: math.Inf(1),
		Max: math.Inf(-1),
	}
	var buf []float64
	for _, box := range l.Boxes {
		buf = box.Interior(f, buf)
		stats.Min = math.Min(stats.Min, floats.Min(buf))
		stats.Max = math.Max(stats.Max, floats.Max(buf))
	}
	stats.Mean = l.Mean(f)
	h3 := l.H * l.H * l.H
	stats.L2 = math.Sqrt(h3 * l.Dot(f, f))
	return stats
}

func (l *Level) comm() Communicator {
	if l.Comm == nil {
		return SerialComm{}
	}
	return l.Comm
}
