package level

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxIndexing(t *testing.T) {
	box := NewBox(0, Index3{}, 4, 1)

	assert.Equal(t, 6, box.JStride)
	assert.Equal(t, 36, box.KStride)
	assert.Equal(t, 216, box.Volume)
	for f := range box.Fields {
		assert.Len(t, box.Fields[f], box.Volume)
	}

	// Every interior cell gets a unique index that is never a ghost slot
	seen := make(map[int]bool)
	for k := 0; k < box.Dim; k++ {
		for j := 0; j < box.Dim; j++ {
			for i := 0; i < box.Dim; i++ {
				ijk := box.Index(i, j, k)
				require.False(t, seen[ijk], "duplicate index %d", ijk)
				seen[ijk] = true
				assert.Equal(t, (i+1)+(j+1)*6+(k+1)*36, ijk)
			}
		}
	}
	assert.Len(t, seen, 64)
}

func TestBoxInterior(t *testing.T) {
	box := NewBox(0, Index3{}, 2, 1)
	data := box.Field(F)
	for n := range data {
		data[n] = -1 // ghosts stay at -1
	}
	v := 0.0
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				data[box.Index(i, j, k)] = v
				v++
			}
		}
	}

	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7}, box.Interior(F, nil))

	box.Zero(F)
	for _, x := range data {
		assert.Zero(t, x)
	}
}

func TestFieldNames(t *testing.T) {
	names := make([]string, 0, NumFields)
	for _, f := range Fields() {
		names = append(names, f.String())
	}
	assert.Equal(t, []string{"alpha", "beta_i", "beta_j", "beta_k", "u_exact", "f"}, names)
	assert.Equal(t, "periodic", Periodic.String())
	assert.Equal(t, "dirichlet", Dirichlet.String())
}

func TestResolveAlphaOnce(t *testing.T) {
	lvl := &Level{}
	assert.Equal(t, AlphaUnknown, lvl.AlphaState())

	calls := 0
	isZero := func() bool {
		calls++
		return true
	}
	assert.Equal(t, AlphaZero, lvl.ResolveAlpha(isZero))
	assert.Equal(t, AlphaZero, lvl.ResolveAlpha(isZero))
	assert.Equal(t, 1, calls)

	lvl.ResetAlpha()
	assert.Equal(t, AlphaNonZero, lvl.ResolveAlpha(func() bool { return false }))
}

func TestLevelBuilderGeometryErrors(t *testing.T) {
	tests := []struct {
		name string
		lb   LevelBuilder
		err  error
	}{
		{"zero dim", LevelBuilder{Dim: 0, BoxDim: 4}, ErrInvalidGeometry},
		{"not a multiple", LevelBuilder{Dim: 10, BoxDim: 4}, ErrInvalidGeometry},
		{"negative ghosts", LevelBuilder{Dim: 8, BoxDim: 4, Ghosts: -1}, ErrInvalidGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.lb.BuildLayout()
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}

	lb := LevelBuilder{Dim: 8, BoxDim: 4, NumRanks: 2}
	_, err := lb.Build(2, nil)
	assert.ErrorIs(t, err, ErrRankOutOfRange)
}

func TestLevelBuilderStrategies(t *testing.T) {
	for _, strategy := range []DecompositionStrategy{BlockPartition, RoundRobin, SpaceFillingCurve} {
		t.Run(strategy.String(), func(t *testing.T) {
			lb := LevelBuilder{Dim: 16, BoxDim: 4, Ghosts: 1, NumRanks: 3, Strategy: strategy}
			layout, err := lb.BuildLayout()
			require.NoError(t, err)
			assert.Equal(t, 64, layout.NumBoxes)

			// Every box belongs to exactly one rank's level
			owned := make(map[int]int)
			total := 0
			for r := 0; r < 3; r++ {
				lvl, err := lb.Build(r, nil)
				require.NoError(t, err)
				assert.Equal(t, r, lvl.Rank)
				assert.InDelta(t, 1.0/16, lvl.H, 1e-15)
				for _, box := range lvl.Boxes {
					owned[box.ID]++
					assert.Equal(t, layout.Lows[box.ID], box.Low)
				}
				total += len(lvl.Boxes)
			}
			assert.Equal(t, 64, total)
			for b := 0; b < 64; b++ {
				assert.Equal(t, 1, owned[b], "box %d", b)
			}

			stats := layout.Statistics()
			assert.Equal(t, 3, stats.NumRanks)
			assert.LessOrEqual(t, stats.MaxBoxes-stats.MinBoxes, 2)
			assert.GreaterOrEqual(t, stats.Imbalance, 1.0)
		})
	}
}

func TestMortonOrderKeepsOctantsTogether(t *testing.T) {
	lb := LevelBuilder{Dim: 8, BoxDim: 2, NumRanks: 8, Strategy: SpaceFillingCurve}
	layout, err := lb.BuildLayout()
	require.NoError(t, err)

	// With 4 boxes per side and 8 ranks each rank owns one 2x2x2 octant
	for r := 0; r < 8; r++ {
		boxes := layout.OwnedBy(r)
		require.Len(t, boxes, 8)
		first := layout.Lows[boxes[0]]
		for _, b := range boxes {
			low := layout.Lows[b]
			assert.Equal(t, first.I/4, low.I/4)
			assert.Equal(t, first.J/4, low.J/4)
			assert.Equal(t, first.K/4, low.K/4)
		}
	}
}

func TestMortonKey(t *testing.T) {
	assert.Equal(t, uint64(0), mortonKey(0, 0, 0))
	assert.Equal(t, uint64(1), mortonKey(1, 0, 0))
	assert.Equal(t, uint64(2), mortonKey(0, 1, 0))
	assert.Equal(t, uint64(4), mortonKey(0, 0, 1))
	assert.Equal(t, uint64(7), mortonKey(1, 1, 1))
	assert.Equal(t, uint64(8), mortonKey(2, 0, 0))
}

func TestValidateLayoutRejectsBadOwner(t *testing.T) {
	layout := &Layout{
		NumBoxes: 2,
		NumRanks: 1,
		Lows:     []Index3{{0, 0, 0}, {4, 0, 0}},
		BToR:     []int{0, 1},
	}
	assert.Error(t, layout.ValidateLayout())

	layout.BToR[1] = 0
	assert.NoError(t, layout.ValidateLayout())

	layout.Lows[1] = Index3{}
	assert.Error(t, layout.ValidateLayout())
}

func TestBlockPartitionLeavesNoRankEmpty(t *testing.T) {
	for _, strategy := range []DecompositionStrategy{BlockPartition, SpaceFillingCurve} {
		t.Run(strategy.String(), func(t *testing.T) {
			lb := LevelBuilder{Dim: 8, BoxDim: 4, NumRanks: 5, Strategy: strategy}
			layout, err := lb.BuildLayout()
			require.NoError(t, err)

			counts := make([]int, 5)
			for r := range counts {
				counts[r] = len(layout.OwnedBy(r))
			}
			assert.Equal(t, []int{2, 2, 2, 1, 1}, counts)

			stats := layout.Statistics()
			assert.Equal(t, 1, stats.MinBoxes)
			assert.Equal(t, 2, stats.MaxBoxes)
		})
	}
}

func TestBlockAssignRuns(t *testing.T) {
	order := []int{4, 3, 2, 1, 0, 6, 5}
	bToR := make([]int, len(order))
	blockAssign(order, bToR, 3)

	// Runs of 3, 2, 2 taken along order
	assert.Equal(t, []int{1, 1, 0, 0, 0, 2, 2}, bToR)
}
