package level

import (
	"fmt"
	"math"
	"sort"
)

// DecompositionStrategy defines how boxes are assigned to ranks
type DecompositionStrategy int

const (
	BlockPartition    DecompositionStrategy = iota // Consecutive boxes in lexicographic order
	RoundRobin                                     // Distribute cyclically
	SpaceFillingCurve                              // Consecutive boxes in Morton order
)

func (s DecompositionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "roundrobin"
	case SpaceFillingCurve:
		return "morton"
	default:
		return fmt.Sprintf("strategy(%d)", s)
	}
}

// LevelBuilder decomposes the cubic domain [0,1]³ of Dim³ cells into boxes of
// BoxDim³ cells and assigns them to ranks
type LevelBuilder struct {
	Dim      int // Global cells per side
	BoxDim   int // Cells per box side
	Ghosts   int
	BC       BoundaryCondition
	NumRanks int
	Strategy DecompositionStrategy
}

// Layout records the box to rank assignment of a decomposition
type Layout struct {
	BoxesPerSide int
	NumBoxes     int
	NumRanks     int
	Lows         []Index3 // Global low corner of box b
	BToR         []int    // Length NumBoxes: box b belongs to rank BToR[b]
}

// BuildLayout computes the global decomposition shared by all ranks
func (lb *LevelBuilder) BuildLayout() (*Layout, error) {
	if err := lb.validate(); err != nil {
		return nil, err
	}

	perSide := lb.Dim / lb.BoxDim
	numBoxes := perSide * perSide * perSide
	layout := &Layout{
		BoxesPerSide: perSide,
		NumBoxes:     numBoxes,
		NumRanks:     lb.numRanks(),
		Lows:         make([]Index3, numBoxes),
	}

	// Box IDs are lexicographic with i fastest
	for b := 0; b < numBoxes; b++ {
		i := b % perSide
		j := (b / perSide) % perSide
		k := b / (perSide * perSide)
		layout.Lows[b] = Index3{I: i * lb.BoxDim, J: j * lb.BoxDim, K: k * lb.BoxDim}
	}

	layout.BToR = lb.assignBoxes(layout)

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid level layout: %w", err)
	}
	return layout, nil
}

// Build creates the level owned by rank, allocating its boxes
func (lb *LevelBuilder) Build(rank int, comm Communicator) (*Level, error) {
	layout, err := lb.BuildLayout()
	if err != nil {
		return nil, err
	}
	if rank < 0 || rank >= layout.NumRanks {
		return nil, fmt.Errorf("%w: rank %d, ranks %d", ErrRankOutOfRange, rank, layout.NumRanks)
	}
	if comm == nil {
		comm = SerialComm{}
	}

	lvl := &Level{
		H:    1.0 / float64(lb.Dim),
		Dim:  lb.Dim,
		BC:   lb.BC,
		Rank: rank,
		Comm: comm,
	}
	for b, r := range layout.BToR {
		if r == rank {
			lvl.Boxes = append(lvl.Boxes, NewBox(b, layout.Lows[b], lb.BoxDim, lb.Ghosts))
		}
	}
	return lvl, nil
}

func (lb *LevelBuilder) validate() error {
	if lb.Dim <= 0 || lb.BoxDim <= 0 {
		return fmt.Errorf("%w: dim %d, box dim %d", ErrInvalidGeometry, lb.Dim, lb.BoxDim)
	}
	if lb.Dim%lb.BoxDim != 0 {
		return fmt.Errorf("%w: dim %d is not a multiple of box dim %d",
			ErrInvalidGeometry, lb.Dim, lb.BoxDim)
	}
	if lb.Ghosts < 0 {
		return fmt.Errorf("%w: negative ghost width %d", ErrInvalidGeometry, lb.Ghosts)
	}
	return nil
}

func (lb *LevelBuilder) numRanks() int {
	if lb.NumRanks < 1 {
		return 1
	}
	return lb.NumRanks
}

// assignBoxes maps every box to a rank
func (lb *LevelBuilder) assignBoxes(layout *Layout) []int {
	bToR := make([]int, layout.NumBoxes)
	numRanks := layout.NumRanks

	switch lb.Strategy {
	case RoundRobin:
		for b := range bToR {
			bToR[b] = b % numRanks
		}

	case SpaceFillingCurve:
		order := mortonOrder(layout)
		blockAssign(order, bToR, numRanks)

	default:
		order := make([]int, layout.NumBoxes)
		for b := range order {
			order[b] = b
		}
		blockAssign(order, bToR, numRanks)
	}

	return bToR
}

// blockAssign gives each rank a consecutive run of boxes taken from order.
// The first len(order)%numRanks ranks take one extra box, so run lengths
// differ by at most one.
func blockAssign(order []int, bToR []int, numRanks int) {
	base := len(order) / numRanks
	extra := len(order) % numRanks
	pos := 0
	for r := 0; r < numRanks; r++ {
		n := base
		if r < extra {
			n++
		}
		for _, b := range order[pos : pos+n] {
			bToR[b] = r
		}
		pos += n
	}
}

// mortonOrder returns box IDs sorted along the Z-order curve
func mortonOrder(layout *Layout) []int {
	order := make([]int, layout.NumBoxes)
	keys := make([]uint64, layout.NumBoxes)
	perSide := layout.BoxesPerSide
	for b := range order {
		order[b] = b
		keys[b] = mortonKey(b%perSide, (b/perSide)%perSide, b/(perSide*perSide))
	}
	sort.SliceStable(order, func(x, y int) bool {
		return keys[order[x]] < keys[order[y]]
	})
	return order
}

// mortonKey interleaves the low 21 bits of i, j and k
func mortonKey(i, j, k int) uint64 {
	return spread(uint64(i)) | spread(uint64(j))<<1 | spread(uint64(k))<<2
}

func spread(v uint64) uint64 {
	v &= 0x1fffff
	v = (v | v<<32) & 0x1f00000000ffff
	v = (v | v<<16) & 0x1f0000ff0000ff
	v = (v | v<<8) & 0x100f00f00f00f00f
	v = (v | v<<4) & 0x10c30c30c30c30c3
	v = (v | v<<2) & 0x1249249249249249
	return v
}

// OwnedBy returns the boxes assigned to rank
func (layout *Layout) OwnedBy(rank int) []int {
	var boxes []int
	for b, r := range layout.BToR {
		if r == rank {
			boxes = append(boxes, b)
		}
	}
	return boxes
}

// ValidateLayout checks that every box has exactly one valid owner and the
// boxes tile the domain
func (layout *Layout) ValidateLayout() error {
	if len(layout.BToR) != layout.NumBoxes || len(layout.Lows) != layout.NumBoxes {
		return fmt.Errorf("layout tables sized %d/%d for %d boxes",
			len(layout.BToR), len(layout.Lows), layout.NumBoxes)
	}
	seen := make(map[Index3]bool, layout.NumBoxes)
	for b, r := range layout.BToR {
		if r < 0 || r >= layout.NumRanks {
			return fmt.Errorf("box %d: rank %d outside [0,%d)", b, r, layout.NumRanks)
		}
		if seen[layout.Lows[b]] {
			return fmt.Errorf("box %d: duplicate low corner %v", b, layout.Lows[b])
		}
		seen[layout.Lows[b]] = true
	}
	return nil
}

// Statistics computes load balance metrics
func (layout *Layout) Statistics() LayoutStats {
	counts := make([]int, layout.NumRanks)
	for _, r := range layout.BToR {
		counts[r]++
	}

	stats := LayoutStats{
		NumRanks: layout.NumRanks,
		MinBoxes: math.MaxInt32,
		MaxBoxes: 0,
		AvgBoxes: float64(layout.NumBoxes) / float64(layout.NumRanks),
	}
	for _, c := range counts {
		if c < stats.MinBoxes {
			stats.MinBoxes = c
		}
		if c > stats.MaxBoxes {
			stats.MaxBoxes = c
		}
	}
	stats.Imbalance = float64(stats.MaxBoxes) / stats.AvgBoxes

	return stats
}

type LayoutStats struct {
	NumRanks  int
	MinBoxes  int
	MaxBoxes  int
	AvgBoxes  float64
	Imbalance float64 // MaxBoxes / AvgBoxes
}
