package level

import (
	"fmt"
	"sync"
)

// FieldID identifies one of the named per-cell field buffers carried by every box
type FieldID uint8

const (
	Alpha  FieldID = iota // Reaction coefficient A
	BetaI                 // Face-centered diffusion coefficient, i faces
	BetaJ                 // Face-centered diffusion coefficient, j faces
	BetaK                 // Face-centered diffusion coefficient, k faces
	UExact                // Manufactured solution
	F                     // Forcing term (right hand side)

	NumFields int = iota
)

var fieldNames = [NumFields]string{"alpha", "beta_i", "beta_j", "beta_k", "u_exact", "f"}

func (f FieldID) String() string {
	if int(f) < NumFields {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", f)
}

// Fields returns every field identifier in declaration order
func Fields() []FieldID {
	ids := make([]FieldID, NumFields)
	for i := range ids {
		ids[i] = FieldID(i)
	}
	return ids
}

// BoundaryCondition is the domain boundary condition kind
type BoundaryCondition uint8

const (
	Dirichlet BoundaryCondition = iota
	Periodic
)

func (bc BoundaryCondition) String() string {
	switch bc {
	case Dirichlet:
		return "dirichlet"
	case Periodic:
		return "periodic"
	default:
		return fmt.Sprintf("boundary(%d)", bc)
	}
}

// AlphaState caches whether the alpha field is identically zero
type AlphaState int8

const (
	AlphaUnknown AlphaState = iota
	AlphaNonZero
	AlphaZero
)

func (s AlphaState) String() string {
	switch s {
	case AlphaNonZero:
		return "nonzero"
	case AlphaZero:
		return "zero"
	default:
		return "unknown"
	}
}

// Index3 is an integer cell coordinate in the global index space
type Index3 struct {
	I, J, K int
}

// Box is a cubic sub-domain with a ghost halo. Field buffers are row-major
// with i fastest, and include ghost cells.
type Box struct {
	ID     int
	Low    Index3 // Global index of the first interior cell
	Dim    int
	Ghosts int

	JStride int
	KStride int
	Volume  int

	Fields [NumFields][]float64
}

// NewBox allocates a box and all of its field buffers
func NewBox(id int, low Index3, dim, ghosts int) *Box {
	jStride := dim + 2*ghosts
	kStride := jStride * jStride
	b := &Box{
		ID:      id,
		Low:     low,
		Dim:     dim,
		Ghosts:  ghosts,
		JStride: jStride,
		KStride: kStride,
		Volume:  kStride * jStride,
	}
	for f := range b.Fields {
		b.Fields[f] = make([]float64, b.Volume)
	}
	return b
}

// Index returns the linear index of interior cell (i,j,k), 0 <= i,j,k < Dim
func (b *Box) Index(i, j, k int) int {
	return (i + b.Ghosts) + (j+b.Ghosts)*b.JStride + (k+b.Ghosts)*b.KStride
}

// Field returns the buffer for field f
func (b *Box) Field(f FieldID) []float64 {
	return b.Fields[f]
}

// Zero clears field f including ghost cells
func (b *Box) Zero(f FieldID) {
	clear(b.Fields[f])
}

// Interior copies the interior cells of field f into dst (length Dim³) and returns it
func (b *Box) Interior(f FieldID, dst []float64) []float64 {
	n := b.Dim * b.Dim * b.Dim
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	src := b.Fields[f]
	p := 0
	for k := 0; k < b.Dim; k++ {
		for j := 0; j < b.Dim; j++ {
			row := b.Index(0, j, k)
			copy(dst[p:p+b.Dim], src[row:row+b.Dim])
			p += b.Dim
		}
	}
	return dst
}

// Level is the locally owned part of a decomposed cubic domain [0,1]³
type Level struct {
	H     float64 // Mesh spacing
	Dim   int     // Global cells per side
	BC    BoundaryCondition
	Rank  int
	Boxes []*Box
	Comm  Communicator

	alphaMu    sync.Mutex
	alphaState AlphaState
}

// NumCells returns the number of cells in the global domain
func (l *Level) NumCells() int {
	return l.Dim * l.Dim * l.Dim
}

// IsPeriodic reports whether the domain uses periodic boundaries
func (l *Level) IsPeriodic() bool {
	return l.BC == Periodic
}

// AlphaState returns the cached alpha state without resolving it
func (l *Level) AlphaState() AlphaState {
	l.alphaMu.Lock()
	defer l.alphaMu.Unlock()
	return l.alphaState
}

// ResolveAlpha returns the cached alpha state, calling isZero only if the
// state is still unknown. isZero runs at most once per level; it is expected
// to be a collective reduction, so every rank must call ResolveAlpha.
func (l *Level) ResolveAlpha(isZero func() bool) AlphaState {
	l.alphaMu.Lock()
	defer l.alphaMu.Unlock()
	if l.alphaState == AlphaUnknown {
		if isZero() {
			l.alphaState = AlphaZero
		} else {
			l.alphaState = AlphaNonZero
		}
	}
	return l.alphaState
}

// ResetAlpha forgets the cached alpha state
func (l *Level) ResetAlpha() {
	l.alphaMu.Lock()
	l.alphaState = AlphaUnknown
	l.alphaMu.Unlock()
}
