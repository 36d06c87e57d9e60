package level

import (
	"fmt"
	"sync"
)

// Communicator supplies the collective operations reductions are built on.
// AllreduceSum blocks until every participant has contributed and returns
// the same total to all of them.
type Communicator interface {
	Rank() int
	Size() int
	AllreduceSum(v float64) float64
}

// SerialComm is the single participant communicator
type SerialComm struct{}

func (SerialComm) Rank() int                      { return 0 }
func (SerialComm) Size() int                      { return 1 }
func (SerialComm) AllreduceSum(v float64) float64 { return v }

// LocalGroup runs a collective across goroutines of one process, one
// goroutine per rank
type LocalGroup struct {
	size int

	mu         sync.Mutex
	cond       *sync.Cond
	arrived    int
	generation uint64
	partial    []float64
	result     float64
}

// NewLocalGroup creates a group with size participants
func NewLocalGroup(size int) *LocalGroup {
	if size < 1 {
		panic(fmt.Sprintf("local group size must be positive, got %d", size))
	}
	g := &LocalGroup{
		size:    size,
		partial: make([]float64, size),
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Member returns the communicator used by rank
func (g *LocalGroup) Member(rank int) Communicator {
	if rank < 0 || rank >= g.size {
		panic(fmt.Sprintf("rank %d outside group of size %d", rank, g.size))
	}
	return &groupMember{group: g, rank: rank}
}

type groupMember struct {
	group *LocalGroup
	rank  int
}

func (m *groupMember) Rank() int { return m.rank }
func (m *groupMember) Size() int { return m.group.size }

// AllreduceSum sums contributions in rank order so every participant and
// every repetition sees a bit-identical total
func (m *groupMember) AllreduceSum(v float64) float64 {
	g := m.group
	g.mu.Lock()
	defer g.mu.Unlock()

	gen := g.generation
	g.partial[m.rank] = v
	g.arrived++
	if g.arrived == g.size {
		sum := 0.0
		for _, p := range g.partial {
			sum += p
		}
		g.result = sum
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
		return sum
	}
	for gen == g.generation {
		g.cond.Wait()
	}
	return g.result
}
