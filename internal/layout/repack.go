package layout

import "sort"

// Result is the outcome of a repack.
type Result struct {
	// Placements holds every input block, in input order, with its
	// possibly updated position.
	Placements []Placement `json:"placements"`
	// Moved lists the ids that received a new position, in the order they
	// were placed.
	Moved []string `json:"moved"`
}

// Repack returns a collision-free arrangement of placements.
//
// Blocks are visited by (y, x); ties keep their input order. A block whose
// footprint is free against everything visited before it stays put,
// otherwise it is moved to FindSpace. Ids and sizes are never changed.
func Repack(placements []Placement, g Grid) Result {
	order := make([]int, len(placements))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := placements[order[a]], placements[order[b]]
		if pa.Y != pb.Y {
			return pa.Y < pb.Y
		}
		return pa.X < pb.X
	})

	out := make([]Placement, len(placements))
	copy(out, placements)

	occupied := NewCellSet()
	var moved []string
	for _, i := range order {
		p := out[i]
		if occupied.Intersects(p) {
			p.Position = FindSpace(occupied, p.Size, g)
			out[i] = p
			moved = append(moved, p.ID)
		}
		occupied.Occupy(p)
	}

	return Result{Placements: out, Moved: moved}
}

// Engine bundles the detect-then-repack policy for one grid.
type Engine struct {
	grid Grid
}

// NewEngine returns an Engine for g.
func NewEngine(g Grid) *Engine {
	return &Engine{grid: g}
}

// Grid returns the engine's grid.
func (e *Engine) Grid() Grid {
	return e.grid
}

// Resolve repacks placements only when HasOverlap reports a collision.
// The boolean is true when a repack ran.
func (e *Engine) Resolve(placements []Placement) (Result, bool) {
	if !HasOverlap(placements) {
		out := make([]Placement, len(placements))
		copy(out, placements)
		return Result{Placements: out}, false
	}
	return Repack(placements, e.grid), true
}

// NextPosition finds a free origin for a new block.
func (e *Engine) NextPosition(existing []Placement, size Size) Position {
	return NextPosition(existing, size, e.grid)
}
